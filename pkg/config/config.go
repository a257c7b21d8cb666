// Package config loads the yaml configuration shared by the split-bridge
// binaries and turns it into wallets and component options.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/metrics"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultReportInterval = time.Minute
	noToken               = "none"
)

type Wallet struct {
	Name string `yaml:"name" json:"name"`
	// URL of a wallet exposing its provider over JSON-RPC.
	URL string `yaml:"url" json:"url"`
	// KeyFile holds a hex private key or a keystore file for a local wallet.
	KeyFile        string `yaml:"key_file" json:"key_file"`
	PasswordFile   string `yaml:"password_file" json:"password_file"`
	PreferredChain string `yaml:"preferred_chain" json:"preferred_chain"`
}

func (w Wallet) Local() bool {
	return w.KeyFile != ""
}

type Datadog struct {
	APIKey   string        `yaml:"api_key" json:"api_key"`
	AppKey   string        `yaml:"app_key" json:"app_key"`
	Site     string        `yaml:"site" json:"site"`
	Tags     []string      `yaml:"tags" json:"tags"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

func (d Datadog) Enabled() bool {
	return d.APIKey != ""
}

type Config struct {
	LogLevel           string        `yaml:"log_level" json:"log_level"`
	EthRPCUrl          string        `yaml:"eth_rpc_url" json:"eth_rpc_url"`
	BaseRPCUrl         string        `yaml:"base_rpc_url" json:"base_rpc_url"`
	Wallets            []Wallet      `yaml:"wallets" json:"wallets"`
	PortalContractAddr string        `yaml:"portal_contract_addr" json:"portal_contract_addr"`
	L2BridgeAddr       string        `yaml:"l2_bridge_contract_addr" json:"l2_bridge_contract_addr"`
	TokenSymbol        string        `yaml:"token_symbol" json:"token_symbol"`
	TokenAddr          string        `yaml:"token_addr" json:"token_addr"`
	RefreshDelay       time.Duration `yaml:"refresh_delay" json:"refresh_delay"`
	BridgeFeeBps       int64         `yaml:"bridge_fee_bps" json:"bridge_fee_bps"`
	WaitAttempts       int           `yaml:"wait_attempts" json:"wait_attempts"`
	WaitInterval       time.Duration `yaml:"wait_interval" json:"wait_interval"`
	HTTPAddr           string        `yaml:"http_addr" json:"http_addr"`
	Datadog            Datadog       `yaml:"datadog" json:"datadog"`
}

// FromEnv builds the configuration from environment variables. Wallet
// variables are prefixed with the upper-cased wallet name.
func FromEnv() Config {
	cfg := Config{
		LogLevel:           os.Getenv("LOG_LEVEL"),
		EthRPCUrl:          os.Getenv("ETH_RPC_URL"),
		BaseRPCUrl:         os.Getenv("BASE_RPC_URL"),
		PortalContractAddr: os.Getenv("PORTAL_CONTRACT_ADDR"),
		L2BridgeAddr:       os.Getenv("L2_BRIDGE_CONTRACT_ADDR"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		Datadog: Datadog{
			APIKey: os.Getenv("DD_API_KEY"),
			AppKey: os.Getenv("DD_APP_KEY"),
			Site:   os.Getenv("DD_SITE"),
		},
	}
	for _, name := range []string{"phantom", "metamask"} {
		prefix := strings.ToUpper(name)
		cfg.Wallets = append(cfg.Wallets, Wallet{
			Name:         name,
			URL:          os.Getenv(prefix + "_WALLET_URL"),
			KeyFile:      os.Getenv(prefix + "_KEY_FILE"),
			PasswordFile: os.Getenv(prefix + "_PASSWORD_FILE"),
		})
	}
	return cfg
}

// LoadFile overrides cfg with the keys present in the yaml file at path.
func LoadFile(cfg *Config, filePath string) error {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file at: %s, %w", filePath, err)
	}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config file at: %s, %w", filePath, err)
	}
	return nil
}

// Load reads the environment, then the file when one is named, and checks the result.
func Load(filePath string) (Config, error) {
	cfg := FromEnv()
	if filePath == "" {
		log.Info().Msg("env var config will be used")
	} else {
		log.Info().Str("config_file", filePath).Msg("overriding env var config with file")
		if err := LoadFile(&cfg, filePath); err != nil {
			return Config{}, err
		}
	}
	if err := Check(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Check validates cfg and fills defaults.
func Check(cfg *Config) error {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if cfg.EthRPCUrl == "" {
		cfg.EthRPCUrl = shared.DefaultNetworkParams(shared.Ethereum).RPCURLs[0]
	}
	if cfg.BaseRPCUrl == "" {
		cfg.BaseRPCUrl = shared.DefaultNetworkParams(shared.Base).RPCURLs[0]
	}

	if len(cfg.Wallets) != 2 {
		return fmt.Errorf("exactly two wallets are required, got %d", len(cfg.Wallets))
	}
	if cfg.Wallets[0].Name == cfg.Wallets[1].Name {
		return fmt.Errorf("wallet names must differ, both are %q", cfg.Wallets[0].Name)
	}
	for i := range cfg.Wallets {
		w := &cfg.Wallets[i]
		if w.Name == "" {
			return fmt.Errorf("wallet %d: name is required", i)
		}
		if (w.URL == "") == (w.KeyFile == "") {
			return fmt.Errorf("wallet %s: exactly one of url and key_file is required", w.Name)
		}
		if w.PreferredChain == "" {
			// The first wallet starts on Base, the second on Ethereum.
			w.PreferredChain = shared.Base.String()
			if i == 1 {
				w.PreferredChain = shared.Ethereum.String()
			}
		}
		if _, err := shared.ParseChain(w.PreferredChain); err != nil {
			return fmt.Errorf("wallet %s: %w", w.Name, err)
		}
	}

	if cfg.PortalContractAddr == "" {
		cfg.PortalContractAddr = transfer.DefaultPortal.Hex()
	}
	if cfg.L2BridgeAddr == "" {
		cfg.L2BridgeAddr = transfer.DefaultL2Bridge.Hex()
	}
	if !common.IsHexAddress(cfg.PortalContractAddr) || !common.IsHexAddress(cfg.L2BridgeAddr) {
		return fmt.Errorf("both portal_contract_addr and l2_bridge_contract_addr must be valid hex addresses")
	}

	if cfg.TokenAddr == "" {
		cfg.TokenAddr = balance.USDCMainnet.Hex()
		if cfg.TokenSymbol == "" {
			cfg.TokenSymbol = "USDC"
		}
	}
	if cfg.TokenAddr != noToken && !common.IsHexAddress(cfg.TokenAddr) {
		return fmt.Errorf("token_addr must be a valid hex address or %q", noToken)
	}

	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = console.DefaultRefreshDelay
	}
	if cfg.BridgeFeeBps == 0 {
		cfg.BridgeFeeBps = console.DefaultBridgeFeeBps
	}
	if cfg.BridgeFeeBps < 0 || cfg.BridgeFeeBps > 10_000 {
		return fmt.Errorf("bridge_fee_bps must be between 0 and 10000")
	}

	defaults := transfer.DefaultOptions()
	if cfg.WaitAttempts <= 0 {
		cfg.WaitAttempts = defaults.WaitAttempts
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = defaults.WaitInterval
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.Datadog.Interval <= 0 {
		cfg.Datadog.Interval = defaultReportInterval
	}
	if cfg.Datadog.Enabled() && cfg.Datadog.AppKey == "" {
		return fmt.Errorf("datadog.app_key is required when datadog.api_key is set")
	}
	return nil
}

func SetupLogging(logLevel string) {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse log level")
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func (cfg Config) Networks() balance.Networks {
	networks := balance.DefaultNetworks()
	eth := networks[shared.Ethereum]
	eth.RPCURLs = []string{cfg.EthRPCUrl}
	networks[shared.Ethereum] = eth
	base := networks[shared.Base]
	base.RPCURLs = []string{cfg.BaseRPCUrl}
	networks[shared.Base] = base
	return networks
}

func (cfg Config) TransferOptions() transfer.Options {
	return transfer.Options{
		Networks: cfg.Networks(),
		Contracts: transfer.Contracts{
			Portal:   common.HexToAddress(cfg.PortalContractAddr),
			L2Bridge: common.HexToAddress(cfg.L2BridgeAddr),
		},
		WaitAttempts: cfg.WaitAttempts,
		WaitInterval: cfg.WaitInterval,
	}
}

// Token is the ERC-20 tracked next to native balances, nil when disabled.
func (cfg Config) Token() *balance.Token {
	if cfg.TokenAddr == noToken {
		return nil
	}
	return &balance.Token{
		Symbol:  cfg.TokenSymbol,
		Address: common.HexToAddress(cfg.TokenAddr),
		Chain:   shared.Ethereum,
	}
}

func (cfg Config) ConsoleOptions(observer console.Observer) console.Options {
	return console.Options{
		Transfer:     cfg.TransferOptions(),
		Token:        cfg.Token(),
		RefreshDelay: cfg.RefreshDelay,
		BridgeFeeBps: cfg.BridgeFeeBps,
		Observer:     observer,
	}
}

func (cfg Config) DatadogOptions() metrics.DatadogOptions {
	return metrics.DatadogOptions{
		APIKey: cfg.Datadog.APIKey,
		AppKey: cfg.Datadog.AppKey,
		Site:   cfg.Datadog.Site,
		Tags:   cfg.Datadog.Tags,
	}
}

// WalletNames returns the configured names in split order.
func (cfg Config) WalletNames() [2]string {
	return [2]string{cfg.Wallets[0].Name, cfg.Wallets[1].Name}
}
