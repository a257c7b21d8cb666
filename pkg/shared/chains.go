package shared

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Chain int

const (
	Ethereum Chain = iota
	Base
)

var (
	EthereumChainID = big.NewInt(1)
	BaseChainID     = big.NewInt(8453)
)

// Chains lists every supported chain in display order.
var Chains = []Chain{Ethereum, Base}

func (c Chain) String() string {
	switch c {
	case Ethereum:
		return "ETH"
	case Base:
		return "Base"
	default:
		return "unknown"
	}
}

func (c Chain) ID() *big.Int {
	switch c {
	case Ethereum:
		return new(big.Int).Set(EthereumChainID)
	case Base:
		return new(big.Int).Set(BaseChainID)
	default:
		return nil
	}
}

// Counterpart is the destination chain of a bridge leaving c.
func (c Chain) Counterpart() Chain {
	if c == Ethereum {
		return Base
	}
	return Ethereum
}

func ParseChain(s string) (Chain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eth", "ethereum", "mainnet", "l1":
		return Ethereum, nil
	case "base", "l2":
		return Base, nil
	default:
		return 0, fmt.Errorf("unsupported chain %q, expected eth or base", s)
	}
}

func ChainFromID(id *big.Int) (Chain, bool) {
	if id == nil {
		return 0, false
	}
	switch {
	case id.Cmp(EthereumChainID) == 0:
		return Ethereum, true
	case id.Cmp(BaseChainID) == 0:
		return Base, true
	}
	return 0, false
}

type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// NetworkParams is the wallet_addEthereumChain parameter object (EIP-3085).
type NetworkParams struct {
	ChainID           string         `json:"chainId" yaml:"chain_id"`
	ChainName         string         `json:"chainName" yaml:"chain_name"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
	RPCURLs           []string       `json:"rpcUrls" yaml:"rpc_urls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty" yaml:"block_explorer_urls"`
}

func (p NetworkParams) ID() (*big.Int, error) {
	id, err := hexutil.DecodeBig(p.ChainID)
	if err != nil {
		return nil, fmt.Errorf("invalid chainId %q: %w", p.ChainID, err)
	}
	return id, nil
}

func (p NetworkParams) Validate() error {
	id, err := p.ID()
	if err != nil {
		return err
	}
	if id.Sign() <= 0 {
		return fmt.Errorf("chainId must be positive")
	}
	if p.ChainName == "" {
		return fmt.Errorf("chainName is required")
	}
	if len(p.RPCURLs) == 0 || p.RPCURLs[0] == "" {
		return fmt.Errorf("at least one rpc url is required for chain %s", p.ChainName)
	}
	if p.NativeCurrency.Decimals != 18 {
		return fmt.Errorf("native currency of %s must have 18 decimals", p.ChainName)
	}
	return nil
}

func HexChainID(id *big.Int) string {
	return hexutil.EncodeBig(id)
}

func DefaultNetworkParams(c Chain) NetworkParams {
	eth := NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18}
	switch c {
	case Base:
		return NetworkParams{
			ChainID:           HexChainID(BaseChainID),
			ChainName:         "Base",
			NativeCurrency:    eth,
			RPCURLs:           []string{"https://mainnet.base.org"},
			BlockExplorerURLs: []string{"https://basescan.org"},
		}
	default:
		return NetworkParams{
			ChainID:           HexChainID(EthereumChainID),
			ChainName:         "Ethereum Mainnet",
			NativeCurrency:    eth,
			RPCURLs:           []string{"https://ethereum-rpc.publicnode.com"},
			BlockExplorerURLs: []string{"https://etherscan.io"},
		}
	}
}
