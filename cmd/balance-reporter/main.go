package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AidanTHWong/wallet/pkg/config"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/metrics"
	"github.com/AidanTHWong/wallet/pkg/provider"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	optionConfig = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to config file",
		EnvVars: []string{"SPLIT_BRIDGE_CONFIG"},
	}
	optionOnce = &cli.BoolFlag{
		Name:  "once",
		Usage: "report a single time and exit",
	}
)

func main() {
	app := &cli.App{
		Name:   "balance-reporter",
		Usage:  "Periodically push the balances of both wallets to Datadog",
		Flags:  []cli.Flag{optionConfig, optionOnce},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.Writer, "exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String(optionConfig.Name))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.LogLevel)
	if !cfg.Datadog.Enabled() {
		log.Fatal().Msg("DD_API_KEY (or datadog.api_key) is required")
	}

	// Reporting never signs, so local wallets refuse every transaction.
	deny := func(context.Context, provider.ApprovalRequest) (bool, error) { return false, nil }
	wallets, err := cfg.OpenWallets(c.Context, deny, provider.TerminalPassword, provider.DialChain)
	if err != nil {
		return err
	}
	defer wallets.Close()

	cons := console.New(wallets.Slots[0], wallets.Slots[1], cfg.ConsoleOptions(nil))
	defer cons.Close()
	dd := metrics.NewDatadog(cfg.DatadogOptions())

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(cfg.Datadog.Interval)
	defer ticker.Stop()
	for {
		report(ctx, cons, dd)
		if c.Bool(optionOnce.Name) {
			return nil
		}
		select {
		case <-ctx.Done():
			fmt.Fprintf(c.App.Writer, "shutting down...\n")
			return nil
		case <-ticker.C:
		}
	}
}

func report(ctx context.Context, cons *console.Console, dd *metrics.Datadog) {
	for _, name := range cons.Names() {
		if _, err := cons.Connect(ctx, name); err != nil {
			log.Error().Err(err).Str("wallet", name).Msg("connect failed")
		}
	}
	state := cons.State()
	if err := dd.PostBalances(ctx, state.Wallets...); err != nil {
		log.Error().Err(err).Msg("failed to post balances")
		return
	}
	log.Info().Int("wallets", len(state.Wallets)).Msg("balances posted")
}
