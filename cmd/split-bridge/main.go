package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AidanTHWong/wallet/pkg/api"
	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/config"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/metrics"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/split"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var (
	optionConfig = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to config file",
		EnvVars: []string{"SPLIT_BRIDGE_CONFIG"},
	}
	optionYes = &cli.BoolFlag{
		Name:  "yes",
		Usage: "sign every transaction of local wallets without asking",
	}
	optionAmount = &cli.StringFlag{
		Name:     "amount",
		Usage:    "total amount of ether, e.g. 0.25",
		Required: true,
	}
	optionPercent = &cli.IntFlag{
		Name:  "percent",
		Usage: "share of the amount drawn from the second wallet, 0-100",
		Value: split.DefaultPercent,
	}
)

func main() {
	app := &cli.App{
		Name:  "split-bridge",
		Usage: "Bridge and send ether between Ethereum and Base, split across two wallets",
		Commands: []*cli.Command{
			{
				Name:   "balances",
				Usage:  "Connect both wallets and show their balances",
				Flags:  []cli.Flag{optionConfig},
				Action: balances,
			},
			{
				Name:  "bridge",
				Usage: "Bridge ether to the other chain from both wallets",
				Flags: []cli.Flag{
					optionAmount,
					&cli.StringFlag{
						Name:  "from",
						Usage: "source chain, eth or base",
						Value: "eth",
					},
					optionPercent,
					optionYes,
					optionConfig,
				},
				Action: bridge,
			},
			{
				Name:  "send",
				Usage: "Send ether to one recipient from both wallets",
				Flags: []cli.Flag{
					optionAmount,
					&cli.StringFlag{
						Name:     "to",
						Usage:    "recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "chain",
						Usage: "chain to send on, eth or base",
						Value: "base",
					},
					optionPercent,
					optionYes,
					optionConfig,
				},
				Action: send,
			},
			{
				Name:   "preview",
				Usage:  "Show how an amount would be split, without contacting any wallet",
				Flags:  []cli.Flag{optionAmount, optionPercent, optionConfig},
				Action: preview,
			},
			{
				Name:  "cancel-pending",
				Usage: "Replace every pending transaction of a local wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "wallet",
						Usage:    "name of a wallet backed by key_file",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "chain",
						Usage: "eth or base",
						Value: "eth",
					},
					optionConfig,
				},
				Action: cancelPending,
			},
			{
				Name:  "serve",
				Usage: "Serve the console as a JSON API with Prometheus metrics",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address, overrides http_addr",
					},
					optionYes,
					optionConfig,
				},
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.Writer, "exited with error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) config.Config {
	cfg, err := config.Load(c.String(optionConfig.Name))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.LogLevel)
	return cfg
}

type session struct {
	cfg     config.Config
	wallets *config.Wallets
	console *console.Console
}

func (s *session) Close() {
	s.console.Close()
	s.wallets.Close()
}

func openSession(c *cli.Context, cfg config.Config, observer console.Observer) (*session, error) {
	approver := provider.PromptApprover(os.Stdin, c.App.ErrWriter)
	if c.Bool(optionYes.Name) {
		approver = provider.AutoApprove
	}
	wallets, err := cfg.OpenWallets(c.Context, approver, provider.TerminalPassword, provider.DialChain)
	if err != nil {
		return nil, err
	}
	cons := console.New(wallets.Slots[0], wallets.Slots[1], cfg.ConsoleOptions(observer))
	return &session{cfg: cfg, wallets: wallets, console: cons}, nil
}

// connectAll connects every wallet. Failures are kept in the console message.
func (s *session) connectAll(ctx context.Context) {
	for _, name := range s.console.Names() {
		if _, err := s.console.Connect(ctx, name); err != nil {
			log.Error().Err(err).Str("wallet", name).Msg("connect failed")
		}
	}
}

func balances(c *cli.Context) error {
	s, err := openSession(c, loadConfig(c), nil)
	if err != nil {
		return err
	}
	defer s.Close()
	s.connectAll(c.Context)
	printState(c.App.Writer, s.console.State())
	return nil
}

func bridge(c *cli.Context) error {
	from, err := shared.ParseChain(c.String("from"))
	if err != nil {
		return err
	}
	return submit(c, func(ctx context.Context, cons *console.Console) (transfer.Batch, error) {
		return cons.Bridge(ctx, console.BridgeIntent{
			Amount:  c.String(optionAmount.Name),
			From:    from,
			Percent: c.Int(optionPercent.Name),
		})
	})
}

func send(c *cli.Context) error {
	chain, err := shared.ParseChain(c.String("chain"))
	if err != nil {
		return err
	}
	return submit(c, func(ctx context.Context, cons *console.Console) (transfer.Batch, error) {
		return cons.Send(ctx, console.SendIntent{
			Amount:    c.String(optionAmount.Name),
			Recipient: c.String("to"),
			Chain:     chain,
			Percent:   c.Int(optionPercent.Name),
		})
	})
}

func formatResult(r transfer.Result) string {
	route := r.Chain.String()
	if r.Destination() != r.Chain {
		route += " -> " + r.Destination().String()
	}
	return fmt.Sprintf("%-10s %-11s %s ETH  tx %s", r.Wallet, route, shared.FormatEther(r.Amount), r.TxHash.Hex())
}

func submit(c *cli.Context, run func(context.Context, *console.Console) (transfer.Batch, error)) error {
	cfg := loadConfig(c)
	s, err := openSession(c, cfg, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	s.connectAll(c.Context)

	batch, err := run(c.Context, s.console)
	for _, r := range batch.Results {
		fmt.Fprintln(c.App.Writer, formatResult(r))
	}
	if provider.IsUserRejection(err) {
		fmt.Fprintln(c.App.Writer, "Cancelled: "+provider.ErrUserRejected.Error())
		return nil
	}
	if err != nil {
		return errors.New(s.console.Message())
	}
	fmt.Fprintln(c.App.Writer, s.console.Message())

	// The console's own delayed refresh would race the exit, run it here instead.
	s.console.Close()
	fmt.Fprintf(c.App.Writer, "Refreshing balances in %s...\n", cfg.RefreshDelay)
	select {
	case <-c.Done():
		return nil
	case <-time.After(cfg.RefreshDelay):
	}
	if err := s.console.Refresh(c.Context); err != nil {
		log.Error().Err(err).Msg("refresh failed")
	}
	printState(c.App.Writer, s.console.State())
	return nil
}

func preview(c *cli.Context) error {
	cfg := loadConfig(c)
	p, err := console.PreviewSplit(cfg.WalletNames(), c.String(optionAmount.Name), c.Int(optionPercent.Name), cfg.BridgeFeeBps)
	if err != nil {
		return err
	}
	for _, share := range p.Shares {
		fmt.Fprintf(c.App.Writer, "%s: %s ETH (%d%%)\n", split.DisplayName(share.Wallet), shared.FormatFixed(share.Amount, 4), share.Percent)
	}
	fmt.Fprintf(c.App.Writer, "Estimated received after bridging: %s ETH\n", shared.FormatFixed(p.Received, 4))
	return nil
}

func cancelPending(c *cli.Context) error {
	cfg := loadConfig(c)
	chain, err := shared.ParseChain(c.String("chain"))
	if err != nil {
		return err
	}
	wallets, err := cfg.OpenWallets(c.Context, provider.AutoApprove, provider.TerminalPassword, provider.DialChain)
	if err != nil {
		return err
	}
	defer wallets.Close()

	name := c.String("wallet")
	local, ok := wallets.Local[name]
	if !ok {
		return fmt.Errorf("wallet %s is not a local wallet", name)
	}
	for _, slot := range wallets.Slots {
		if slot.Wallet.Name() != name {
			continue
		}
		if err := slot.Wallet.SwitchOrAddChain(c.Context, cfg.Networks()[chain]); err != nil {
			return err
		}
	}
	return local.CancelPending(c.Context, chain.ID())
}

func serve(c *cli.Context) error {
	cfg := loadConfig(c)
	m := metrics.New()
	s, err := openSession(c, cfg, m)
	if err != nil {
		return err
	}
	defer s.Close()
	s.connectAll(c.Context)

	addr := cfg.HTTPAddr
	if c.String("addr") != "" {
		addr = c.String("addr")
	}
	handler := api.NewHandler(s.console, log.Logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler, m.Handler(), 0),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	interruptSigChan := make(chan os.Signal, 1)
	signal.Notify(interruptSigChan, os.Interrupt, syscall.SIGTERM)

	// Block until interrupt signal OR context's Done channel is closed.
	select {
	case <-interruptSigChan:
	case <-c.Done():
	case err := <-serveErr:
		return err
	}
	fmt.Fprintf(c.App.Writer, "shutting down...\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shut down in time")
	}
	return nil
}

func printState(w io.Writer, state console.State) {
	for _, snap := range state.Wallets {
		fmt.Fprintln(w, formatSnapshot(snap))
	}
	fmt.Fprintf(w, "Total ETH chain: %s ETH\n", shared.FormatFixed(state.Totals.ETH, 4))
	fmt.Fprintf(w, "Total Base chain: %s ETH\n", shared.FormatFixed(state.Totals.Base, 4))
	fmt.Fprintf(w, "Grand total: %s ETH\n", shared.FormatFixed(state.Totals.Grand, 4))
	if state.Message != "" {
		fmt.Fprintln(w, state.Message)
	}
}

func formatSnapshot(s balance.Snapshot) string {
	name := split.DisplayName(s.Name)
	if !s.Connected() {
		return name + ": not connected"
	}
	line := fmt.Sprintf("%s %s  ETH chain: %s ETH  Base chain: %s ETH", name, balance.ShortAddress(s.Address),
		shared.FormatFixed(s.Balance(shared.Ethereum), 4), shared.FormatFixed(s.Balance(shared.Base), 4))
	if s.Token != nil {
		line += fmt.Sprintf("  %s: %s", s.Token.Symbol, shared.FormatUnits(s.Token.Amount, s.Token.Decimals))
	}
	return line
}
