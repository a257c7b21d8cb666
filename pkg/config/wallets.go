package config

import (
	"context"
	"fmt"

	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/rs/zerolog/log"
)

// Wallets are the opened wallets of a configuration.
type Wallets struct {
	Slots []console.Slot
	// Local holds the key-backed wallets by name.
	Local map[string]*provider.LocalWallet
}

func (w *Wallets) Close() {
	for _, s := range w.Slots {
		s.Wallet.Close()
	}
}

// OpenWallets connects every configured wallet. Local wallets start out
// knowing Ethereum only and learn Base when asked to add it.
func (cfg Config) OpenWallets(ctx context.Context, approver provider.Approver, password provider.PasswordFunc, dialer provider.Dialer) (*Wallets, error) {
	networks := cfg.Networks()
	opened := &Wallets{Local: make(map[string]*provider.LocalWallet)}
	for _, wc := range cfg.Wallets {
		preferred, err := shared.ParseChain(wc.PreferredChain)
		if err != nil {
			opened.Close()
			return nil, err
		}
		w, err := cfg.openWallet(ctx, wc, networks[shared.Ethereum], approver, password, dialer, opened)
		if err != nil {
			opened.Close()
			return nil, err
		}
		opened.Slots = append(opened.Slots, console.Slot{Wallet: w, Preferred: preferred})
	}
	return opened, nil
}

func (cfg Config) openWallet(
	ctx context.Context,
	wc Wallet,
	initial shared.NetworkParams,
	approver provider.Approver,
	password provider.PasswordFunc,
	dialer provider.Dialer,
	opened *Wallets,
) (*provider.Wallet, error) {
	if !wc.Local() {
		log.Info().Str("wallet", wc.Name).Str("url", wc.URL).Msg("dialing remote wallet")
		return provider.Dial(ctx, wc.Name, wc.URL)
	}

	key, err := provider.LoadKey(wc.KeyFile, wc.PasswordFile, password)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", wc.Name, err)
	}
	local, err := provider.NewLocalWallet(ctx, provider.LocalOptions{
		Name:     wc.Name,
		Key:      key,
		Networks: []shared.NetworkParams{initial},
		Approver: approver,
		Dialer:   dialer,
	})
	if err != nil {
		return nil, err
	}
	w, err := local.Wallet()
	if err != nil {
		return nil, err
	}
	opened.Local[wc.Name] = local
	return w, nil
}
