package balance

import (
	"context"
	"fmt"
	"math/big"

	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Token is an ERC-20 holding tracked alongside the native balances.
type Token struct {
	Symbol  string
	Address common.Address
	Chain   shared.Chain
}

type TokenHolding struct {
	Symbol   string
	Amount   *big.Int
	Decimals uint8
}

// Snapshot is the state of one wallet at one point in time. Snapshots are
// replaced, never edited.
type Snapshot struct {
	Name    string
	Address common.Address
	ETH     *big.Int
	Base    *big.Int
	Token   *TokenHolding
}

func Empty(name string, address common.Address) Snapshot {
	return Snapshot{Name: name, Address: address, ETH: new(big.Int), Base: new(big.Int)}
}

func (s Snapshot) Connected() bool {
	return s.Address != (common.Address{})
}

func (s Snapshot) Balance(chain shared.Chain) *big.Int {
	var v *big.Int
	switch chain {
	case shared.Ethereum:
		v = s.ETH
	case shared.Base:
		v = s.Base
	}
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Networks maps every supported chain to the parameters used to reach it.
type Networks map[shared.Chain]shared.NetworkParams

func DefaultNetworks() Networks {
	n := make(Networks, len(shared.Chains))
	for _, c := range shared.Chains {
		n[c] = shared.DefaultNetworkParams(c)
	}
	return n
}

func (n Networks) Params(c shared.Chain) (shared.NetworkParams, error) {
	p, ok := n[c]
	if !ok {
		return shared.NetworkParams{}, fmt.Errorf("no network parameters for %s", c)
	}
	return p, nil
}

// NativeBalance moves w to chain and reads address's balance there.
func NativeBalance(ctx context.Context, w *provider.Wallet, params shared.NetworkParams, address common.Address) (*big.Int, error) {
	if err := w.SwitchOrAddChain(ctx, params); err != nil {
		return nil, err
	}
	return w.Backend().BalanceAt(ctx, address, nil)
}

// Fetch reads the balances of address on every chain. A chain that cannot be
// read counts as a zero balance.
func Fetch(ctx context.Context, w *provider.Wallet, address common.Address, networks Networks, token *Token) Snapshot {
	snap := Empty(w.Name(), address)
	for _, c := range shared.Chains {
		params, err := networks.Params(c)
		if err != nil {
			log.Error().Err(err).Str("wallet", w.Name()).Msg("balance skipped")
			continue
		}
		bal, err := NativeBalance(ctx, w, params, address)
		if err != nil {
			log.Error().Err(err).Str("wallet", w.Name()).Str("chain", c.String()).Msg("balance error")
			continue
		}
		switch c {
		case shared.Ethereum:
			snap.ETH = bal
		case shared.Base:
			snap.Base = bal
		}
	}

	if token != nil {
		snap.Token = fetchToken(ctx, w, address, networks, *token)
	}
	return snap
}

func fetchToken(ctx context.Context, w *provider.Wallet, address common.Address, networks Networks, token Token) *TokenHolding {
	holding := &TokenHolding{Symbol: token.Symbol, Amount: new(big.Int)}
	params, err := networks.Params(token.Chain)
	if err == nil {
		err = w.SwitchOrAddChain(ctx, params)
	}
	if err != nil {
		log.Error().Err(err).Str("wallet", w.Name()).Str("token", token.Symbol).Msg("token balance error")
		return holding
	}
	amount, decimals, err := TokenBalance(ctx, w.Backend(), token.Address, address)
	if err != nil {
		log.Error().Err(err).Str("wallet", w.Name()).Str("token", token.Symbol).Msg("token balance error")
		return holding
	}
	holding.Amount = amount
	holding.Decimals = decimals
	return holding
}

type Totals struct {
	ETH   *big.Int
	Base  *big.Int
	Grand *big.Int
}

func Sum(snaps ...Snapshot) Totals {
	t := Totals{ETH: new(big.Int), Base: new(big.Int), Grand: new(big.Int)}
	for _, s := range snaps {
		t.ETH.Add(t.ETH, s.Balance(shared.Ethereum))
		t.Base.Add(t.Base, s.Balance(shared.Base))
	}
	t.Grand.Add(t.ETH, t.Base)
	return t
}

// ShortAddress renders an address as 0x1234...abcd.
func ShortAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
