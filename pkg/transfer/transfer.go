// Package transfer submits bridge and send transactions through wallets.
package transfer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/listener"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

type Kind int

const (
	KindBridge Kind = iota
	KindSend
)

func (k Kind) String() string {
	if k == KindSend {
		return "send"
	}
	return "bridge"
}

type Options struct {
	Networks     balance.Networks
	Contracts    Contracts
	WaitAttempts int
	WaitInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		Networks:     balance.DefaultNetworks(),
		Contracts:    DefaultContracts(),
		WaitAttempts: 60,
		WaitInterval: 5 * time.Second,
	}
}

// WithDefaults fills every unset field from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Networks == nil {
		o.Networks = d.Networks
	}
	if o.Contracts.Portal == (common.Address{}) {
		o.Contracts.Portal = d.Contracts.Portal
	}
	if o.Contracts.L2Bridge == (common.Address{}) {
		o.Contracts.L2Bridge = d.Contracts.L2Bridge
	}
	if o.WaitAttempts <= 0 {
		o.WaitAttempts = d.WaitAttempts
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = d.WaitInterval
	}
	return o
}

// Transfer is one wallet's leg of a bridge or send.
type Transfer struct {
	kind      Kind
	wallet    *provider.Wallet
	amount    *big.Int
	chain     shared.Chain
	recipient common.Address
	params    shared.NetworkParams
	opts      Options
}

// Result describes a leg that was included on chain.
type Result struct {
	Wallet  string
	Kind    Kind
	Chain   shared.Chain
	From    common.Address
	Amount  *big.Int
	TxHash  common.Hash
	Receipt *types.Receipt
	// Event is the bridge contract's record of the leg; nil for sends or
	// when the contract emitted nothing recognisable.
	Event *listener.BridgeInitiatedEvent
}

// Destination is the chain the leg's funds arrive on.
func (r Result) Destination() shared.Chain {
	if r.Kind == KindBridge {
		return r.Chain.Counterpart()
	}
	return r.Chain
}

// NewBridge moves amount from source to the other chain, to the wallet's own address.
func NewBridge(w *provider.Wallet, amount *big.Int, source shared.Chain, opts Options) (*Transfer, error) {
	return newTransfer(KindBridge, w, amount, source, common.Address{}, opts)
}

// NewSend pays amount to recipient on chain.
func NewSend(w *provider.Wallet, amount *big.Int, chain shared.Chain, recipient common.Address, opts Options) (*Transfer, error) {
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("recipient is required")
	}
	return newTransfer(KindSend, w, amount, chain, recipient, opts)
}

func newTransfer(kind Kind, w *provider.Wallet, amount *big.Int, chain shared.Chain, recipient common.Address, opts Options) (*Transfer, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s amount", kind)
	}
	params, err := opts.Networks.Params(chain)
	if err != nil {
		return nil, err
	}
	if opts.WaitAttempts <= 0 {
		opts.WaitAttempts = 1
	}
	return &Transfer{
		kind:      kind,
		wallet:    w,
		amount:    new(big.Int).Set(amount),
		chain:     chain,
		recipient: recipient,
		params:    params,
		opts:      opts,
	}, nil
}

func (t *Transfer) Kind() Kind {
	return t.kind
}

func (t *Transfer) Wallet() string {
	return t.wallet.Name()
}

func (t *Transfer) Amount() *big.Int {
	return new(big.Int).Set(t.amount)
}

// Start submits the leg and waits until it is included.
func (t *Transfer) Start(ctx context.Context) (Result, error) {
	accounts, err := t.wallet.RequestAccounts(ctx)
	if err != nil {
		return Result{}, t.fail(err)
	}
	from := accounts[0]

	if err := t.wallet.SwitchOrAddChain(ctx, t.params); err != nil {
		return Result{}, t.fail(err)
	}

	args, err := t.txArgs(from)
	if err != nil {
		return Result{}, t.fail(err)
	}
	hash, err := t.wallet.SendTransaction(ctx, args)
	if err != nil {
		return Result{}, t.fail(err)
	}
	log.Info().Str("wallet", t.wallet.Name()).Str("kind", t.kind.String()).Str("chain", t.chain.String()).
		Str("hash", hash.Hex()).Str("amount", shared.FormatEther(t.amount)).Msg("transaction submitted")

	receipt, err := shared.WaitMined(ctx, t.wallet.Backend(), hash, t.opts.WaitAttempts, t.opts.WaitInterval)
	if err != nil {
		return Result{}, t.fail(err)
	}

	result := Result{
		Wallet:  t.wallet.Name(),
		Kind:    t.kind,
		Chain:   t.chain,
		From:    from,
		Amount:  new(big.Int).Set(t.amount),
		TxHash:  hash,
		Receipt: receipt,
	}
	if t.kind == KindBridge {
		result.Event = t.obtainEvent(receipt)
	}
	return result, nil
}

func (t *Transfer) txArgs(from common.Address) (provider.TxArgs, error) {
	value := (*hexutil.Big)(new(big.Int).Set(t.amount))
	if t.kind == KindSend {
		gas := hexutil.Uint64(SendGas)
		to := t.recipient
		return provider.TxArgs{From: from, To: &to, Value: value, Gas: &gas}, nil
	}

	var (
		to   common.Address
		data []byte
		err  error
	)
	switch t.chain {
	case shared.Ethereum:
		to = t.opts.Contracts.Portal
		data, err = depositCalldata(from, t.amount)
	case shared.Base:
		to = t.opts.Contracts.L2Bridge
		data, err = withdrawCalldata(from, t.amount)
	default:
		err = fmt.Errorf("cannot bridge from %s", t.chain)
	}
	if err != nil {
		return provider.TxArgs{}, err
	}
	gas := hexutil.Uint64(BridgeGas)
	return provider.TxArgs{From: from, To: &to, Value: value, Gas: &gas, Data: data}, nil
}

func (t *Transfer) obtainEvent(receipt *types.Receipt) *listener.BridgeInitiatedEvent {
	var (
		event listener.BridgeInitiatedEvent
		found bool
		err   error
	)
	if t.chain == shared.Ethereum {
		event, found, err = listener.ObtainDeposit(receipt, t.opts.Contracts.Portal)
	} else {
		event, found, err = listener.ObtainWithdrawal(receipt, t.opts.Contracts.L2Bridge)
	}
	if err != nil {
		log.Warn().Err(err).Str("wallet", t.wallet.Name()).Msg("could not decode bridge event")
		return nil
	}
	if !found {
		log.Warn().Str("wallet", t.wallet.Name()).Str("hash", receipt.TxHash.Hex()).Msg("no bridge event in receipt")
		return nil
	}
	log.Info().Msgf("Bridge initiated on %s, from: %s, to: %s, amount: %s, block: %d",
		event.Chain, event.From.Hex(), event.To.Hex(), shared.FormatEther(event.Amount), event.Block)
	return &event
}

// fail collapses every form of owner cancellation into ErrUserRejected.
func (t *Transfer) fail(err error) error {
	if provider.IsUserRejection(err) {
		return provider.ErrUserRejected
	}
	return fmt.Errorf("%s failed: %w", t.kind, err)
}
