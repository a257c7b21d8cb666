// Package console holds the state of the two-wallet bridge console: the
// connected wallets, their balances, the last message shown to the user, and
// the bridge and send submissions.
package console

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/split"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

const (
	MsgInvalidAmount    = "Please enter a valid amount"
	MsgInvalidRecipient = "Please enter a valid recipient address"
	MsgNotConnected     = "Connect both wallets first"
	MsgBridgeSubmitted  = "Bridge transactions submitted successfully!"
	MsgSendSubmitted    = "Transactions sent successfully!"
)

const (
	DefaultRefreshDelay = 5 * time.Second
	DefaultBridgeFeeBps = 50
)

var (
	ErrBusy         = errors.New("another submission is in progress")
	ErrUnknownSlot  = errors.New("unknown wallet")
	ErrNotConnected = errors.New(MsgNotConnected)
)

// Observer is told about balances and finished submissions.
type Observer interface {
	Dispatched(kind transfer.Kind, outcome string, results []transfer.Result)
	Balances(snaps ...balance.Snapshot)
}

// Slot configures one of the two wallets. Preferred is the chain the wallet is
// moved to before accounts are requested.
type Slot struct {
	Wallet    *provider.Wallet
	Preferred shared.Chain
}

type Options struct {
	Transfer     transfer.Options
	Token        *balance.Token
	RefreshDelay time.Duration
	// BridgeFeeBps is the fee assumed when estimating what a bridge delivers.
	BridgeFeeBps int64
	Observer     Observer
}

type slot struct {
	Slot
	snapshot balance.Snapshot
}

type Console struct {
	opts  Options
	slots [2]*slot

	// ops serialises everything that drives the wallets.
	ops sync.Mutex

	mu      sync.Mutex
	message string
	busy    bool
	refresh *time.Timer
	closed  bool
}

// New builds a console over first and second. For every split, first receives
// the (100-P)% share and second the P% share.
func New(first Slot, second Slot, opts Options) *Console {
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	if opts.BridgeFeeBps < 0 {
		opts.BridgeFeeBps = 0
	}
	opts.Transfer = opts.Transfer.WithDefaults()
	c := &Console{opts: opts}
	for i, s := range []Slot{first, second} {
		c.slots[i] = &slot{Slot: s, snapshot: balance.Empty(s.Wallet.Name(), common.Address{})}
	}
	return c
}

func (c *Console) slotByName(name string) (*slot, error) {
	for _, s := range c.slots {
		if s.Wallet.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
}

// Names returns the slot names in split order.
func (c *Console) Names() []string {
	return []string{c.slots[0].Wallet.Name(), c.slots[1].Wallet.Name()}
}

func (c *Console) setMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = msg
}

func (c *Console) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Console) snapshots() []balance.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return []balance.Snapshot{c.slots[0].snapshot, c.slots[1].snapshot}
}

func (c *Console) setSnapshot(s *slot, snap balance.Snapshot) {
	c.mu.Lock()
	s.snapshot = snap
	c.mu.Unlock()
	if c.opts.Observer != nil {
		c.opts.Observer.Balances(snap)
	}
}

// Connect asks the named wallet for its accounts and loads its balances. The
// wallet's snapshot is replaced as a whole.
func (c *Console) Connect(ctx context.Context, name string) (balance.Snapshot, error) {
	s, err := c.slotByName(name)
	if err != nil {
		return balance.Snapshot{}, err
	}
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.connect(ctx, s)
}

func (c *Console) connect(ctx context.Context, s *slot) (balance.Snapshot, error) {
	snap, err := c.load(ctx, s)
	if err != nil {
		c.setMessage(fmt.Sprintf("Failed to connect %s: %s", split.DisplayName(s.Wallet.Name()), err))
		return balance.Snapshot{}, err
	}
	c.setSnapshot(s, snap)
	log.Info().Str("wallet", s.Wallet.Name()).Str("address", snap.Address.Hex()).
		Str("eth", shared.FormatFixed(snap.ETH, 4)).Str("base", shared.FormatFixed(snap.Base, 4)).
		Msg("wallet connected")
	return snap, nil
}

func (c *Console) load(ctx context.Context, s *slot) (balance.Snapshot, error) {
	params, err := c.opts.Transfer.Networks.Params(s.Preferred)
	if err != nil {
		return balance.Snapshot{}, err
	}
	if err := s.Wallet.SwitchOrAddChain(ctx, params); err != nil {
		return balance.Snapshot{}, err
	}
	accounts, err := s.Wallet.RequestAccounts(ctx)
	if err != nil {
		return balance.Snapshot{}, err
	}
	return balance.Fetch(ctx, s.Wallet, accounts[0], c.opts.Transfer.Networks, c.opts.Token), nil
}

// Refresh reloads every connected wallet.
func (c *Console) Refresh(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	var errs []error
	for i, snap := range c.snapshots() {
		if !snap.Connected() {
			continue
		}
		if _, err := c.connect(ctx, c.slots[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Console) scheduleRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.refresh != nil {
		c.refresh.Stop()
	}
	c.refresh = time.AfterFunc(c.opts.RefreshDelay, func() {
		if err := c.Refresh(context.Background()); err != nil {
			log.Error().Err(err).Msg("scheduled refresh failed")
		}
	})
}

// Close stops any pending refresh.
func (c *Console) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.refresh != nil {
		c.refresh.Stop()
	}
}

type State struct {
	Wallets []balance.Snapshot
	Totals  balance.Totals
	Message string
	Busy    bool
}

func (c *Console) State() State {
	snaps := c.snapshots()
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Wallets: snaps,
		Totals:  balance.Sum(snaps...),
		Message: c.message,
		Busy:    c.busy,
	}
}

type Share struct {
	Wallet  string
	Percent int
	Amount  *big.Int
}

type Preview struct {
	Shares []Share
	// Received is the bridged amount net of the assumed bridge fee.
	Received *big.Int
}

// Preview computes how amount would be split without touching the wallets.
func (c *Console) Preview(amount string, percent int) (Preview, error) {
	return PreviewSplit([2]string{c.slots[0].Wallet.Name(), c.slots[1].Wallet.Name()}, amount, percent, c.opts.BridgeFeeBps)
}

// PreviewSplit splits amount between the wallets named in names and estimates
// what arrives after a bridge fee of feeBps.
func PreviewSplit(names [2]string, amount string, percent int, feeBps int64) (Preview, error) {
	total, err := split.ParseAmount(amount)
	if err != nil {
		return Preview{}, err
	}
	first, second, err := split.Split(total, percent)
	if err != nil {
		return Preview{}, err
	}
	received := new(big.Int).Mul(total, big.NewInt(10_000-feeBps))
	received.Quo(received, big.NewInt(10_000))
	return Preview{
		Shares: []Share{
			{Wallet: names[0], Percent: 100 - percent, Amount: first},
			{Wallet: names[1], Percent: percent, Amount: second},
		},
		Received: received,
	}, nil
}
