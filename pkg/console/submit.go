package console

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/AidanTHWong/wallet/pkg/metrics"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/split"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
)

// BridgeIntent moves Amount off From, Percent of it drawn from the second wallet.
type BridgeIntent struct {
	Amount  string
	From    shared.Chain
	Percent int
}

// SendIntent pays Amount to Recipient on Chain, Percent of it from the second wallet.
type SendIntent struct {
	Amount    string
	Recipient string
	Chain     shared.Chain
	Percent   int
}

// ValidationError is a submission refused before any wallet was asked to sign.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

func (c *Console) Bridge(ctx context.Context, intent BridgeIntent) (transfer.Batch, error) {
	return c.submit(ctx, transfer.KindBridge, intent.Amount, intent.Percent, intent.From, "")
}

func (c *Console) Send(ctx context.Context, intent SendIntent) (transfer.Batch, error) {
	return c.submit(ctx, transfer.KindSend, intent.Amount, intent.Percent, intent.Chain, intent.Recipient)
}

func (c *Console) submit(ctx context.Context, kind transfer.Kind, amount string, percent int, chain shared.Chain, recipient string) (transfer.Batch, error) {
	if !c.ops.TryLock() {
		return transfer.Batch{}, ErrBusy
	}
	defer c.ops.Unlock()
	c.setBusy(true)
	defer c.setBusy(false)

	legs, err := c.plan(kind, amount, percent, chain, recipient)
	if err != nil {
		c.setMessage(err.Error())
		return transfer.Batch{}, err
	}

	batch, err := transfer.Dispatch(ctx, legs...)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if provider.IsUserRejection(err) {
			outcome = metrics.OutcomeRejected
		} else {
			c.setMessage("Failed to " + kind.String() + ": " + err.Error())
		}
		c.observe(kind, outcome, batch.Results)
		return batch, err
	}

	if kind == transfer.KindSend {
		c.setMessage(MsgSendSubmitted)
	} else {
		c.setMessage(MsgBridgeSubmitted)
	}
	c.observe(kind, metrics.OutcomeSuccess, batch.Results)
	c.scheduleRefresh()
	return batch, nil
}

func (c *Console) observe(kind transfer.Kind, outcome string, results []transfer.Result) {
	if c.opts.Observer != nil {
		c.opts.Observer.Dispatched(kind, outcome, results)
	}
}

func (c *Console) setBusy(busy bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = busy
}

// plan validates a submission and builds its legs in dispatch order.
func (c *Console) plan(kind transfer.Kind, amount string, percent int, chain shared.Chain, recipient string) ([]*transfer.Transfer, error) {
	snaps := c.snapshots()
	if !snaps[0].Connected() || !snaps[1].Connected() {
		return nil, &ValidationError{Message: MsgNotConnected, Err: ErrNotConnected}
	}
	if err := split.ValidatePercent(percent); err != nil {
		return nil, invalid(err.Error())
	}
	total, err := split.ParseAmount(amount)
	if err != nil || total.Sign() == 0 {
		return nil, invalid(MsgInvalidAmount)
	}

	var to common.Address
	if kind == transfer.KindSend {
		var ok bool
		if to, ok = parseRecipient(recipient); !ok {
			return nil, invalid(MsgInvalidRecipient)
		}
	}

	first, second, err := split.Split(total, percent)
	if err != nil {
		return nil, invalid(err.Error())
	}
	amounts := []*big.Int{first, second}

	checks := make([]split.Leg, len(c.slots))
	for i, s := range c.slots {
		checks[i] = split.Leg{Wallet: s.Wallet.Name(), Amount: amounts[i], Available: snaps[i].Balance(chain)}
	}
	if err := split.CheckBalances(chain, checks...); err != nil {
		var insufficient *split.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			return nil, invalid(insufficient.Error())
		}
		return nil, err
	}

	legs := make([]*transfer.Transfer, 0, len(c.slots))
	for i, s := range c.slots {
		var (
			leg *transfer.Transfer
			err error
		)
		if kind == transfer.KindSend {
			leg, err = transfer.NewSend(s.Wallet, amounts[i], chain, to, c.opts.Transfer)
		} else {
			leg, err = transfer.NewBridge(s.Wallet, amounts[i], chain, c.opts.Transfer)
		}
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// parseRecipient accepts a hex address. Mixed-case input must carry a valid
// EIP-55 checksum, and the zero address is refused.
func parseRecipient(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, false
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && addr.Hex()[2:] != digits {
		return common.Address{}, false
	}
	return addr, true
}
