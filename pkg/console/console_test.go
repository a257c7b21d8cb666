package console

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/metrics"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/provider/providertest"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	outcomes  []string
	legs      int
	snapshots int
}

func (r *recorder) Dispatched(_ transfer.Kind, outcome string, results []transfer.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	r.legs += len(results)
}

func (r *recorder) Balances(snaps ...balance.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots += len(snaps)
}

func (r *recorder) lastOutcome() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outcomes) == 0 {
		return ""
	}
	return r.outcomes[len(r.outcomes)-1]
}

type fixture struct {
	console  *Console
	eth      *providertest.Chain
	base     *providertest.Chain
	phantom  common.Address
	metamask common.Address
	observer *recorder
}

type walletOpts struct {
	approver provider.Approver
	noBase   bool
}

func newFixture(t *testing.T, phantomOpts, metamaskOpts walletOpts) *fixture {
	t.Helper()
	f := &fixture{
		eth:      providertest.NewChain(shared.EthereumChainID),
		base:     providertest.NewChain(shared.BaseChainID),
		observer: &recorder{},
	}
	opts := transfer.DefaultOptions()
	opts.WaitAttempts = 3
	opts.WaitInterval = time.Millisecond

	newWallet := func(name string, wo walletOpts) (*provider.Wallet, common.Address) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		chains := map[string]*providertest.Chain{opts.Networks[shared.Ethereum].RPCURLs[0]: f.eth}
		if !wo.noBase {
			chains[opts.Networks[shared.Base].RPCURLs[0]] = f.base
		}
		local, err := provider.NewLocalWallet(context.Background(), provider.LocalOptions{
			Name:     name,
			Key:      key,
			Networks: []shared.NetworkParams{opts.Networks[shared.Ethereum]},
			Approver: wo.approver,
			Dialer:   providertest.Dialer(chains),
		})
		require.NoError(t, err)
		w, err := local.Wallet()
		require.NoError(t, err)
		t.Cleanup(w.Close)
		return w, local.Address()
	}

	phantom, phantomAddr := newWallet("phantom", phantomOpts)
	metamask, metamaskAddr := newWallet("metamask", metamaskOpts)
	f.phantom, f.metamask = phantomAddr, metamaskAddr

	f.console = New(
		Slot{Wallet: phantom, Preferred: shared.Base},
		Slot{Wallet: metamask, Preferred: shared.Ethereum},
		Options{
			Transfer:     opts,
			RefreshDelay: 20 * time.Millisecond,
			BridgeFeeBps: DefaultBridgeFeeBps,
			Observer:     f.observer,
		},
	)
	t.Cleanup(f.console.Close)
	return f
}

func (f *fixture) fund(eth, base int64) {
	for _, addr := range []common.Address{f.phantom, f.metamask} {
		f.eth.SetBalance(addr, big.NewInt(eth))
		f.base.SetBalance(addr, big.NewInt(base))
	}
}

func (f *fixture) connectAll(t *testing.T) {
	t.Helper()
	for _, name := range f.console.Names() {
		_, err := f.console.Connect(context.Background(), name)
		require.NoError(t, err)
	}
}

func rejectAll(context.Context, provider.ApprovalRequest) (bool, error) {
	return false, nil
}

func TestConnect(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether/2)

	snap, err := f.console.Connect(context.Background(), "phantom")
	require.NoError(t, err)
	assert.Equal(t, f.phantom, snap.Address)
	assert.Equal(t, big.NewInt(params.Ether), snap.ETH)
	assert.Equal(t, big.NewInt(params.Ether/2), snap.Base)

	state := f.console.State()
	assert.True(t, state.Wallets[0].Connected())
	assert.False(t, state.Wallets[1].Connected())
	assert.Equal(t, "1.5000", shared.FormatFixed(state.Totals.Grand, 4))
	assert.Equal(t, 1, f.observer.snapshots)
}

func TestConnectUnknownWallet(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	_, err := f.console.Connect(context.Background(), "ledger")
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestConnectFailureSetsMessage(t *testing.T) {
	f := newFixture(t, walletOpts{noBase: true}, walletOpts{})

	_, err := f.console.Connect(context.Background(), "phantom")
	require.Error(t, err)
	assert.Contains(t, f.console.Message(), "Failed to connect Phantom: failed to add Base network")
	assert.False(t, f.console.State().Wallets[0].Connected())
}

func TestSubmitRequiresBothWallets(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	_, err := f.console.Connect(context.Background(), "phantom")
	require.NoError(t, err)

	_, err = f.console.Bridge(context.Background(), BridgeIntent{Amount: "0.1", From: shared.Ethereum, Percent: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, MsgNotConnected, f.console.Message())
	assert.Empty(t, f.eth.Sent())
}

func TestSubmitRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	for _, amount := range []string{"", "0", "abc", "-1"} {
		_, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: amount, From: shared.Ethereum, Percent: 50})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, amount)
		assert.Equal(t, MsgInvalidAmount, f.console.Message(), amount)
	}
	assert.Empty(t, f.eth.Sent())
}

func TestSubmitRejectsInvalidPercent(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	_, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: "0.1", From: shared.Ethereum, Percent: 101})
	require.Error(t, err)
	assert.Contains(t, f.console.Message(), "percentage must be between 0 and 100")
}

func TestSendRejectsInvalidRecipient(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	_, err := f.console.Send(context.Background(), SendIntent{Amount: "0.1", Recipient: "0x1234", Chain: shared.Base, Percent: 50})
	require.Error(t, err)
	assert.Equal(t, MsgInvalidRecipient, f.console.Message())
	assert.Empty(t, f.base.Sent())
}

func TestSendRejectsBadChecksum(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	// Valid EIP-55 form ends in "BeAed".
	_, err := f.console.Send(context.Background(), SendIntent{Amount: "0.1", Recipient: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", Chain: shared.Base, Percent: 50})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgInvalidRecipient, f.console.Message())
	assert.Empty(t, f.base.Sent())
}

func TestSendRejectsZeroAddress(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	_, err := f.console.Send(context.Background(), SendIntent{Amount: "0.1", Recipient: common.Address{}.Hex(), Chain: shared.Base, Percent: 50})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgInvalidRecipient, f.console.Message())
	assert.Empty(t, f.base.Sent())
}

func TestParseRecipient(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},
		{"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", true},
		{" 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed ", true},
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", false},
		{"0x0000000000000000000000000000000000000000", false},
		{"0x1234", false},
		{"", false},
	}
	for _, tt := range tests {
		addr, ok := parseRecipient(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if ok {
			assert.Equal(t, common.HexToAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"), addr, tt.in)
		}
	}
}

func TestBridgeInsufficientBalance(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	_, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: "2.5", From: shared.Ethereum, Percent: 50})
	require.Error(t, err)
	assert.Equal(t, "Insufficient Phantom ETH balance", f.console.Message())

	_, err = f.console.Bridge(context.Background(), BridgeIntent{Amount: "1.5", From: shared.Base, Percent: 100})
	require.Error(t, err)
	assert.Equal(t, "Insufficient MetaMask Base balance", f.console.Message())
	assert.Empty(t, f.eth.Sent())
	assert.Empty(t, f.base.Sent())
}

func TestBridgeSplitsAndRefreshes(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, 0)
	f.connectAll(t)

	batch, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: "1", From: shared.Ethereum, Percent: 30})
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)
	assert.Equal(t, MsgBridgeSubmitted, f.console.Message())

	sent := f.eth.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, big.NewInt(7*params.Ether/10), sent[0].Value())
	assert.Equal(t, big.NewInt(3*params.Ether/10), sent[1].Value())
	assert.Equal(t, f.phantom, batch.Results[0].From)
	assert.Equal(t, f.metamask, batch.Results[1].From)
	assert.Equal(t, metrics.OutcomeSuccess, f.observer.lastOutcome())

	assert.Eventually(t, func() bool {
		return f.console.State().Wallets[0].ETH.Cmp(big.NewInt(3*params.Ether/10)) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSendZeroLegIsSkipped(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(0, params.Ether)
	f.connectAll(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	batch, err := f.console.Send(context.Background(), SendIntent{Amount: "0.5", Recipient: recipient.Hex(), Chain: shared.Base, Percent: 100})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, "metamask", batch.Results[0].Wallet)
	assert.Equal(t, MsgSendSubmitted, f.console.Message())
	assert.Equal(t, big.NewInt(params.Ether/2), f.base.Balance(recipient))
}

func TestUserRejectionLeavesMessageUntouched(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{approver: rejectAll})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)

	_, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: "1", From: shared.Base, Percent: 50})
	require.Error(t, err)
	assert.True(t, provider.IsUserRejection(err))
	assert.Empty(t, f.console.Message())
	assert.Equal(t, metrics.OutcomeRejected, f.observer.lastOutcome())
	// The first leg is not rolled back.
	assert.Len(t, f.base.Sent(), 1)
}

func TestFailureSetsMessage(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.fund(params.Ether, params.Ether)
	f.connectAll(t)
	f.base.SendErr = errors.New("insufficient funds for gas")

	_, err := f.console.Send(context.Background(), SendIntent{
		Amount:    "0.1",
		Recipient: "0x00000000000000000000000000000000000000cc",
		Chain:     shared.Base,
		Percent:   50,
	})
	require.Error(t, err)
	assert.Equal(t, "Failed to send: send failed: insufficient funds for gas", f.console.Message())
	assert.Equal(t, metrics.OutcomeFailed, f.observer.lastOutcome())
}

func TestSubmitWhileBusy(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})
	f.console.ops.Lock()
	defer f.console.ops.Unlock()

	_, err := f.console.Bridge(context.Background(), BridgeIntent{Amount: "1", From: shared.Ethereum, Percent: 50})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, walletOpts{}, walletOpts{})

	p, err := f.console.Preview("1", 25)
	require.NoError(t, err)
	require.Len(t, p.Shares, 2)
	assert.Equal(t, "phantom", p.Shares[0].Wallet)
	assert.Equal(t, 75, p.Shares[0].Percent)
	assert.Equal(t, "0.7500", shared.FormatFixed(p.Shares[0].Amount, 4))
	assert.Equal(t, "0.2500", shared.FormatFixed(p.Shares[1].Amount, 4))
	assert.Equal(t, "0.9950", shared.FormatFixed(p.Received, 4))

	_, err = f.console.Preview("x", 25)
	assert.Error(t, err)
}
