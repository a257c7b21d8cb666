package api

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) State() console.State {
	return m.Called().Get(0).(console.State)
}

func (m *mockService) Connect(ctx context.Context, name string) (balance.Snapshot, error) {
	args := m.Called(name)
	return args.Get(0).(balance.Snapshot), args.Error(1)
}

func (m *mockService) Refresh(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *mockService) Preview(amount string, percent int) (console.Preview, error) {
	args := m.Called(amount, percent)
	return args.Get(0).(console.Preview), args.Error(1)
}

func (m *mockService) Bridge(ctx context.Context, intent console.BridgeIntent) (transfer.Batch, error) {
	args := m.Called(intent)
	return args.Get(0).(transfer.Batch), args.Error(1)
}

func (m *mockService) Send(ctx context.Context, intent console.SendIntent) (transfer.Batch, error) {
	args := m.Called(intent)
	return args.Get(0).(transfer.Batch), args.Error(1)
}

var phantomAddr = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func setupRouter(metrics http.Handler) (http.Handler, *mockService) {
	svc := new(mockService)
	return NewRouter(NewHandler(svc, zerolog.Nop()), metrics, 0), svc
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleState(t *testing.T) {
	router, svc := setupRouter(nil)
	snaps := []balance.Snapshot{
		{Name: "phantom", Address: phantomAddr, ETH: big.NewInt(params.Ether), Base: big.NewInt(params.Ether / 2)},
		balance.Empty("metamask", common.Address{}),
	}
	svc.On("State").Return(console.State{Wallets: snaps, Totals: balance.Sum(snaps...), Message: "hello"})

	w := do(t, router, "GET", "/api/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"wallets": [
			{"name": "phantom", "connected": true, "address": "`+phantomAddr.Hex()+`", "eth": "1.0000", "base": "0.5000"},
			{"name": "metamask", "connected": false, "eth": "0.0000", "base": "0.0000"}
		],
		"totals": {"eth": "1.0000", "base": "0.5000", "grand": "1.5000"},
		"message": "hello",
		"busy": false
	}`, w.Body.String())
}

func TestHandleConnect(t *testing.T) {
	router, svc := setupRouter(nil)
	svc.On("Connect", "phantom").Return(balance.Snapshot{Name: "phantom", Address: phantomAddr, ETH: big.NewInt(0), Base: big.NewInt(0)}, nil)
	svc.On("Connect", "ledger").Return(balance.Snapshot{}, console.ErrUnknownSlot)

	w := do(t, router, "POST", "/api/wallets/phantom/connect", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), phantomAddr.Hex())

	w = do(t, router, "POST", "/api/wallets/ledger/connect", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestHandleBridge(t *testing.T) {
	router, svc := setupRouter(nil)
	id := uuid.New()
	hash := common.HexToHash("0xabc")
	svc.On("Bridge", console.BridgeIntent{Amount: "0.5", From: shared.Base, Percent: 50}).Return(transfer.Batch{
		ID: id,
		Results: []transfer.Result{{
			Wallet: "phantom", Chain: shared.Base, From: phantomAddr, TxHash: hash, Amount: big.NewInt(params.Ether / 4),
		}},
	}, nil)
	svc.On("State").Return(console.State{Message: console.MsgBridgeSubmitted})

	w := do(t, router, "POST", "/api/bridge", `{"amount": "0.5", "from": "base"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"operation": "`+id.String()+`",
		"transactions": [{"wallet": "phantom", "chain": "Base", "from": "`+phantomAddr.Hex()+`", "hash": "`+hash.Hex()+`", "amount": "0.25"}],
		"message": "Bridge transactions submitted successfully!"
	}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestHandleBridgeBadChain(t *testing.T) {
	router, _ := setupRouter(nil)
	w := do(t, router, "POST", "/api/bridge", `{"amount": "0.5", "from": "solana"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/bridge", `{"amount": 0.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSendErrors(t *testing.T) {
	router, svc := setupRouter(nil)
	intent := func(recipient string) console.SendIntent {
		return console.SendIntent{Amount: "1", Recipient: recipient, Chain: shared.Ethereum, Percent: 20}
	}
	svc.On("Send", intent("bad")).Return(transfer.Batch{}, &console.ValidationError{Message: console.MsgInvalidRecipient})
	svc.On("Send", intent("busy")).Return(transfer.Batch{}, console.ErrBusy)
	svc.On("Send", intent("denied")).Return(transfer.Batch{}, provider.ErrUserRejected)
	svc.On("Send", intent("down")).Return(transfer.Batch{}, errors.New("send failed: connection refused"))

	cases := []struct {
		recipient string
		status    int
		body      string
	}{
		{"bad", http.StatusBadRequest, `{"error": "Please enter a valid recipient address"}`},
		{"busy", http.StatusConflict, `{"error": "another submission is in progress"}`},
		{"denied", http.StatusConflict, `{"error": "denied by user"}`},
		{"down", http.StatusBadGateway, `{"error": "send failed: connection refused"}`},
	}
	for _, tc := range cases {
		w := do(t, router, "POST", "/api/send", `{"amount": "1", "recipient": "`+tc.recipient+`", "chain": "eth", "percent": 20}`)
		assert.Equal(t, tc.status, w.Code, tc.recipient)
		assert.JSONEq(t, tc.body, w.Body.String(), tc.recipient)
	}
	svc.AssertExpectations(t)
}

func TestHandlePreview(t *testing.T) {
	router, svc := setupRouter(nil)
	svc.On("Preview", "1", 25).Return(console.Preview{
		Shares: []console.Share{
			{Wallet: "phantom", Percent: 75, Amount: big.NewInt(3 * params.Ether / 4)},
			{Wallet: "metamask", Percent: 25, Amount: big.NewInt(params.Ether / 4)},
		},
		Received: big.NewInt(995 * params.Ether / 1000),
	}, nil)

	w := do(t, router, "GET", "/api/preview?amount=1&percent=25", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"shares": [
			{"wallet": "phantom", "percent": 75, "amount": "0.7500"},
			{"wallet": "metamask", "percent": 25, "amount": "0.2500"}
		],
		"received": "0.9950"
	}`, w.Body.String())

	w = do(t, router, "GET", "/api/preview?amount=1&percent=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh(t *testing.T) {
	router, svc := setupRouter(nil)
	svc.On("Refresh").Return(nil)
	svc.On("State").Return(console.State{Totals: balance.Sum()})

	w := do(t, router, "POST", "/api/refresh", "")
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestMetricsMounted(t *testing.T) {
	router, _ := setupRouter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	w := do(t, router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	router, _ = setupRouter(nil)
	w = do(t, router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	h := NewHandler(new(mockService), zerolog.Nop())
	handler := h.RecoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
