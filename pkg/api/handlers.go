// Package api serves the console over HTTP as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/console"
	"github.com/AidanTHWong/wallet/pkg/provider"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/split"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Service is the part of the console the API drives.
type Service interface {
	State() console.State
	Connect(ctx context.Context, name string) (balance.Snapshot, error)
	Refresh(ctx context.Context) error
	Preview(amount string, percent int) (console.Preview, error)
	Bridge(ctx context.Context, intent console.BridgeIntent) (transfer.Batch, error)
	Send(ctx context.Context, intent console.SendIntent) (transfer.Batch, error)
}

type Handler struct {
	service Service
	logger  zerolog.Logger
}

func NewHandler(service Service, logger zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type tokenView struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

type walletView struct {
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Address   string     `json:"address,omitempty"`
	ETH       string     `json:"eth"`
	Base      string     `json:"base"`
	Token     *tokenView `json:"token,omitempty"`
}

type stateView struct {
	Wallets []walletView `json:"wallets"`
	Totals  struct {
		ETH   string `json:"eth"`
		Base  string `json:"base"`
		Grand string `json:"grand"`
	} `json:"totals"`
	Message string `json:"message"`
	Busy    bool   `json:"busy"`
}

type txView struct {
	Wallet string `json:"wallet"`
	Chain  string `json:"chain"`
	From   string `json:"from"`
	Hash   string `json:"hash"`
	Amount string `json:"amount"`
}

type batchView struct {
	Operation    string   `json:"operation"`
	Transactions []txView `json:"transactions"`
	Message      string   `json:"message"`
}

func newWalletView(s balance.Snapshot) walletView {
	v := walletView{
		Name:      s.Name,
		Connected: s.Connected(),
		ETH:       shared.FormatFixed(s.Balance(shared.Ethereum), 4),
		Base:      shared.FormatFixed(s.Balance(shared.Base), 4),
	}
	if v.Connected {
		v.Address = s.Address.Hex()
	}
	if s.Token != nil {
		v.Token = &tokenView{Symbol: s.Token.Symbol, Amount: shared.FormatUnits(s.Token.Amount, s.Token.Decimals)}
	}
	return v
}

func newStateView(s console.State) stateView {
	v := stateView{Message: s.Message, Busy: s.Busy, Wallets: make([]walletView, 0, len(s.Wallets))}
	for _, w := range s.Wallets {
		v.Wallets = append(v.Wallets, newWalletView(w))
	}
	v.Totals.ETH = shared.FormatFixed(s.Totals.ETH, 4)
	v.Totals.Base = shared.FormatFixed(s.Totals.Base, 4)
	v.Totals.Grand = shared.FormatFixed(s.Totals.Grand, 4)
	return v
}

func (h *Handler) newBatchView(b transfer.Batch) batchView {
	v := batchView{Operation: b.ID.String(), Transactions: []txView{}, Message: h.service.State().Message}
	for _, r := range b.Results {
		v.Transactions = append(v.Transactions, txView{
			Wallet: r.Wallet,
			Chain:  r.Chain.String(),
			From:   r.From.Hex(),
			Hash:   r.TxHash.Hex(),
			Amount: shared.FormatEther(r.Amount),
		})
	}
	return v
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, newStateView(h.service.State()))
}

func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, err := h.service.Connect(r.Context(), name)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, newWalletView(snap))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, newStateView(h.service.State()))
}

func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	percent, err := percentParam(r.URL.Query().Get("percent"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.service.Preview(r.URL.Query().Get("amount"), percent)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	type shareView struct {
		Wallet  string `json:"wallet"`
		Percent int    `json:"percent"`
		Amount  string `json:"amount"`
	}
	shares := make([]shareView, 0, len(p.Shares))
	for _, s := range p.Shares {
		shares = append(shares, shareView{Wallet: s.Wallet, Percent: s.Percent, Amount: shared.FormatFixed(s.Amount, 4)})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"shares":   shares,
		"received": shared.FormatFixed(p.Received, 4),
	})
}

func (h *Handler) HandleBridge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount  string `json:"amount"`
		From    string `json:"from"`
		Percent *int   `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chain, err := shared.ParseChain(req.From)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.service.Bridge(r.Context(), console.BridgeIntent{
		Amount:  req.Amount,
		From:    chain,
		Percent: percentOrDefault(req.Percent),
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.newBatchView(batch))
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    string `json:"amount"`
		Recipient string `json:"recipient"`
		Chain     string `json:"chain"`
		Percent   *int   `json:"percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chain, err := shared.ParseChain(req.Chain)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.service.Send(r.Context(), console.SendIntent{
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Chain:     chain,
		Percent:   percentOrDefault(req.Percent),
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.newBatchView(batch))
}

func percentOrDefault(p *int) int {
	if p == nil {
		return split.DefaultPercent
	}
	return *p
}

func percentParam(s string) (int, error) {
	if s == "" {
		return split.DefaultPercent, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, split.ErrInvalidPercent
	}
	return p, nil
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	var verr *console.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Message)

	case errors.Is(err, console.ErrUnknownSlot):
		h.respondError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, console.ErrBusy):
		h.respondError(w, http.StatusConflict, err.Error())

	case provider.IsUserRejection(err):
		h.respondError(w, http.StatusConflict, provider.ErrUserRejected.Error())

	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.respondError(w, http.StatusBadGateway, err.Error())
	}
}
