package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const DefaultTimeout = 10 * time.Minute

// NewRouter mounts the console endpoints, plus metrics when given a handler.
func NewRouter(h *Handler, metrics http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.LoggingMiddleware)
	r.Use(h.RecoverMiddleware)
	r.Use(middleware.Timeout(timeout))

	r.Get("/api/state", h.HandleState)
	r.Post("/api/wallets/{name}/connect", h.HandleConnect)
	r.Post("/api/refresh", h.HandleRefresh)
	r.Get("/api/preview", h.HandlePreview)
	r.Post("/api/bridge", h.HandleBridge)
	r.Post("/api/send", h.HandleSend)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}
