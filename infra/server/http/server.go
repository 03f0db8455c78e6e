// Package http hosts the chi mux serving the WebSocket endpoint and the
// health probe.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/wangfenghuan/draw-backend/config"
	"github.com/wangfenghuan/draw-backend/internal/handler/ws"
)

func NewMux(wsHandler *ws.WSHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/{room}", wsHandler.ServeHTTP)

	return r
}

func NewServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start runs the listener in the background and reports fatal serve errors.
func Start(srv *http.Server, logger *slog.Logger) {
	go func() {
		logger.Info("HTTP_LISTENING", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP_SERVE_FAILED", "err", err)
		}
	}()
}

func Stop(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
