package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matheus3301/smartcart/internal/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPServer exposes /metrics and /healthz.
type HTTPServer struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewHTTPServer binds the configured HTTP address.
func NewHTTPServer(p Params, reg *prometheus.Registry, machine *status.Machine, logger *zap.Logger) (*HTTPServer, error) {
	listener, err := net.Listen("tcp", p.Config.HTTPListen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.Config.HTTPListen, err)
	}
	return &HTTPServer{
		srv: &http.Server{
			Handler:           Routes(reg, machine),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Routes builds the HTTP handler.
func Routes(reg *prometheus.Registry, machine *status.Machine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap := machine.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		if snap.State != status.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
	return r
}

func (h *HTTPServer) Addr() net.Addr {
	return h.listener.Addr()
}

// Start serves until Stop. Blocks.
func (h *HTTPServer) Start() error {
	h.logger.Info("HTTP server starting", zap.Stringer("addr", h.listener.Addr()))
	err := h.srv.Serve(h.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (h *HTTPServer) Stop(ctx context.Context) {
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("HTTP shutdown", zap.Error(err))
	}
}
