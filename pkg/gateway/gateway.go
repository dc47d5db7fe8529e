// Package gateway serves the operational HTTP surface (health and metrics)
// next to the MCP stdio transport.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/runtime"
)

type Gateway struct {
	server   *http.Server
	router   *chi.Mux
	executor *runtime.Executor
	logger   *slog.Logger
}

type Config struct {
	Bind     string
	Port     int
	Executor *runtime.Executor
	Logger   *slog.Logger
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	g := &Gateway{
		router:   r,
		executor: cfg.Executor,
		logger:   cfg.Logger,
	}

	r.Get("/healthz", g.handleHealthz)
	r.Get("/readyz", g.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	addr := resolveAddr(cfg.Bind, cfg.Port)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return g
}

// Start serves until the context is canceled, then shuts down gracefully.
func (g *Gateway) Start(ctx context.Context) error {
	g.logger.Info("gateway listening", slog.String("addr", g.server.Addr))

	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return g.shutdown()
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if g.executor != nil {
		if pool := g.executor.Pool(); pool != nil && !pool.Healthy() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "pool unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func resolveAddr(bind string, port int) string {
	host := bind
	switch bind {
	case "", "loopback":
		host = "127.0.0.1"
	case "all":
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
