// internal/server/server.go

// Package server exposes the relay over HTTP: POST /chat hands a prompt to
// the submission core and blocks until the reply is complete, GET /health
// answers liveness. Everything in front of the core (auth, rate limiting,
// connection caps) lives here so the core stays protocol-free.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/xkilldash9x/gptrelay/internal/chat"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// Submitter runs one serialized submission cycle against the upstream page.
// *chat.Client satisfies it; tests substitute a scripted stand-in.
type Submitter interface {
	Submit(ctx context.Context, req chat.Request) (*chat.Result, error)
}

// Server owns the HTTP listener and its drain lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	http   *http.Server
}

// New builds the server around a Submitter. The handler chain is fixed at
// construction: request-id, access log, panic recovery on every route, then
// bearer auth and per-caller rate limiting in front of /chat only.
func New(cfg *config.Config, submitter Submitter, logger *zap.Logger) *Server {
	log := logger.Named("http")
	h := newHandler(cfg, submitter, log)

	return &Server{
		cfg:    cfg,
		logger: log,
		http: &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           h.routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			IdleTimeout:       2 * time.Minute,
			// WriteTimeout stays unset: a /chat response is held open for the
			// whole submission cycle and the cycle budget is what bounds it.
			ErrorLog: zap.NewStdLog(log),
		},
	}
}

// ListenAndServe blocks until Shutdown or a listener failure. The connection
// cap is enforced at the listener so excess clients queue in the accept
// backlog instead of piling goroutines onto the serialized core.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	if s.cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Server.MaxConns)
	}

	s.logger.Info("http server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_conns", s.cfg.Server.MaxConns),
		zap.Bool("auth_enabled", s.cfg.Server.APIKey != ""),
		zap.Int("rate_limit_per_minute", s.cfg.Server.RateLimitPerMinute))

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server draining")
	return s.http.Shutdown(ctx)
}

// routes wires the mux. /health skips auth and rate limiting so probes keep
// working when the caller has no credential.
func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestID, h.accessLog, h.recoverPanics)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	chatRoutes := r.PathPrefix("/chat").Subrouter()
	chatRoutes.Use(h.authenticate, h.rateLimit)
	chatRoutes.HandleFunc("", h.handleChat).Methods(http.MethodPost)

	return r
}
