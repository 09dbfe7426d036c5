// Package server exposes the memory engine over a WebSocket JSON protocol,
// with HTTP and gRPC health endpoints.
//
// Each WebSocket text message is one request:
//
//	{"id": "1", "op": "recall", "params": {"query": "what is my name?"}}
//
// and gets exactly one response with the same id:
//
//	{"id": "1", "ok": true, "result": {...}}
//	{"id": "1", "ok": false, "error": "..."}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/facts"
	"github.com/becomeliminal/affect-memory/memory"
)

// Config wires the engine into the server.
type Config struct {
	// Memory is required.
	Memory *memory.Manager

	// Dreamer enables the dream.sync op.
	Dreamer *dream.Dreamer

	// Scheduler enables the dream op and runs in the background under Run.
	Scheduler *dream.Scheduler

	// Facts enables the fact.* ops.
	Facts *facts.Ledger

	// GRPCAddr, when set, serves the gRPC health service there.
	GRPCAddr string

	// DreamLimit is the default limit of dream.sync. Default: 1000
	DreamLimit int

	// HealthInterval is how often the health status is refreshed.
	// Default: 30 seconds.
	HealthInterval time.Duration
}

// Server serves one engine.
type Server struct {
	config   Config
	upgrader websocket.Upgrader
	health   *health.Server
	ops      map[string]opFunc

	// background is the context for work that outlives a request, such as
	// scheduled dreams. Run replaces it with its own context.
	background context.Context
}

// New creates a server. It does not listen until Run.
func New(cfg Config) (*Server, error) {
	if cfg.Memory == nil {
		return nil, errors.New("server: Memory is required")
	}
	if cfg.DreamLimit <= 0 {
		cfg.DreamLimit = 1000
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	s := &Server{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		health:     health.NewServer(),
		background: context.Background(),
	}
	s.ops = s.routes()
	s.refreshHealth()
	return s, nil
}

// Handler returns the HTTP routes: /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Run serves HTTP on addr, and gRPC health on Config.GRPCAddr if set, until
// ctx is done. The dream scheduler, if configured, runs alongside.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)
	s.background = ctx

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var grpcSrv *grpc.Server
	if s.config.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.config.GRPCAddr)
		if err != nil {
			return err
		}
		grpcSrv = grpc.NewServer()
		registerHealth(grpcSrv, s.health)
		g.Go(func() error {
			log.Info().Str("addr", s.config.GRPCAddr).Msg("gRPC health server starting")
			return grpcSrv.Serve(lis)
		})
	}

	if s.config.Scheduler != nil {
		g.Go(func() error { return s.config.Scheduler.Run(ctx) })
	}

	g.Go(func() error {
		s.monitorHealth(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server")
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if !s.config.Memory.Available() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	} else if n, err := s.config.Memory.Count(r.Context()); err == nil {
		body["memories"] = n
	}
	if s.config.Scheduler != nil {
		body["dreaming"] = s.config.Scheduler.Running()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
