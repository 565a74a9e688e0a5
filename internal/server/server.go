// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/holdergate/internal/auth"
	"github.com/pendergraft/holdergate/internal/chains"
	"github.com/pendergraft/holdergate/internal/chains/evm"
	"github.com/pendergraft/holdergate/internal/challenge"
	"github.com/pendergraft/holdergate/internal/config"
	"github.com/pendergraft/holdergate/internal/holdings"
	"github.com/pendergraft/holdergate/internal/limits"
	"github.com/pendergraft/holdergate/internal/middleware/logging"
	"github.com/pendergraft/holdergate/internal/middleware/ratelimit"
	"github.com/pendergraft/holdergate/internal/observability/metrics"
	"github.com/pendergraft/holdergate/internal/roles"
	"github.com/pendergraft/holdergate/internal/storage"
	"github.com/pendergraft/holdergate/internal/verification/domain"
	"github.com/pendergraft/holdergate/internal/verification/transport"
)

// defaultScanWindow is the trailing block window scanned for challenge
// transfers when a network does not configure one.
const defaultScanWindow = 1000

// Server is the HTTP server
type Server struct {
	cfg      *config.Config
	store    storage.Store
	logger   *slog.Logger
	router   *chi.Mux
	registry *chains.Registry
	limiter  *limits.Limiter

	verificationSvc domain.VerificationService
}

// New wires storage, chain clients, the holdings API and the verification
// orchestrator into an HTTP server. The context bounds the initial RPC dials.
func New(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	primary, err := cfg.Primary()
	if err != nil {
		return nil, err
	}
	if primary.RPCURL == "" {
		return nil, fmt.Errorf("primary network %s has no RPC URL", primary.Name)
	}

	s.registry = chains.NewRegistry()
	for _, n := range cfg.Networks {
		if n.RPCURL == "" {
			continue
		}
		client, err := evm.Dial(ctx, n.RPCURL)
		if err != nil {
			if n.Primary {
				s.registry.Close()
				return nil, fmt.Errorf("dialing %s: %w", n.Name, err)
			}
			// Secondary networks only need the holdings API, an
			// unreachable RPC endpoint is not fatal.
			logger.Warn("skipping RPC client for network", "network", n.Name, "error", err)
			continue
		}
		s.registry.Register(n.Name, client)
	}

	primaryClient, err := s.registry.Get(primary.Name)
	if err != nil {
		s.registry.Close()
		return nil, err
	}

	window := primary.ScanWindow
	if window == 0 {
		window = defaultScanWindow
	}
	scanner := evm.NewScanner(primaryClient, primary.Name, window, logger)
	stakingReader := evm.NewStakingReader(primaryClient, logger)

	holdingsClient := holdings.New(cfg.Holdings.BaseURL, cfg.Holdings.APIKey,
		holdings.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Holdings.TimeoutSeconds) * time.Second,
		}))

	verifiers := make(map[string]domain.OwnershipVerifier, len(cfg.Networks))
	for _, n := range cfg.Networks {
		var staking domain.StakingContracts
		if n.Primary && len(n.StakingContracts) > 0 {
			staking = stakingReader
		}
		verifiers[n.Name] = domain.NewVerifier(n, holdingsClient, staking, logger)
	}

	s.limiter = limits.New(cfg.Limits)

	var grantor roles.Grantor
	if cfg.Roles.BotToken != "" {
		grantor = roles.NewDiscordGrantor(cfg.Roles.BotToken, cfg.Roles.GuildID, cfg.Roles.APIBase, logger)
	} else {
		grantor = roles.Noop{Logger: logger}
	}

	challengeMgr := challenge.NewManager(store, logger)

	svcImpl, err := domain.NewService(
		cfg.Networks,
		store,
		challengeMgr,
		scanner,
		verifiers,
		s.limiter,
		grantor,
		cfg.Limits.MaxFailedSubmits,
	)
	if err != nil {
		s.registry.Close()
		s.limiter.Stop()
		return nil, err
	}
	s.verificationSvc = domain.LoggingMiddleware(logger)(svcImpl)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases chain clients and background goroutines. The storage store is
// owned by the caller and closed separately.
func (s *Server) Close() {
	s.limiter.Stop()
	s.registry.Close()
}

func (s *Server) setupMiddleware() {
	// Order matters: RealIP must run before anything keyed by client IP.
	s.router.Use(middleware.RealIP)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/metrics", metrics.Handler())

	verificationHandler := transport.NewHandler(s.verificationSvc)

	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		verificationHandler.RegisterRoutes(r)

		// Reset is an operator action and sits behind key auth when
		// configured.
		r.Group(func(r chi.Router) {
			requireAuth(r)
			verificationHandler.RegisterResetRoute(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Healthy(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"durable": s.store.Durable(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
