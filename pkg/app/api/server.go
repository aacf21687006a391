// Package api implements app.Runner for the API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/treasury-api/pkg/app/http"
	"github.com/chainsafe/treasury-api/pkg/auth"
	"github.com/chainsafe/treasury-api/pkg/config"
	"github.com/chainsafe/treasury-api/pkg/pgutil"
	"github.com/chainsafe/treasury-api/pkg/roster"
	"github.com/chainsafe/treasury-api/pkg/sweeper"
	"github.com/chainsafe/treasury-api/pkg/whitelist"
	wlservice "github.com/chainsafe/treasury-api/pkg/whitelist/service"
	"github.com/chainsafe/treasury-api/pkg/whiteliststore"
)

const defaultRequestTimeout = 60 * time.Second

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting treasury API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	approvers, err := s.loadRoster()
	if err != nil {
		return err
	}

	store := whiteliststore.NewStore(db)
	policy := whitelist.Policy{
		DefaultRequiredApprovals: cfg.Approval.DefaultRequiredApprovals,
		AllowEmptySubmission:     cfg.Approval.AllowEmptySubmission,
	}
	svc := wlservice.NewLog(wlservice.NewService(store, approvers, policy), logger)

	sw := s.startSweeper(svc, logger)

	router := s.setupRouter(svc, logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	// Stop background work before the deferred DB close kicks in.
	sw.Stop()

	return err
}

func (s *Server) loadRoster() (roster.Provider, error) {
	if s.cfg.Approval.RosterFile == "" {
		return nil, fmt.Errorf("approval.roster_file is required")
	}
	approvers, err := roster.NewFromFile(s.cfg.Approval.RosterFile)
	if err != nil {
		return nil, fmt.Errorf("load approver roster: %w", err)
	}
	return approvers, nil
}

func (s *Server) startSweeper(svc wlservice.Service, logger *zap.Logger) *sweeper.Sweeper {
	interval := s.cfg.Expiration.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	sw := sweeper.New(svc, interval, logger)
	sw.Start()
	return sw
}

func (s *Server) setupRouter(svc wlservice.Service, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	requestTimeout := s.cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	r.Use(middleware.Timeout(requestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Whitelist endpoints require a resolved principal
	var validator *auth.JWTValidator
	if s.cfg.Auth.JWKSURL != "" {
		validator = auth.NewJWTValidator(s.cfg.Auth.JWKSURL, s.cfg.Auth.Issuer)
	}
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator, s.cfg.Auth.AllowHeaderPrincipal))
		wlservice.RegisterRoutes(r, svc, logger)
	})

	return r
}
