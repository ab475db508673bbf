// Package control assembles the analysis gateway from configuration and
// manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/analyzer/internal/analysis/health"
	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/analysis/session"
	"github.com/vietddude/analyzer/internal/api"
	"github.com/vietddude/analyzer/internal/core/config"
	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/inference"
	redisclient "github.com/vietddude/analyzer/internal/infra/redis"
	"github.com/vietddude/analyzer/internal/infra/storage"
	"github.com/vietddude/analyzer/internal/infra/storage/memory"
	"github.com/vietddude/analyzer/internal/infra/storage/postgres"
)

// Service is the assembled gateway: orchestrator, archive, cache, janitor,
// and the HTTP API, all built from one AppConfig.
type Service struct {
	cfg         *config.AppConfig
	orch        *session.Orchestrator
	janitor     *session.Janitor
	server      *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	grpcConn    *inference.GRPCAnalyzer
	log         *slog.Logger

	cancelBg context.CancelFunc
}

// NewService builds the gateway from configuration. It connects to whatever
// infrastructure the config names; a missing database or redis URL degrades
// to in-memory equivalents rather than failing startup.
func NewService(cfg *config.AppConfig) (*Service, error) {
	svc := &Service{cfg: cfg, log: slog.Default()}

	// 1. Retry policy table, shipped defaults merged with config overrides.
	overrides, err := retryOverrides(cfg.Retry)
	if err != nil {
		return nil, err
	}
	registry, err := policy.NewRegistry(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy registry: %w", err)
	}

	// 2. Upstream analyzer.
	analyzer, err := svc.buildAnalyzer(cfg.Upstream)
	if err != nil {
		return nil, err
	}

	// 3. Session archive.
	var archive storage.SessionArchive
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		svc.db = db
		archive = postgres.NewSessionRepo(db)
		slog.Info("Using PostgreSQL archive")
	} else {
		archive = memory.NewArchive()
		slog.Info("Using memory archive")
	}

	// 4. Descriptor cache.
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, descriptor cache disabled", "error", err)
		} else {
			svc.redisClient = client
		}
	}

	// 5. Orchestrator with the closed-session sink.
	limits := domain.ContentLimits{
		MaxSizeBytes: cfg.Content.MaxSizeBytes,
		AllowedTypes: make(map[string]struct{}, len(cfg.Content.AllowedTypes)),
	}
	for _, t := range cfg.Content.AllowedTypes {
		limits.AllowedTypes[t] = struct{}{}
	}

	sink := &closedSessionSink{
		registry: registry,
		archive:  archive,
		cache:    svc.redisClient,
	}
	orch, err := session.NewOrchestrator(session.Options{
		Analyzer: analyzer,
		Registry: registry,
		Limits:   limits,
		Sink:     sink,
	})
	if err != nil {
		return nil, err
	}
	svc.orch = orch
	svc.janitor = session.NewJanitor(orch, cfg.Retention)

	// 6. Health and the API server.
	monitor := svc.buildMonitor(analyzer)
	svc.server = api.NewServer(orch, svc.redisClient, archive, monitor, cfg.Server.Port)

	return svc, nil
}

func (s *Service) buildAnalyzer(cfg config.UpstreamConfig) (inference.Analyzer, error) {
	switch cfg.Transport {
	case "http":
		return inference.NewHTTPAnalyzer(cfg.Name, cfg.URL, cfg.Timeout), nil
	case "grpc":
		a, err := inference.NewGRPCAnalyzer(cfg.Name, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create grpc analyzer: %w", err)
		}
		s.grpcConn = a
		return a, nil
	default:
		return nil, fmt.Errorf("unknown upstream transport %q", cfg.Transport)
	}
}

func (s *Service) buildMonitor(analyzer inference.Analyzer) *health.Monitor {
	var checkers []health.CheckerFunc
	if pinger, ok := analyzer.(interface{ Ping(context.Context) error }); ok {
		checkers = append(checkers, health.CheckerFunc{
			ComponentName: s.cfg.Upstream.Name,
			Fn:            pinger.Ping,
			// The gateway's whole purpose is absorbing upstream outages, so a
			// down upstream degrades health instead of failing it.
			Optional: true,
		})
	}
	if s.redisClient != nil {
		checkers = append(checkers, health.CheckerFunc{
			ComponentName: "redis",
			Fn:            s.redisClient.Ping,
			Optional:      true,
		})
	}
	if s.db != nil {
		checkers = append(checkers, health.CheckerFunc{
			ComponentName: "database",
			Fn:            s.db.PingContext,
		})
	}
	return health.NewMonitor(checkers...)
}

// Start starts the API server and background workers.
func (s *Service) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	s.cancelBg = cancel

	go s.janitor.Start(bgCtx)

	go func() {
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("API server failed", "error", err)
		}
	}()

	s.log.Info("Gateway started", "port", s.cfg.Server.Port, "upstream", s.cfg.Upstream.URL)
	return nil
}

// Stop drains the gateway: the HTTP server first so no new sessions arrive,
// then the orchestrator, then infrastructure connections.
func (s *Service) Stop(ctx context.Context) error {
	s.log.Info("Stopping gateway...")

	if s.cancelBg != nil {
		s.cancelBg()
	}

	if err := s.server.Stop(ctx); err != nil {
		s.log.Warn("Failed to stop API server", "error", err)
	}
	if err := s.orch.Stop(ctx); err != nil {
		s.log.Warn("Orchestrator did not drain cleanly", "error", err)
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.grpcConn != nil {
		if err := s.grpcConn.Close(); err != nil {
			s.log.Warn("Failed to close upstream connection", "error", err)
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// retryOverrides converts the YAML override table into registry overrides,
// rejecting kinds the classifier can never produce.
func retryOverrides(raw map[string]config.RetryOverride) (map[domain.ErrorKind]policy.Override, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[domain.ErrorKind]policy.Override, len(raw))
	for name, o := range raw {
		kind := domain.ErrorKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("retry config references unknown error kind %q", name)
		}
		ov := policy.Override{
			Retryable:   o.Retryable,
			AutoRetry:   o.AutoRetry,
			MaxAttempts: o.MaxAttempts,
		}
		if o.BaseDelayMs != nil {
			d := time.Duration(*o.BaseDelayMs) * time.Millisecond
			ov.BaseDelay = &d
		}
		out[kind] = ov
	}
	return out, nil
}
