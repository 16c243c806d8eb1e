package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatgrid/botgate/internal/adapters/events"
	"github.com/chatgrid/botgate/internal/adapters/httpapi"
	"github.com/chatgrid/botgate/internal/adapters/metrics"
	sqliteadapter "github.com/chatgrid/botgate/internal/adapters/sqlite"
	"github.com/chatgrid/botgate/internal/adapters/sqlite/gormsqlite"
	"github.com/chatgrid/botgate/internal/core/domain"
	"github.com/chatgrid/botgate/internal/core/ports"
	"github.com/chatgrid/botgate/internal/core/usecase"
	"github.com/chatgrid/botgate/migrations"
)

type Config struct {
	Addr   string
	DBPath string

	CacheTTL          time.Duration
	RateLimitCapacity int
	RateLimitWindow   time.Duration
	SweepInterval     time.Duration
	JanitorInterval   time.Duration

	AdminToken    string
	WebhookURL    string
	WebhookSecret string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer wires the shard process: store, caches, controller, limiter,
// background tasks, and the HTTP surface. Everything is passed down
// explicitly; nothing reaches for process-wide state.
func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open settings store: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(startupCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := sqliteadapter.NewStore(db)

	// A shard that cannot reach the store at startup has zero cached data
	// and would serve empty configuration; abort instead.
	if err := store.Ping(startupCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("settings store unreachable at startup: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	var notifier ports.AuditNotifier
	if cfg.WebhookURL != "" {
		notifier = events.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, 0)
	} else {
		notifier = events.NewLogNotifier()
	}

	clock := domain.SystemClock{}

	controller := usecase.NewAccessController(store, cfg.CacheTTL, clock, recorder, notifier)

	limiter, err := usecase.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitWindow, cfg.CacheTTL, clock, recorder)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	settingsService, err := usecase.NewSettingsService(store, controller.SettingsCache())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	auditService := usecase.NewAuditService(store)
	admission := usecase.NewAdmissionService(controller, limiter, recorder)

	sweeper := usecase.NewExpirySweeper(store, controller.GrantCache(), notifier, clock, recorder, cfg.SweepInterval)
	sweeper.Start(context.Background())

	janitor := usecase.NewJanitor(controller.SettingsCache(), controller.GrantCache(), limiter, cfg.JanitorInterval)
	janitor.Start(context.Background())

	handler := httpapi.NewHandler(
		admission,
		controller,
		settingsService,
		auditService,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		cfg.AdminToken,
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{sweeper, janitor, db}}, nil
}
