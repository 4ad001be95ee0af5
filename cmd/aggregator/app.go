package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/philippzhuravlev/event-aggregator/internal/db"
	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/handlers"
	"github.com/philippzhuravlev/event-aggregator/internal/images"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/mailer"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository/postgres"
	"github.com/philippzhuravlev/event-aggregator/internal/scheduler"
	"github.com/philippzhuravlev/event-aggregator/internal/secrets"
	"github.com/philippzhuravlev/event-aggregator/internal/service/sync"
	"github.com/philippzhuravlev/event-aggregator/internal/service/token"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Scheduler  *scheduler.Scheduler

	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Token store seals page tokens before they hit the database
	store, err := secrets.NewStore(c.SecretKey, storage.Token())
	if err != nil {
		return nil, fmt.Errorf("error while creating token store. Err: %w", err)
	}

	// External collaborators
	fb := facebook.NewClient(c.FacebookAppID, c.FacebookAppSecret, log)
	alerts := mailer.NewClient(c.ResendAPIKey, c.AlertEmailFrom, c.AlertEmailTo)

	var relocator *images.Relocator
	if c.S3Endpoint != "" {
		relocator, err = images.NewRelocator(images.Config{
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
			PublicURL: c.S3PublicURL,
			UseSSL:    c.S3UseSSL,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("error while creating image relocator. Err: %w", err)
		}
	}

	// Initialize services
	validity := time.Duration(c.TokenValidityDays) * 24 * time.Hour
	tokenService := token.NewService(token.Config{
		WarningDays:   c.TokenWarningDays,
		TokenValidity: validity,
	}, storage.Page(), store, fb, alerts, log)

	syncConfig := sync.Config{
		LookbackDays:  c.EventLookbackDays,
		WarningDays:   c.TokenWarningDays,
		MaxConcurrent: c.SyncMaxConcurrent,
	}
	var syncService *sync.Service
	if relocator != nil {
		syncService = sync.NewService(syncConfig, storage.Page(), storage.Event(), store, fb, relocator, log)
	} else {
		syncService = sync.NewService(syncConfig, storage.Page(), storage.Event(), store, fb, nil, log)
	}

	// Initialize handlers
	oauthHandler := handlers.NewOAuth(c.SecretKey, validity, fb, storage.Page(), store, log)
	webhookHandler := handlers.NewWebhook(c.FacebookAppSecret, c.FacebookVerify, syncService, log)

	mux := handlers.NewRouter(
		handlers.RouterConfig{APIKey: c.APIKey},
		syncService,
		tokenService,
		oauthHandler,
		webhookHandler,
		log,
	)

	// Scheduled jobs: sync hourly, refresh and health daily
	sched := scheduler.New(log,
		scheduler.Job{
			Name:      "sync-all-pages",
			Interval:  c.SyncInterval,
			Immediate: true,
			Run: func(ctx context.Context) error {
				_, err := syncService.SyncAllPages(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "refresh-expiring-tokens",
			Interval: c.RefreshInterval,
			Run: func(ctx context.Context) error {
				_, err := tokenService.RefreshExpiringTokens(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "check-token-health",
			Interval: c.HealthInterval,
			Run: func(ctx context.Context) error {
				report, err := tokenService.CheckAllTokenHealth(ctx)
				if err != nil {
					return err
				}
				logTokenHealth(log, report)
				if len(report.Expired) > 0 || len(report.ExpiringSoon) > 0 {
					if err := alerts.SendAlert(ctx, "Page token health warning", tokenHealthAlertText(report)); err != nil {
						log.Warn("Failed to send token health alert", "error", err)
					}
				}
				return nil
			},
		},
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Scheduler:  sched,
		logger:     log,
	}, nil
}

func tokenHealthAlertText(report models.TokenHealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token health check at %s found problems.\n\n", report.Timestamp.Format(time.RFC3339))
	for _, entry := range report.Expired {
		fmt.Fprintf(&b, "EXPIRED: %s (%s)\n", entry.PageName, entry.PageID)
	}
	for _, entry := range report.ExpiringSoon {
		fmt.Fprintf(&b, "EXPIRING in %d days: %s (%s)\n", entry.DaysUntilExpiry, entry.PageName, entry.PageID)
	}
	return b.String()
}

func logTokenHealth(log logger.Logger, report models.TokenHealthReport) {
	log.Info("Token health report",
		"total_pages", report.TotalPages,
		"healthy", len(report.Healthy),
		"expiring_soon", len(report.ExpiringSoon),
		"expired", len(report.Expired),
		"unknown", len(report.Unknown),
	)

	for _, entry := range report.ExpiringSoon {
		log.Warn("Page token expiring soon", "page_id", entry.PageID, "days_until_expiry", entry.DaysUntilExpiry)
	}
	for _, entry := range report.Expired {
		log.Error("Page token expired", "page_id", entry.PageID, "days_until_expiry", entry.DaysUntilExpiry)
	}
}

// Run starts the http server and the scheduler, closing both gracefully on
// context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	schedStopped := s.Scheduler.Start(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-schedStopped

	return err
}
