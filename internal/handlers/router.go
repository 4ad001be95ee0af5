package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/philippzhuravlev/event-aggregator/internal/handlers/middleware"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type syncService interface {
	// Sync all active pages; per-page failures are reported inside the summary
	SyncAllPages(ctx context.Context) (models.SyncSummary, error)

	// Sync one page, the webhook ingestion path
	SyncPage(ctx context.Context, pageID string) (models.SyncSummary, error)
}

type tokenService interface {
	CheckAllTokenHealth(ctx context.Context) (models.TokenHealthReport, error)
	RefreshExpiringTokens(ctx context.Context) (models.RefreshSummary, error)
}

type RouterConfig struct {
	// Static bearer key guarding the trigger endpoints
	APIKey string

	// Trigger endpoint allowance; these are scheduler-shaped, ~10/day is plenty
	TriggerRate  rate.Limit
	TriggerBurst int
}

func NewRouter(
	cfg RouterConfig,
	syncService syncService,
	tokenService tokenService,
	oauthHandler *OAuthHandler,
	webhookHandler *WebhookHandler,
	logger logger.Logger,
) http.Handler {
	if cfg.TriggerRate == 0 {
		cfg.TriggerRate = rate.Every(24 * time.Hour / 10)
	}
	if cfg.TriggerBurst == 0 {
		cfg.TriggerBurst = 3
	}

	guarded := func(h http.Handler) http.Handler {
		return chain(h,
			middleware.APIKeyAuth(cfg.APIKey),
			middleware.RateLimit(cfg.TriggerRate, cfg.TriggerBurst),
		)
	}

	api := http.NewServeMux()

	api.Handle("POST /sync", guarded(handleSyncAll(syncService, logger)))
	api.Handle("POST /tokens/refresh", guarded(handleRefreshTokens(tokenService, logger)))
	api.Handle("GET /tokens/health", guarded(handleTokenHealth(tokenService, logger)))

	api.Handle("GET /facebook/login-state", oauthHandler.handleLoginState())
	api.Handle("POST /facebook/callback", oauthHandler.handleCallback())

	api.Handle("GET /webhook/facebook", webhookHandler.handleVerify())
	api.Handle("POST /webhook/facebook", webhookHandler.handleNotify())

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return chain(root,
		middleware.LoggerMiddleware(logger),
	)
}
