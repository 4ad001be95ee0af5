package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/stretchr/testify/require"

	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/handlers"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
	"github.com/philippzhuravlev/event-aggregator/internal/repository/postgres"
	"github.com/philippzhuravlev/event-aggregator/internal/secrets"
	"github.com/philippzhuravlev/event-aggregator/internal/service/sync"
	"github.com/philippzhuravlev/event-aggregator/internal/service/token"
	"github.com/philippzhuravlev/event-aggregator/internal/testutil"
)

// Shared wiring constants the tests authenticate with
const (
	APIKey        = "test-api-key"
	AppSecret     = "test-app-secret"
	VerifyToken   = "test-verify-token"
	SecretKeyHex  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	TokenValidity = 60 * 24 * time.Hour
)

type Services struct {
	Storage repository.Storage
	Secrets *secrets.Store
	Sync    *sync.Service
	Tokens  *token.Service
}

// ServeWithTx runs the full HTTP surface against repositories bound to one db
// transaction, with the Graph API replaced by the given handler. The
// transaction rolls back at test end so the database stays clean.
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, graph http.Handler, fn func(tx pgx.Tx, srvURL string, s Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		store, err := secrets.NewStore(SecretKeyHex, storage.Token())
		require.NoError(t, err, "secret store should build from the test key")

		graphSrv := httptest.NewServer(graph)
		defer graphSrv.Close()

		l := logger.NewNoOpLogger()

		fb := facebook.NewClient("test-app-id", AppSecret, l)
		fb.BaseURL = graphSrv.URL

		tokenService := token.NewService(token.Config{}, storage.Page(), store, fb, noAlerts{}, l)
		syncService := sync.NewService(sync.Config{}, storage.Page(), storage.Event(), store, fb, nil, l)

		oauthHandler := handlers.NewOAuth(SecretKeyHex, TokenValidity, fb, storage.Page(), store, l)
		webhookHandler := handlers.NewWebhook(AppSecret, VerifyToken, syncService, l)

		router := handlers.NewRouter(
			handlers.RouterConfig{APIKey: APIKey, TriggerRate: rate.Inf},
			syncService,
			tokenService,
			oauthHandler,
			webhookHandler,
			l,
		)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{
			Storage: storage,
			Secrets: store,
			Sync:    syncService,
			Tokens:  tokenService,
		})
	})
}

// noAlerts drops refresh alerts; e2e flows never assert on mail.
type noAlerts struct{}

func (noAlerts) SendAlert(ctx context.Context, subject string, text string) error {
	return nil
}
