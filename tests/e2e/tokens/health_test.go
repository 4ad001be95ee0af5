package tokens

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/philippzhuravlev/event-aggregator/internal/models"
	"github.com/philippzhuravlev/event-aggregator/internal/repository"
	"github.com/philippzhuravlev/event-aggregator/internal/testutil"
	"github.com/philippzhuravlev/event-aggregator/tests/e2e"
)

const HealthURL = "/api/tokens/health"

func Test_TokenHealth(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	graph := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	e2e.ServeWithTx(pg.Pool, t, graph, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		addPage := func(t *testing.T, pageID string, expiresIn time.Duration) {
			t.Helper()

			ref, err := s.Secrets.Put(t.Context(), pageID, "token-"+pageID, expiresIn)
			require.NoError(t, err)

			expiresAt := time.Now().Add(expiresIn)
			_, err = s.Storage.Page().CreatePage(t.Context(), repository.CreatePageParams{
				PageID:         pageID,
				PageName:       "Page " + pageID,
				TokenExpiresAt: &expiresAt,
				TokenRef:       &ref,
			})
			require.NoError(t, err)
		}

		addPage(t, "healthy", 45*24*time.Hour)
		addPage(t, "soon-2", 2*24*time.Hour)
		addPage(t, "soon-6", 6*24*time.Hour)
		addPage(t, "gone", -3*24*time.Hour)

		req, err := http.NewRequest(http.MethodGet, srvURL+HealthURL, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+e2e.APIKey)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))

		var got struct {
			Success bool                     `json:"success"`
			Report  models.TokenHealthReport `json:"report"`
		}
		require.NoError(t, json.Unmarshal(body, &got))
		require.True(t, got.Success)

		require.Equal(t, 4, got.Report.TotalPages)
		require.Len(t, got.Report.Healthy, 1)
		require.Equal(t, "healthy", got.Report.Healthy[0].PageID)

		require.Len(t, got.Report.ExpiringSoon, 2)
		require.Equal(t, "soon-2", got.Report.ExpiringSoon[0].PageID, "expiring pages must come most urgent first")
		require.Equal(t, "soon-6", got.Report.ExpiringSoon[1].PageID)

		require.Len(t, got.Report.Expired, 1)
		require.Equal(t, "gone", got.Report.Expired[0].PageID)
	})
}
