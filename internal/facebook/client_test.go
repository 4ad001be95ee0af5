package facebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("app-id", "app-secret", logger.NewNoOpLogger())
	c.BaseURL = srv.URL
	return c
}

func graphError(w http.ResponseWriter, code int, message string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":    message,
			"type":       "OAuthException",
			"code":       code,
			"fbtrace_id": "AbCdEf",
		},
	})
}

func TestExchangeForLongLivedToken(t *testing.T) {
	t.Run("passes exchange parameters and reads validity", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/oauth/access_token", r.URL.Path)
			q := r.URL.Query()
			require.Equal(t, "fb_exchange_token", q.Get("grant_type"))
			require.Equal(t, "app-id", q.Get("client_id"))
			require.Equal(t, "app-secret", q.Get("client_secret"))
			require.Equal(t, "short-token", q.Get("fb_exchange_token"))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "long-token",
				"expires_in":   5183944,
			})
		}))

		token, err := c.ExchangeForLongLivedToken(t.Context(), "short-token")

		require.NoError(t, err)
		require.Equal(t, "long-token", token.Value)
		require.Equal(t, 5183944*time.Second, token.ExpiresIn)
	})

	t.Run("missing token in response is an error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"expires_in": 100})
		}))

		_, err := c.ExchangeForLongLivedToken(t.Context(), "short-token")

		require.Error(t, err)
	})

	t.Run("graph error envelope surfaces as typed error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			graphError(w, 190, "Error validating access token: Session has expired")
		}))

		_, err := c.ExchangeForLongLivedToken(t.Context(), "dead-token")

		require.Error(t, err)
		var fbErr *Error
		require.ErrorAs(t, err, &fbErr)
		require.Equal(t, 190, fbErr.Code)
		require.Equal(t, "OAuthException", fbErr.Type)
	})
}

func TestGetMe(t *testing.T) {
	t.Run("resolves the token's user", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/me", r.URL.Path)
			require.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "42", "name": "Jane Admin"})
		}))

		user, err := c.GetMe(t.Context(), "user-token")

		require.NoError(t, err)
		require.Equal(t, User{ID: "42", Name: "Jane Admin"}, user)
	})

	t.Run("incomplete user data is an error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "42"})
		}))

		_, err := c.GetMe(t.Context(), "user-token")

		require.Error(t, err)
	})
}

func TestListPages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/accounts", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "p1", "name": "First", "access_token": "tok1"},
				{"id": "p2", "name": "Second", "access_token": "tok2"},
			},
		})
	}))

	pages, err := c.ListPages(t.Context(), "user-token")

	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, Page{ID: "p1", Name: "First", AccessToken: "tok1"}, pages[0])
}

func TestListEvents(t *testing.T) {
	since := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("parses events and skips unparsable ones", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/page-1/events", r.URL.Path)
			require.Equal(t, "1746057600", r.URL.Query().Get("since"))
			require.Equal(t, "page-token", r.URL.Query().Get("access_token"))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"id":          "e1",
						"name":        "Concert",
						"description": "Open air",
						"start_time":  "2025-06-21T19:00:00+0200",
						"end_time":    "2025-06-21T23:00:00+0200",
						"place":       map[string]any{"name": "Town Hall"},
						"cover":       map[string]any{"source": "https://scontent.example/c.jpg"},
					},
					{
						// no start_time, must be skipped
						"id":   "e2",
						"name": "Broken",
					},
				},
			})
		}))

		events, err := c.ListEvents(t.Context(), "page-1", "page-token", since)

		require.NoError(t, err)
		require.Len(t, events, 1)

		ev := events[0]
		require.Equal(t, "e1", ev.ID)
		require.Equal(t, "Concert", ev.Name)
		require.Equal(t, "Town Hall", ev.PlaceName)
		require.Equal(t, "https://scontent.example/c.jpg", ev.CoverURL)
		require.True(t, ev.StartTime.Equal(time.Date(2025, 6, 21, 17, 0, 0, 0, time.UTC)))
		require.NotNil(t, ev.EndTime)
	})

	t.Run("follows pagination until next is empty", func(t *testing.T) {
		var base string
		pagesServed := 0

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pagesServed++
			resp := map[string]any{
				"data": []map[string]any{{
					"id":         fmt.Sprintf("e%d", pagesServed),
					"name":       "Event",
					"start_time": "2025-06-21T19:00:00+0200",
				}},
			}
			if pagesServed < 3 {
				resp["paging"] = map[string]any{"next": base + "/page-1/events?after=cursor" + fmt.Sprint(pagesServed)}
			}
			_ = json.NewEncoder(w).Encode(resp)
		})

		c := newTestClient(t, handler)
		base = c.BaseURL

		events, err := c.ListEvents(t.Context(), "page-1", "page-token", since)

		require.NoError(t, err)
		require.Equal(t, 3, pagesServed)
		require.Len(t, events, 3)
	})

	t.Run("pagination stops at the safety cap", func(t *testing.T) {
		var base string
		pagesServed := 0

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pagesServed++
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"id":         fmt.Sprintf("e%d", pagesServed),
					"name":       "Event",
					"start_time": "2025-06-21T19:00:00+0200",
				}},
				"paging": map[string]any{"next": base + "/page-1/events?after=more"},
			})
		})

		c := newTestClient(t, handler)
		base = c.BaseURL

		events, err := c.ListEvents(t.Context(), "page-1", "page-token", since)

		require.NoError(t, err)
		require.Equal(t, maxEventPages, pagesServed)
		require.Len(t, events, maxEventPages)
	})

	t.Run("error envelope aborts the listing", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			graphError(w, 4, "Application request limit reached")
		}))

		_, err := c.ListEvents(t.Context(), "page-1", "page-token", since)

		var fbErr *Error
		require.ErrorAs(t, err, &fbErr)
		require.Equal(t, 4, fbErr.Code)
	})

	t.Run("non-json error body falls back to status", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))

		_, err := c.ListEvents(t.Context(), "page-1", "page-token", since)

		require.Error(t, err)
		require.ErrorContains(t, err, "502")
	})
}

func TestTokenInvalidPredicates(t *testing.T) {
	wrapped := fmt.Errorf("listing events: %w", &Error{Code: 190, Message: "Session expired"})

	t.Run("structured 190 matches both", func(t *testing.T) {
		require.True(t, IsTokenInvalidCode(wrapped))
		require.True(t, IsTokenInvalid(wrapped))
	})

	t.Run("message heuristic matches only the loose predicate", func(t *testing.T) {
		err := &Error{Code: 1, Message: "Error validating access token"}
		require.False(t, IsTokenInvalidCode(err))
		require.True(t, IsTokenInvalid(err))
	})

	t.Run("unrelated errors match neither", func(t *testing.T) {
		err := errors.New("connection reset by peer")
		require.False(t, IsTokenInvalidCode(err))
		require.False(t, IsTokenInvalid(err))

		rateLimited := &Error{Code: 4, Message: "Application request limit reached"}
		require.False(t, IsTokenInvalidCode(rateLimited))
		require.False(t, IsTokenInvalid(rateLimited))
	})

	t.Run("nil is never invalid", func(t *testing.T) {
		require.False(t, IsTokenInvalid(nil))
		require.False(t, IsTokenInvalidCode(nil))
	})
}
