package handlers

import (
	"net/http"

	"github.com/philippzhuravlev/event-aggregator/internal/handlers/render"
	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

// Trigger endpoints mirror the scheduled jobs for manual/HTTP invocation.
// A run-level failure (page listing, batch write) is the only 500; per-page
// failures come back inside the summary with success=true.

func handleSyncAll(s syncService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.SyncAllPages(r.Context())
		if err != nil {
			l.Error("Sync run failed", "error", err)
			render.Failure(w, "Sync run failed", http.StatusInternalServerError)
			return
		}

		render.Success(w, summary)
	})
}

func handleRefreshTokens(s tokenService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.RefreshExpiringTokens(r.Context())
		if err != nil {
			l.Error("Refresh run failed", "error", err)
			render.Failure(w, "Token refresh run failed", http.StatusInternalServerError)
			return
		}

		render.Success(w, summary)
	})
}

func handleTokenHealth(s tokenService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, err := s.CheckAllTokenHealth(r.Context())
		if err != nil {
			l.Error("Token health check failed", "error", err)
			render.Failure(w, "Token health check failed", http.StatusInternalServerError)
			return
		}

		render.Report(w, report)
	})
}
