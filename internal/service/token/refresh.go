package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/facebook"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

type refreshOutcome int

const (
	outcomeSkipped refreshOutcome = iota
	outcomeRefreshed
	outcomeFailed
)

// RefreshExpiringTokens walks the active pages sequentially and exchanges
// every expiring token for a fresh long-lived one. Pages are isolated: one
// page's failure never affects the next. Only the initial listing propagates
// an error; everything else becomes summary data.
func (s *Service) RefreshExpiringTokens(ctx context.Context) (models.RefreshSummary, error) {
	summary := models.RefreshSummary{Timestamp: s.now()}

	pages, err := s.pages.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing active pages: %w", err)
	}
	summary.PagesChecked = len(pages)

	for _, page := range pages {
		outcome, err := s.refreshPage(ctx, page)

		switch outcome {
		case outcomeRefreshed:
			summary.Refreshed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeFailed:
			summary.Failed++
			summary.Errors = append(summary.Errors, models.PageError{PageID: page.PageID, Error: err.Error()})
		}
	}

	s.logger.Info("Token refresh run finished",
		"pages_checked", summary.PagesChecked,
		"refreshed", summary.Refreshed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}

func (s *Service) refreshPage(ctx context.Context, page models.Page) (refreshOutcome, error) {
	current, err := s.store.Get(ctx, page.PageID)
	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound):
		// Nothing to refresh; not a failure
		s.logger.Warn("Page has no stored token, skipping refresh", "page_id", page.PageID)
		return outcomeSkipped, nil
	case err != nil:
		s.alert(ctx, page, err)
		return outcomeFailed, fmt.Errorf("reading stored token: %w", err)
	}

	days := daysOrZero(page.TokenExpiresAt, s.now())
	if !IsExpiring(days, s.cfg.WarningDays) {
		return outcomeSkipped, nil
	}

	if !s.limiter(page.PageID).Allow() {
		s.logger.Warn("Refresh attempts exhausted for page", "page_id", page.PageID)
		return outcomeSkipped, apperrors.ErrRefreshThrottled
	}

	s.logger.Info("Refreshing expiring token", "page_id", page.PageID, "days_until_expiry", days)

	fresh, err := s.fb.ExchangeForLongLivedToken(ctx, current)
	if err != nil {
		if facebook.IsTokenInvalidCode(err) {
			// Expected terminal state: the user has to re-authorize.
			// No operator alert for this case.
			if markErr := s.pages.MarkTokenExpired(ctx, page.PageID); markErr != nil {
				s.logger.Error("Failed to mark page token expired", "page_id", page.PageID, "error", markErr)
			}
			s.logger.Warn("Facebook reports token invalid, page marked expired", "page_id", page.PageID)
			return outcomeFailed, err
		}

		s.alert(ctx, page, err)
		return outcomeFailed, err
	}

	validity := s.cfg.TokenValidity
	if fresh.ExpiresIn > 0 {
		validity = fresh.ExpiresIn
	}

	ref, err := s.store.Put(ctx, page.PageID, fresh.Value, validity)
	if err != nil {
		s.alert(ctx, page, err)
		return outcomeFailed, fmt.Errorf("persisting refreshed token: %w", err)
	}

	expiresAt := s.now().Add(validity)
	if err := s.pages.UpdateToken(ctx, page.PageID, models.TokenStatusActive, &expiresAt, &ref); err != nil {
		s.alert(ctx, page, err)
		return outcomeFailed, fmt.Errorf("updating page registry: %w", err)
	}

	s.logger.Info("Token refreshed", "page_id", page.PageID, "expires_at", expiresAt)
	return outcomeRefreshed, nil
}

// alert emails the operator about a transient refresh failure. Best-effort: a
// failed send is logged and swallowed so it can never abort the refresh loop.
func (s *Service) alert(ctx context.Context, page models.Page, cause error) {
	subject := fmt.Sprintf("Token refresh failed for page %s", page.PageName)
	body := fmt.Sprintf("Refreshing the facebook token for page %s (%s) failed: %v", page.PageName, page.PageID, cause)

	if err := s.mailer.SendAlert(ctx, subject, body); err != nil {
		s.logger.Error("Failed to send refresh alert", "page_id", page.PageID, "error", err)
	}
}
