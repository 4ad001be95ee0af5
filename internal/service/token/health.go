package token

import (
	"context"
	"errors"
	"sort"

	"github.com/philippzhuravlev/event-aggregator/internal/apperrors"
	"github.com/philippzhuravlev/event-aggregator/internal/models"
)

// CheckAllTokenHealth classifies every active page's token into
// expired / expiringSoon / healthy / unknown. A failure reading one page's
// token lands that page in the unknown bucket and never aborts the report;
// only the initial page listing may fail. Zero pages is a valid empty report.
func (s *Service) CheckAllTokenHealth(ctx context.Context) (models.TokenHealthReport, error) {
	report := models.TokenHealthReport{
		Healthy:      []models.PageTokenHealth{},
		ExpiringSoon: []models.PageTokenHealth{},
		Expired:      []models.PageTokenHealth{},
		Unknown:      []models.PageTokenHealth{},
		Timestamp:    s.now(),
	}

	pages, err := s.pages.ListActive(ctx)
	if err != nil {
		return report, err
	}
	report.TotalPages = len(pages)

	for _, page := range pages {
		entry := models.PageTokenHealth{
			PageID:    page.PageID,
			PageName:  page.PageName,
			ExpiresAt: page.TokenExpiresAt,
		}

		// Confirm the stored secret is readable; an unreadable store must not
		// kill the report, the page is just unknown
		if _, err := s.store.Get(ctx, page.PageID); err != nil {
			if errors.Is(err, apperrors.ErrTokenNotFound) {
				entry.Error = "no stored token"
			} else {
				entry.Error = err.Error()
			}
			report.Unknown = append(report.Unknown, entry)
			continue
		}

		entry.DaysUntilExpiry = daysOrZero(page.TokenExpiresAt, s.now())

		switch {
		case entry.DaysUntilExpiry < 0:
			report.Expired = append(report.Expired, entry)
		case IsExpiring(entry.DaysUntilExpiry, s.cfg.WarningDays):
			report.ExpiringSoon = append(report.ExpiringSoon, entry)
		case page.TokenExpiresAt != nil:
			report.Healthy = append(report.Healthy, entry)
		default:
			report.Unknown = append(report.Unknown, entry)
		}
	}

	// Soonest-to-expire first: downstream alerting relies on this order
	sort.SliceStable(report.ExpiringSoon, func(i, j int) bool {
		return report.ExpiringSoon[i].DaysUntilExpiry < report.ExpiringSoon[j].DaysUntilExpiry
	})

	return report, nil
}
