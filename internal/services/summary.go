package services

import (
	"context"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/store"
)

type SummaryService struct {
	store store.SessionStore
}

// GetSummary aggregates an owner's sessions created within [from, to]. Nil
// bounds are open.
func (s *SummaryService) GetSummary(ctx context.Context, ownerID string, from, to *time.Time) (*models.SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := &models.SessionSummary{
		ByStatus: make(map[constants.SessionStatus]int64),
		Volume:   make(map[constants.Currency]*models.CurrencyVolume),
	}

	var settled, succeeded int64
	for _, cs := range sessions {
		if from != nil && cs.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && cs.CreatedAt.After(*to) {
			continue
		}

		summary.TotalSessions++
		summary.ByStatus[cs.Status]++

		volume := summary.Volume[cs.Currency]
		if volume == nil {
			volume = &models.CurrencyVolume{}
			summary.Volume[cs.Currency] = volume
		}

		switch cs.Status {
		case constants.StatusCompleted:
			volume.Completed += cs.Amount
			settled++
			succeeded++
		case constants.StatusRefunded:
			volume.Completed += cs.Amount
			volume.Refunded += cs.RefundAmount
			settled++
			succeeded++
		case constants.StatusFailed:
			settled++
		}
	}

	if settled > 0 {
		summary.SuccessRate = float64(succeeded) / float64(settled)
	}
	return summary, nil
}
