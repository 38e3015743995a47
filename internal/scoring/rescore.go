package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
)

const rescorePageSize = 200

// RescoreStore is the slice of the tender store bulk rescoring needs.
type RescoreStore interface {
	ListTenders(ctx context.Context, params models.ListParams) (*models.ListResult, error)
	SaveScore(ctx context.Context, id uuid.UUID, score *models.ScoreBreakdown, scoredAt time.Time) error
}

type RescoreResult struct {
	Total  int `json:"total"`
	Scored int `json:"scored"`
	Failed int `json:"failed"`
}

// ProgressFunc observes bulk rescoring after each page.
type ProgressFunc func(res RescoreResult)

// RescoreAll rescores every stored tender with the built-in keyword sets.
func RescoreAll(ctx context.Context, store RescoreStore, profile *models.CompanyProfile) (RescoreResult, error) {
	return defaultEngine.RescoreAll(ctx, store, profile, nil)
}

// RescoreAll walks the store in creation order and replaces every score.
// A failed write is counted and skipped; cancellation stops at the next
// tender.
func (e *Engine) RescoreAll(ctx context.Context, store RescoreStore, profile *models.CompanyProfile, progress ProgressFunc) (RescoreResult, error) {
	res, err := e.Rescore(ctx, store, profile, models.ListParams{SortBy: models.SortCreated}, progress)
	if err != nil {
		return res, err
	}
	logger.FromContext(ctx).Info("rescore_completed", zap.Int("scored", res.Scored), zap.Int("failed", res.Failed))
	return res, nil
}

// Rescore replaces the score of every tender matching params, a page at a
// time. Offset is ignored; paging always starts at the first match.
func (e *Engine) Rescore(ctx context.Context, store RescoreStore, profile *models.CompanyProfile, params models.ListParams, progress ProgressFunc) (RescoreResult, error) {
	log := logger.FromContext(ctx)
	var res RescoreResult
	if params.SortBy == "" {
		params.SortBy = models.SortCreated
	}
	params.Limit = rescorePageSize
	params.Offset = 0
	for {
		page, err := store.ListTenders(ctx, params)
		if err != nil {
			return res, err
		}
		res.Total = page.Total
		for i := range page.Tenders {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			t := &page.Tenders[i]
			bd := e.Score(t, profile)
			if err := store.SaveScore(ctx, t.ID, &bd, time.Now().UTC()); err != nil {
				res.Failed++
				log.Warn("rescore_save_failed", zap.String("tender_id", t.ID.String()), zap.Error(err))
				continue
			}
			res.Scored++
		}
		if progress != nil {
			progress(res)
		}
		if len(page.Tenders) < params.Limit {
			break
		}
		params.Offset += params.Limit
	}
	return res, nil
}
