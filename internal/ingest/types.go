package ingest

import (
	"context"

	"github.com/david/tender-scout/internal/models"
)

// TenderStore persists assembled tenders. CreateTender reports
// models.ErrDuplicate when a unique dedup index rejects the row.
type TenderStore interface {
	TenderLookup
	CreateTender(ctx context.Context, t *models.Tender) error
}

// BatchSink records import progress under the batch ID.
type BatchSink interface {
	CreateBatch(ctx context.Context, b *models.ImportBatch) error
	UpdateBatch(ctx context.Context, b *models.ImportBatch) error
}

// ProfileReader returns the active profile or models.ErrNotFound.
type ProfileReader interface {
	GetProfile(ctx context.Context) (*models.CompanyProfile, error)
}
