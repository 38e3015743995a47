package models

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// ImportBatch records one upload attempt. Counters grow while the batch is
// processing; the status is terminal once every sheet has been consumed.
type ImportBatch struct {
	ID            uuid.UUID   `json:"id"`
	FileName      string      `json:"file_name"`
	RowsSeen      int         `json:"rows_seen"`
	RowsImported  int         `json:"rows_imported"`
	RowsDuplicate int         `json:"rows_duplicate"`
	RowsFailed    int         `json:"rows_failed"`
	RowsSkipped   int         `json:"rows_skipped"`
	SheetsFailed  int         `json:"sheets_failed"`
	Errors        []string    `json:"errors"`
	Status        BatchStatus `json:"status"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

func NewImportBatch(fileName string) *ImportBatch {
	return &ImportBatch{
		ID:        uuid.New(),
		FileName:  fileName,
		Errors:    []string{},
		Status:    BatchProcessing,
		StartedAt: time.Now().UTC(),
	}
}

// Finish moves the batch to a terminal status.
func (b *ImportBatch) Finish(status BatchStatus) {
	now := time.Now().UTC()
	b.Status = status
	b.CompletedAt = &now
}
