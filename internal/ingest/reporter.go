package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
)

type Stage string

const (
	StageStarted   Stage = "started"
	StageProgress  Stage = "progress"
	StageSheetDone Stage = "sheet_done"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// ProgressEvent is a snapshot of a batch's counters.
type ProgressEvent struct {
	BatchID       uuid.UUID          `json:"batch_id"`
	FileName      string             `json:"file_name"`
	Sheet         string             `json:"sheet,omitempty"`
	Stage         Stage              `json:"stage"`
	Status        models.BatchStatus `json:"status"`
	RowsSeen      int                `json:"rows_seen"`
	RowsImported  int                `json:"rows_imported"`
	RowsDuplicate int                `json:"rows_duplicate"`
	RowsFailed    int                `json:"rows_failed"`
	RowsSkipped   int                `json:"rows_skipped"`
	At            time.Time          `json:"at"`
}

func newEvent(b *models.ImportBatch, sheet string, stage Stage) ProgressEvent {
	return ProgressEvent{
		BatchID:       b.ID,
		FileName:      b.FileName,
		Sheet:         sheet,
		Stage:         stage,
		Status:        b.Status,
		RowsSeen:      b.RowsSeen,
		RowsImported:  b.RowsImported,
		RowsDuplicate: b.RowsDuplicate,
		RowsFailed:    b.RowsFailed,
		RowsSkipped:   b.RowsSkipped,
		At:            time.Now().UTC(),
	}
}

// Reporter receives progress events. Implementations must not block the
// import for long and must not fail it.
type Reporter interface {
	Report(ctx context.Context, ev ProgressEvent)
}

// MultiReporter fans an event out in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, ev ProgressEvent) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, ev)
		}
	}
}

// LogReporter writes events to the context logger.
type LogReporter struct{}

func (LogReporter) Report(ctx context.Context, ev ProgressEvent) {
	fields := []zap.Field{
		zap.String("batch_id", ev.BatchID.String()),
		zap.String("stage", string(ev.Stage)),
		zap.Int("rows_seen", ev.RowsSeen),
		zap.Int("rows_imported", ev.RowsImported),
		zap.Int("rows_duplicate", ev.RowsDuplicate),
		zap.Int("rows_failed", ev.RowsFailed),
	}
	if ev.Sheet != "" {
		fields = append(fields, zap.String("sheet", ev.Sheet))
	}
	log := logger.FromContext(ctx)
	switch ev.Stage {
	case StageProgress:
		log.Debug("import_progress", fields...)
	case StageFailed:
		log.Warn("import_progress", fields...)
	default:
		log.Info("import_progress", fields...)
	}
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, ev ProgressEvent)

func (f ReporterFunc) Report(ctx context.Context, ev ProgressEvent) { f(ctx, ev) }
