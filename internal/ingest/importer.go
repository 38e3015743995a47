package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/logger"
	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/scoring"
	"github.com/david/tender-scout/internal/sheets"
)

const maxBatchErrors = 200

type Options struct {
	HeaderScanRows       int
	ProgressEvery        int
	DeadlineFallbackDays int
	Scorer               *scoring.Engine
	Reporter             Reporter
}

// Importer runs spreadsheet uploads through assembly, dedup, scoring and
// persistence. Rows of one upload are processed sequentially; the dedup
// gate makes concurrent uploads into the same store safe.
type Importer struct {
	store          TenderStore
	batches        BatchSink
	profiles       ProfileReader
	gate           *Gate
	assembler      *Assembler
	scorer         *scoring.Engine
	reporter       Reporter
	headerScanRows int
	progressEvery  int
}

func NewImporter(store TenderStore, batches BatchSink, profiles ProfileReader, opts Options) *Importer {
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = 10
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 100
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.NewEngine(nil)
	}
	if opts.Reporter == nil {
		opts.Reporter = LogReporter{}
	}
	return &Importer{
		store:          store,
		batches:        batches,
		profiles:       profiles,
		gate:           NewGate(store),
		assembler:      NewAssembler(NewNormalizer(opts.DeadlineFallbackDays)),
		scorer:         opts.Scorer,
		reporter:       opts.Reporter,
		headerScanRows: opts.HeaderScanRows,
		progressEvery:  opts.ProgressEvery,
	}
}

// ImportFile decodes r according to fileName's extension and imports every
// sheet. The returned batch is always non-nil and reflects whatever was
// processed, including when an error is returned.
func (im *Importer) ImportFile(ctx context.Context, fileName string, r io.Reader) (*models.ImportBatch, error) {
	batch := models.NewImportBatch(fileName)
	if err := im.batches.CreateBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("create batch: %w", err)
	}
	ctx = im.batchContext(ctx, batch)
	im.report(ctx, batch, "", StageStarted)

	wb, err := sheets.Open(fileName, r)
	if err != nil {
		appendError(batch, err.Error())
		im.finish(ctx, batch, models.BatchFailed)
		return batch, fmt.Errorf("open %s: %w", fileName, err)
	}
	defer wb.Close()

	return batch, im.ImportWorkbook(ctx, batch, wb)
}

// ImportSheet imports a single sheet as its own batch.
func (im *Importer) ImportSheet(ctx context.Context, fileName string, sh sheets.Sheet) (*models.ImportBatch, error) {
	batch := models.NewImportBatch(fileName)
	if err := im.batches.CreateBatch(ctx, batch); err != nil {
		return batch, fmt.Errorf("create batch: %w", err)
	}
	ctx = im.batchContext(ctx, batch)
	im.report(ctx, batch, "", StageStarted)
	return batch, im.ImportWorkbook(ctx, batch, singleSheet{sh})
}

// ImportWorkbook imports every sheet of wb into an existing batch and moves
// the batch to its terminal status. A failing sheet is recorded and the
// next sheet still runs; cancellation stops the batch and marks it failed.
func (im *Importer) ImportWorkbook(ctx context.Context, batch *models.ImportBatch, wb sheets.Workbook) error {
	log := logger.FromContext(ctx)
	profile := im.loadProfile(ctx)

	all := wb.Sheets()
	var runErr error
	for _, sh := range all {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := im.importSheet(ctx, batch, sh, profile); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				runErr = ctxErr
				break
			}
			batch.SheetsFailed++
			appendError(batch, fmt.Sprintf("sheet %q: %v", sh.Name(), err))
			log.Warn("sheet_failed", zap.String("sheet", sh.Name()), zap.Error(err))
		}
	}

	if runErr == nil {
		im.reconcileScores(ctx, batch, profile)
	}

	status := models.BatchCompleted
	switch {
	case runErr != nil:
		appendError(batch, "import cancelled: "+runErr.Error())
		status = models.BatchFailed
	case len(all) > 0 && batch.SheetsFailed == len(all):
		status = models.BatchFailed
	}
	im.finish(ctx, batch, status)
	return runErr
}

func (im *Importer) importSheet(ctx context.Context, batch *models.ImportBatch, sh sheets.Sheet, profile *models.CompanyProfile) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	name := sh.Name()
	log := logger.FromContext(ctx).With(zap.String("sheet", name))

	rows, err := sh.Rows()
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	headerIdx, fm := DetectHeader(rows, im.headerScanRows)
	if !fm.Has(FieldTitle) {
		log.Info("sheet_skipped", zap.String("reason", "no title column"), zap.Int("rows", len(rows)))
		im.report(ctx, batch, name, StageSheetDone)
		return nil
	}
	log.Debug("schema_resolved", zap.Int("header_row", headerIdx), zap.Any("columns", fm.Columns), zap.Int("brief", fm.Brief))

	registry, err := sh.Hyperlinks()
	if err != nil {
		log.Warn("hyperlink_registry_unavailable", zap.Error(err))
		registry = nil
	}
	sc := SheetContext{
		Sheet:    sh,
		Name:     name,
		FileName: batch.FileName,
		Registry: registry,
		BatchID:  &batch.ID,
	}

	for i := headerIdx + 1; i < len(rows); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rowIsBlank(rows[i]) {
			continue
		}
		batch.RowsSeen++
		im.importRow(ctx, batch, i, rows[i], fm, sc, profile)
		if batch.RowsSeen%im.progressEvery == 0 {
			im.checkpoint(ctx, batch, name, StageProgress)
		}
	}
	im.checkpoint(ctx, batch, name, StageSheetDone)
	return nil
}

func (im *Importer) importRow(ctx context.Context, batch *models.ImportBatch, rowIdx int, row []string, fm FieldMap, sc SheetContext, profile *models.CompanyProfile) {
	t, err := im.assembler.AssembleRow(rowIdx, row, fm, sc)
	switch {
	case errors.Is(err, ErrNoTitle):
		batch.RowsSkipped++
		return
	case err != nil:
		batch.RowsFailed++
		appendError(batch, fmt.Sprintf("sheet %q: %v", sc.Name, err))
		return
	}

	if profile != nil {
		bd := im.scorer.Score(t, profile)
		now := time.Now().UTC()
		t.Score = &bd
		t.ScoredAt = &now
	}

	dup, err := im.gate.Admit(ctx, t, im.store.CreateTender)
	switch {
	case err != nil:
		batch.RowsFailed++
		appendError(batch, fmt.Sprintf("sheet %q row %d: save: %v", sc.Name, rowIdx+1, err))
	case dup:
		batch.RowsDuplicate++
	default:
		batch.RowsImported++
	}
}

// loadProfile returns nil when no profile is configured; tenders are then
// stored unscored until the next rescore.
func (im *Importer) loadProfile(ctx context.Context) *models.CompanyProfile {
	if im.profiles == nil {
		return nil
	}
	p, err := im.profiles.GetProfile(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logger.FromContext(ctx).Warn("profile_unavailable", zap.Error(err))
		}
		return nil
	}
	return p
}

// reconcileScores rescores the rows of batch when the profile was replaced
// while the batch ran. The rescore started by that change may already have
// passed the rows inserted after it.
func (im *Importer) reconcileScores(ctx context.Context, batch *models.ImportBatch, started *models.CompanyProfile) {
	current := im.loadProfile(ctx)
	if current == nil || !profileChanged(started, current) {
		return
	}
	store, ok := im.store.(scoring.RescoreStore)
	if !ok {
		return
	}
	log := logger.FromContext(ctx)
	res, err := im.scorer.Rescore(ctx, store, current, models.ListParams{BatchID: &batch.ID}, nil)
	if err != nil {
		log.Warn("batch_rescore_failed", zap.Error(err))
		return
	}
	log.Info("batch_rescored", zap.Int("scored", res.Scored), zap.Int("failed", res.Failed))
}

func profileChanged(before, after *models.CompanyProfile) bool {
	if before == nil || after == nil {
		return before != after
	}
	return !before.UpdatedAt.Equal(after.UpdatedAt)
}

func (im *Importer) batchContext(ctx context.Context, batch *models.ImportBatch) context.Context {
	log := logger.FromContext(ctx).With(zap.String("batch_id", batch.ID.String()), zap.String("file", batch.FileName))
	return logger.WithContext(ctx, log)
}

func (im *Importer) checkpoint(ctx context.Context, batch *models.ImportBatch, sheet string, stage Stage) {
	if err := im.batches.UpdateBatch(context.WithoutCancel(ctx), batch); err != nil {
		logger.FromContext(ctx).Warn("batch_update_failed", zap.Error(err))
	}
	im.report(ctx, batch, sheet, stage)
}

func (im *Importer) finish(ctx context.Context, batch *models.ImportBatch, status models.BatchStatus) {
	batch.Finish(status)
	stage := StageCompleted
	if status == models.BatchFailed {
		stage = StageFailed
	}
	im.checkpoint(ctx, batch, "", stage)
}

func (im *Importer) report(ctx context.Context, batch *models.ImportBatch, sheet string, stage Stage) {
	im.reporter.Report(context.WithoutCancel(ctx), newEvent(batch, sheet, stage))
}

func appendError(batch *models.ImportBatch, msg string) {
	switch {
	case len(batch.Errors) < maxBatchErrors:
		batch.Errors = append(batch.Errors, msg)
	case len(batch.Errors) == maxBatchErrors:
		batch.Errors = append(batch.Errors, "further errors omitted")
	}
}

type singleSheet struct{ sheet sheets.Sheet }

func (s singleSheet) Sheets() []sheets.Sheet { return []sheets.Sheet{s.sheet} }
func (s singleSheet) Close() error           { return nil }
