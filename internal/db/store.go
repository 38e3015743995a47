package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/tender-scout/internal/models"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// selectCols is the column list every tender query scans.
const selectCols = `id, title, description, organization, location, reference_number,
	value, deadline, source_tag, link, requirements, score,
	source_file, source_sheet, import_batch_id, scored_at, created_at, updated_at`

func scanTender(scan func(dest ...any) error) (*models.Tender, error) {
	var t models.Tender
	var reqRaw, scoreRaw []byte
	err := scan(
		&t.ID, &t.Title, &t.Description, &t.Organization, &t.Location, &t.ReferenceNumber,
		&t.Value, &t.Deadline, &t.SourceTag, &t.Link, &reqRaw, &scoreRaw,
		&t.SourceFile, &t.SourceSheet, &t.ImportBatchID, &t.ScoredAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(reqRaw) > 0 {
		if err := json.Unmarshal(reqRaw, &t.Requirements); err != nil {
			return nil, fmt.Errorf("decode requirements: %w", err)
		}
	}
	if len(scoreRaw) > 0 {
		var bd models.ScoreBreakdown
		if err := json.Unmarshal(scoreRaw, &bd); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		t.Score = &bd
	}
	return &t, nil
}

func encodeScore(score *models.ScoreBreakdown) ([]byte, *int, error) {
	if score == nil {
		return nil, nil, nil
	}
	raw, err := json.Marshal(score)
	if err != nil {
		return nil, nil, err
	}
	overall := score.OverallScore
	return raw, &overall, nil
}

// mapError translates driver errors into the model sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w (%s)", what, models.ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) CreateTender(ctx context.Context, t *models.Tender) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	req, err := json.Marshal(t.Requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	score, overall, err := encodeScore(t.Score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tenders (id, title, description, organization, location, reference_number,
			value, deadline, source_tag, link, requirements, score, overall_score,
			source_file, source_sheet, import_batch_id, scored_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		t.ID, t.Title, t.Description, t.Organization, t.Location, t.ReferenceNumber,
		t.Value, t.Deadline, string(t.SourceTag), t.Link, req, score, overall,
		t.SourceFile, t.SourceSheet, t.ImportBatchID, t.ScoredAt, t.CreatedAt, t.UpdatedAt,
	)
	return mapError(err, "insert tender")
}

func (s *Store) GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectCols+` FROM tenders WHERE id = $1`, id)
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender "+id.String())
	}
	return t, nil
}

func (s *Store) FindByReference(ctx context.Context, ref string) (*models.Tender, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectCols+` FROM tenders
		WHERE btrim(reference_number) <> '' AND lower(btrim(reference_number)) = lower(btrim($1))
		LIMIT 1`, ref)
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender by reference")
	}
	return t, nil
}

func (s *Store) FindByTitle(ctx context.Context, title string) (*models.Tender, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectCols+` FROM tenders
		WHERE lower(btrim(title)) = lower(btrim($1))
		ORDER BY created_at LIMIT 1`, title)
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender by title")
	}
	return t, nil
}

// UpdateTender writes every user-editable column of t.
func (s *Store) UpdateTender(ctx context.Context, t *models.Tender) error {
	req, err := json.Marshal(t.Requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	score, overall, err := encodeScore(t.Score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		UPDATE tenders SET title = $2, description = $3, organization = $4, location = $5,
			reference_number = $6, value = $7, deadline = $8, source_tag = $9, link = $10,
			requirements = $11, score = $12, overall_score = $13, scored_at = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Title, t.Description, t.Organization, t.Location,
		t.ReferenceNumber, t.Value, t.Deadline, string(t.SourceTag), t.Link,
		req, score, overall, t.ScoredAt,
	).Scan(&t.UpdatedAt)
	return mapError(err, "update tender "+t.ID.String())
}

func (s *Store) DeleteTender(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenders WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete tender")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tender %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveScore(ctx context.Context, id uuid.UUID, score *models.ScoreBreakdown, scoredAt time.Time) error {
	raw, overall, err := encodeScore(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenders SET score = $2, overall_score = $3, scored_at = $4 WHERE id = $1`,
		id, raw, overall, scoredAt)
	if err != nil {
		return mapError(err, "save score")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tender %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// buildListWhere renders the filter clause with $n placeholders.
func buildListWhere(p models.ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if p.Query != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR organization ILIKE '%%' || $%d || '%%' OR reference_number ILIKE '%%' || $%d || '%%')", argIdx, argIdx, argIdx)
		args = append(args, p.Query)
		argIdx++
	}
	if p.SourceTag != "" {
		where += fmt.Sprintf(" AND source_tag = $%d", argIdx)
		args = append(args, string(p.SourceTag))
		argIdx++
	}
	if p.MinScore > 0 {
		where += fmt.Sprintf(" AND overall_score >= $%d", argIdx)
		args = append(args, p.MinScore)
		argIdx++
	}
	if p.BatchID != nil {
		where += fmt.Sprintf(" AND import_batch_id = $%d", argIdx)
		args = append(args, *p.BatchID)
	}
	return where, args
}

func listOrder(sortBy string) string {
	switch sortBy {
	case models.SortScore:
		return " ORDER BY overall_score DESC NULLS LAST, created_at, id"
	case models.SortValue:
		return " ORDER BY value DESC, created_at, id"
	case models.SortCreated:
		return " ORDER BY created_at, id"
	default:
		return " ORDER BY deadline, created_at, id"
	}
}

func (s *Store) ListTenders(ctx context.Context, params models.ListParams) (*models.ListResult, error) {
	params.Clamp()
	where, args := buildListWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tenders "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := "SELECT " + selectCols + " FROM tenders " + where + listOrder(params.SortBy)
	selectSQL += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	tenders := []models.Tender{}
	for rows.Next() {
		t, err := scanTender(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		tenders = append(tenders, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &models.ListResult{
		Tenders: tenders,
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}, nil
}

func (s *Store) GetProfile(ctx context.Context) (*models.CompanyProfile, error) {
	var p models.CompanyProfile
	err := s.pool.QueryRow(ctx, `
		SELECT turnover_amount, business_sectors, project_types, certifications, updated_at
		FROM company_profile WHERE id = 1`,
	).Scan(&p.TurnoverAmount, &p.BusinessSectors, &p.ProjectTypes, &p.Certifications, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "profile")
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p *models.CompanyProfile) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO company_profile (id, turnover_amount, business_sectors, project_types, certifications, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			turnover_amount = EXCLUDED.turnover_amount,
			business_sectors = EXCLUDED.business_sectors,
			project_types = EXCLUDED.project_types,
			certifications = EXCLUDED.certifications,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at`,
		p.TurnoverAmount, nonNil(p.BusinessSectors), nonNil(p.ProjectTypes), nonNil(p.Certifications),
	).Scan(&p.UpdatedAt)
	return mapError(err, "save profile")
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func (s *Store) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	errs, err := json.Marshal(nonNil(b.Errors))
	if err != nil {
		return fmt.Errorf("encode batch errors: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_batches (id, file_name, rows_seen, rows_imported, rows_duplicate, rows_failed,
			rows_skipped, sheets_failed, errors, status, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.FileName, b.RowsSeen, b.RowsImported, b.RowsDuplicate, b.RowsFailed,
		b.RowsSkipped, b.SheetsFailed, errs, string(b.Status), b.StartedAt, b.CompletedAt,
	)
	return mapError(err, "insert batch")
}

func (s *Store) UpdateBatch(ctx context.Context, b *models.ImportBatch) error {
	errs, err := json.Marshal(nonNil(b.Errors))
	if err != nil {
		return fmt.Errorf("encode batch errors: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_batches SET rows_seen = $2, rows_imported = $3, rows_duplicate = $4,
			rows_failed = $5, rows_skipped = $6, sheets_failed = $7, errors = $8,
			status = $9, completed_at = $10
		WHERE id = $1`,
		b.ID, b.RowsSeen, b.RowsImported, b.RowsDuplicate,
		b.RowsFailed, b.RowsSkipped, b.SheetsFailed, errs,
		string(b.Status), b.CompletedAt,
	)
	if err != nil {
		return mapError(err, "update batch")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", b.ID, models.ErrNotFound)
	}
	return nil
}

const batchCols = `id, file_name, rows_seen, rows_imported, rows_duplicate, rows_failed,
	rows_skipped, sheets_failed, errors, status, started_at, completed_at`

func scanBatch(scan func(dest ...any) error) (*models.ImportBatch, error) {
	var b models.ImportBatch
	var errs []byte
	if err := scan(&b.ID, &b.FileName, &b.RowsSeen, &b.RowsImported, &b.RowsDuplicate, &b.RowsFailed,
		&b.RowsSkipped, &b.SheetsFailed, &errs, &b.Status, &b.StartedAt, &b.CompletedAt); err != nil {
		return nil, err
	}
	b.Errors = []string{}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &b.Errors); err != nil {
			return nil, fmt.Errorf("decode batch errors: %w", err)
		}
	}
	return &b, nil
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	b, err := scanBatch(s.pool.QueryRow(ctx, `SELECT `+batchCols+` FROM import_batches WHERE id = $1`, id).Scan)
	if err != nil {
		return nil, mapError(err, "batch "+id.String())
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 || limit > models.MaxListLimit {
		limit = models.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+batchCols+` FROM import_batches ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []models.ImportBatch{}
	for rows.Next() {
		b, err := scanBatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
