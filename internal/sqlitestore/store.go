// Package sqlitestore persists tenders, batches and the company profile in a
// single SQLite file for the offline CLI.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/sqlitestore/migrations"
)

// timeLayout keeps a fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database file at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mapError translates driver errors into the model sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", what, models.ErrDuplicate)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

const selectCols = `id, title, description, organization, location, reference_number,
	value, deadline, source_tag, link, requirements, score,
	source_file, source_sheet, import_batch_id, scored_at, created_at, updated_at`

func scanTender(scan func(dest ...any) error) (*models.Tender, error) {
	var (
		t                              models.Tender
		id, deadline, created, updated string
		link, score, batchID, scoredAt sql.NullString
		reqRaw                         string
	)
	err := scan(
		&id, &t.Title, &t.Description, &t.Organization, &t.Location, &t.ReferenceNumber,
		&t.Value, &deadline, &t.SourceTag, &link, &reqRaw, &score,
		&t.SourceFile, &t.SourceSheet, &batchID, &scoredAt, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode id: %w", err)
	}
	if t.Deadline, err = parseTime(deadline); err != nil {
		return nil, fmt.Errorf("decode deadline: %w", err)
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if t.ScoredAt, err = parseNullTime(scoredAt); err != nil {
		return nil, fmt.Errorf("decode scored_at: %w", err)
	}
	if link.Valid {
		l := link.String
		t.Link = &l
	}
	if batchID.Valid {
		bid, err := uuid.Parse(batchID.String)
		if err != nil {
			return nil, fmt.Errorf("decode import_batch_id: %w", err)
		}
		t.ImportBatchID = &bid
	}
	if reqRaw != "" {
		if err := json.Unmarshal([]byte(reqRaw), &t.Requirements); err != nil {
			return nil, fmt.Errorf("decode requirements: %w", err)
		}
	}
	if score.Valid {
		var bd models.ScoreBreakdown
		if err := json.Unmarshal([]byte(score.String), &bd); err != nil {
			return nil, fmt.Errorf("decode score: %w", err)
		}
		t.Score = &bd
	}
	return &t, nil
}

func encodeScore(score *models.ScoreBreakdown) (sql.NullString, sql.NullInt64, error) {
	if score == nil {
		return sql.NullString{}, sql.NullInt64{}, nil
	}
	raw, err := json.Marshal(score)
	if err != nil {
		return sql.NullString{}, sql.NullInt64{}, err
	}
	return sql.NullString{String: string(raw), Valid: true},
		sql.NullInt64{Int64: int64(score.OverallScore), Valid: true}, nil
}

func nullLink(link *string) sql.NullString {
	if link == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *link, Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenders (id, title, description, organization, location, reference_number,
			value, deadline, source_tag, link, requirements, score, overall_score,
			source_file, source_sheet, import_batch_id, scored_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Title, t.Description, t.Organization, t.Location, t.ReferenceNumber,
		t.Value, formatTime(t.Deadline), string(t.SourceTag), nullLink(t.Link), string(req), score, overall,
		t.SourceFile, t.SourceSheet, nullUUID(t.ImportBatchID), nullTime(t.ScoredAt),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return mapError(err, "insert tender")
}

func (s *Store) GetTender(ctx context.Context, id uuid.UUID) (*models.Tender, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM tenders WHERE id = ?`, id.String())
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender "+id.String())
	}
	return t, nil
}

func (s *Store) FindByReference(ctx context.Context, ref string) (*models.Tender, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectCols+` FROM tenders
		WHERE trim(reference_number) <> '' AND lower(trim(reference_number)) = lower(trim(?))
		LIMIT 1`, ref)
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender by reference")
	}
	return t, nil
}

func (s *Store) FindByTitle(ctx context.Context, title string) (*models.Tender, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectCols+` FROM tenders
		WHERE lower(trim(title)) = lower(trim(?))
		ORDER BY created_at LIMIT 1`, title)
	t, err := scanTender(row.Scan)
	if err != nil {
		return nil, mapError(err, "tender by title")
	}
	return t, nil
}

func (s *Store) UpdateTender(ctx context.Context, t *models.Tender) error {
	req, err := json.Marshal(t.Requirements)
	if err != nil {
		return fmt.Errorf("encode requirements: %w", err)
	}
	score, overall, err := encodeScore(t.Score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	updated := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenders SET title = ?, description = ?, organization = ?, location = ?,
			reference_number = ?, value = ?, deadline = ?, source_tag = ?, link = ?,
			requirements = ?, score = ?, overall_score = ?, scored_at = ?, updated_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Organization, t.Location,
		t.ReferenceNumber, t.Value, formatTime(t.Deadline), string(t.SourceTag), nullLink(t.Link),
		string(req), score, overall, nullTime(t.ScoredAt), formatTime(updated),
		t.ID.String(),
	)
	if err != nil {
		return mapError(err, "update tender "+t.ID.String())
	}
	if err := requireAffected(res, "tender "+t.ID.String()); err != nil {
		return err
	}
	t.UpdatedAt = updated
	return nil
}

func (s *Store) DeleteTender(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenders WHERE id = ?`, id.String())
	if err != nil {
		return mapError(err, "delete tender")
	}
	return requireAffected(res, "tender "+id.String())
}

func (s *Store) SaveScore(ctx context.Context, id uuid.UUID, score *models.ScoreBreakdown, scoredAt time.Time) error {
	raw, overall, err := encodeScore(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenders SET score = ?, overall_score = ?, scored_at = ? WHERE id = ?`,
		raw, overall, formatTime(scoredAt), id.String())
	if err != nil {
		return mapError(err, "save score")
	}
	return requireAffected(res, "tender "+id.String())
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}

func buildListWhere(p models.ListParams) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if p.Query != "" {
		like := "%" + p.Query + "%"
		clauses = append(clauses, "(title LIKE ? OR organization LIKE ? OR reference_number LIKE ?)")
		args = append(args, like, like, like)
	}
	if p.SourceTag != "" {
		clauses = append(clauses, "source_tag = ?")
		args = append(args, string(p.SourceTag))
	}
	if p.MinScore > 0 {
		clauses = append(clauses, "overall_score >= ?")
		args = append(args, p.MinScore)
	}
	if p.BatchID != nil {
		clauses = append(clauses, "import_batch_id = ?")
		args = append(args, p.BatchID.String())
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func listOrder(sortBy string) string {
	switch sortBy {
	case models.SortScore:
		return " ORDER BY overall_score IS NULL, overall_score DESC, created_at, id"
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
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tenders "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	query := "SELECT " + selectCols + " FROM tenders " + where + listOrder(params.SortBy) + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, params.Limit, params.Offset)...)
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
	return &models.ListResult{Tenders: tenders, Total: total, Limit: params.Limit, Offset: params.Offset}, nil
}

func (s *Store) GetProfile(ctx context.Context) (*models.CompanyProfile, error) {
	var (
		p                     models.CompanyProfile
		sectors, types, certs string
		updated               string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT turnover_amount, business_sectors, project_types, certifications, updated_at
		FROM company_profile WHERE id = 1`,
	).Scan(&p.TurnoverAmount, &sectors, &types, &certs, &updated)
	if err != nil {
		return nil, mapError(err, "profile")
	}
	if err := decodeList(sectors, &p.BusinessSectors); err != nil {
		return nil, err
	}
	if err := decodeList(types, &p.ProjectTypes); err != nil {
		return nil, err
	}
	if err := decodeList(certs, &p.Certifications); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("decode profile updated_at: %w", err)
	}
	return &p, nil
}

func decodeList(raw string, dst *[]string) error {
	*dst = []string{}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode profile list: %w", err)
	}
	return nil
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

func (s *Store) SaveProfile(ctx context.Context, p *models.CompanyProfile) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_profile (id, turnover_amount, business_sectors, project_types, certifications, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			turnover_amount = excluded.turnover_amount,
			business_sectors = excluded.business_sectors,
			project_types = excluded.project_types,
			certifications = excluded.certifications,
			updated_at = excluded.updated_at`,
		p.TurnoverAmount, encodeList(p.BusinessSectors), encodeList(p.ProjectTypes), encodeList(p.Certifications),
		formatTime(p.UpdatedAt),
	)
	return mapError(err, "save profile")
}

const batchCols = `id, file_name, rows_seen, rows_imported, rows_duplicate, rows_failed,
	rows_skipped, sheets_failed, errors, status, started_at, completed_at`

func (s *Store) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (`+batchCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.FileName, b.RowsSeen, b.RowsImported, b.RowsDuplicate, b.RowsFailed,
		b.RowsSkipped, b.SheetsFailed, encodeList(b.Errors), string(b.Status),
		formatTime(b.StartedAt), nullTime(b.CompletedAt),
	)
	return mapError(err, "insert batch")
}

func (s *Store) UpdateBatch(ctx context.Context, b *models.ImportBatch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_batches SET rows_seen = ?, rows_imported = ?, rows_duplicate = ?,
			rows_failed = ?, rows_skipped = ?, sheets_failed = ?, errors = ?,
			status = ?, completed_at = ?
		WHERE id = ?`,
		b.RowsSeen, b.RowsImported, b.RowsDuplicate,
		b.RowsFailed, b.RowsSkipped, b.SheetsFailed, encodeList(b.Errors),
		string(b.Status), nullTime(b.CompletedAt),
		b.ID.String(),
	)
	if err != nil {
		return mapError(err, "update batch")
	}
	return requireAffected(res, "batch "+b.ID.String())
}

func scanBatch(scan func(dest ...any) error) (*models.ImportBatch, error) {
	var (
		b                 models.ImportBatch
		id, errs, started string
		completed         sql.NullString
	)
	if err := scan(&id, &b.FileName, &b.RowsSeen, &b.RowsImported, &b.RowsDuplicate, &b.RowsFailed,
		&b.RowsSkipped, &b.SheetsFailed, &errs, &b.Status, &started, &completed); err != nil {
		return nil, err
	}
	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("decode batch id: %w", err)
	}
	if b.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("decode started_at: %w", err)
	}
	if b.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, fmt.Errorf("decode completed_at: %w", err)
	}
	b.Errors = []string{}
	if errs != "" {
		if err := json.Unmarshal([]byte(errs), &b.Errors); err != nil {
			return nil, fmt.Errorf("decode batch errors: %w", err)
		}
	}
	return &b, nil
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, `SELECT `+batchCols+` FROM import_batches WHERE id = ?`, id.String()).Scan)
	if err != nil {
		return nil, mapError(err, "batch "+id.String())
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 || limit > models.MaxListLimit {
		limit = models.DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+batchCols+` FROM import_batches ORDER BY started_at DESC LIMIT ?`, limit)
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
