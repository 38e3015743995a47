package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/david/tender-scout/internal/models"
	"github.com/david/tender-scout/internal/sheets"
)

var (
	// ErrNoTitle marks a row that has no usable title. Such rows are
	// skipped, not failed.
	ErrNoTitle       = errors.New("row has no title")
	ErrNegativeValue = errors.New("negative tender value")
)

// SheetContext carries what every row of one sheet shares.
type SheetContext struct {
	Sheet    sheets.Sheet
	Name     string
	FileName string
	Registry map[string]string
	BatchID  *uuid.UUID
}

// Assembler turns raw rows into tenders.
type Assembler struct {
	norm *Normalizer
}

func NewAssembler(norm *Normalizer) *Assembler {
	if norm == nil {
		norm = NewNormalizer(30)
	}
	return &Assembler{norm: norm}
}

// AssembleRow builds one tender from a data row. Panics raised while reading
// a malformed row are converted into a row error.
func (a *Assembler) AssembleRow(rowIdx int, row []string, fm FieldMap, sc SheetContext) (t *models.Tender, err error) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			err = fmt.Errorf("row %d: panic: %v", rowIdx+1, r)
		}
	}()

	titleCol, ok := fm.Index(FieldTitle)
	if !ok {
		return nil, ErrNoTitle
	}
	title := NormalizeText(cellAt(row, titleCol))
	if title == "" {
		return nil, ErrNoTitle
	}

	var value int64
	if col, ok := fm.Index(FieldValue); ok {
		value = NormalizeCurrency(cellAt(row, col))
		if value < 0 {
			return nil, fmt.Errorf("row %d: %w: %q", rowIdx+1, ErrNegativeValue, cellAt(row, col))
		}
	}

	deadlineCol, ok := fm.Index(FieldDeadline)
	if !ok {
		deadlineCol = -1
	}
	deadline, _ := a.norm.Deadline(cellAt(row, deadlineCol))

	ref := a.text(row, fm, FieldReference)
	now := time.Now().UTC()
	tender := &models.Tender{
		ID:              uuid.New(),
		Title:           title,
		Organization:    a.text(row, fm, FieldOrganization),
		Location:        a.text(row, fm, FieldLocation),
		ReferenceNumber: ref,
		Value:           value,
		Deadline:        deadline,
		SourceTag:       models.DeriveSourceTag(ref, sc.Name),
		Link:            extractLink(sc.Sheet, sc.Registry, rowIdx, row, fm),
		Requirements: models.Requirements{
			Turnover: a.text(row, fm, FieldTurnover),
			Extra:    extraColumns(row, fm),
		},
		SourceFile:    sc.FileName,
		SourceSheet:   sc.Name,
		ImportBatchID: sc.BatchID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tender, nil
}

func (a *Assembler) text(row []string, fm FieldMap, f Field) string {
	col, ok := fm.Index(f)
	if !ok {
		return ""
	}
	return NormalizeText(cellAt(row, col))
}

func extraColumns(row []string, fm FieldMap) map[string]string {
	var extra map[string]string
	for col, name := range fm.Unmapped() {
		v := NormalizeText(cellAt(row, col))
		if v == "" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[name] = v
	}
	return extra
}
