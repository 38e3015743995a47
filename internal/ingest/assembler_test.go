package ingest

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-scout/internal/models"
)

func fixedAssembler(now time.Time) *Assembler {
	return NewAssembler(&Normalizer{Now: func() time.Time { return now }, FallbackDays: 30})
}

func TestAssembleRow(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	a := fixedAssembler(now)
	header := []string{"Reference No", "Name of Work", "Department", "Estimated Value", "Last Date", "Turnover", "District", "Scope"}
	fm := ResolveSchema(header)
	batchID := uuid.New()
	sc := SheetContext{Sheet: &fakeSheet{name: "Tenders"}, Name: "Tenders", FileName: "week.xlsx", BatchID: &batchID}

	row := []string{"GEM/2025/B/42", " Construction of  court ", "PWD", "₹1,23,456.50", "15/03/2025", "3 crores", "Pune", "Civil works, ISO 9001"}
	tender, err := a.AssembleRow(4, row, fm, sc)
	require.NoError(t, err)

	assert.Equal(t, "Construction of court", tender.Title)
	assert.Equal(t, "PWD", tender.Organization)
	assert.Equal(t, "Pune", tender.Location)
	assert.Equal(t, "GEM/2025/B/42", tender.ReferenceNumber)
	assert.Equal(t, int64(12345650), tender.Value)
	assert.Equal(t, time.Date(2025, 3, 15, 23, 59, 59, 999999999, time.UTC), tender.Deadline)
	assert.Equal(t, models.SourceGeM, tender.SourceTag)
	assert.Equal(t, "3 crores", tender.Requirements.Turnover)
	assert.Equal(t, map[string]string{"Scope": "Civil works, ISO 9001"}, tender.Requirements.Extra)
	assert.Equal(t, "week.xlsx", tender.SourceFile)
	assert.Equal(t, "Tenders", tender.SourceSheet)
	assert.Equal(t, &batchID, tender.ImportBatchID)
	assert.Nil(t, tender.Link)
	assert.NotEqual(t, uuid.Nil, tender.ID)
}

func TestAssembleRowDefaults(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	a := fixedAssembler(now)
	fm := ResolveSchema([]string{"Title", "Value", "Closing"})

	tender, err := a.AssembleRow(1, []string{"Bridge repair", "on request", "TBD"}, fm, SheetContext{Name: "GeM Bids"})
	require.NoError(t, err)
	assert.Zero(t, tender.Value)
	assert.Equal(t, now.AddDate(0, 0, 30), tender.Deadline)
	assert.Equal(t, models.SourceGeM, tender.SourceTag, "sheet name is the fallback signal")
	assert.Nil(t, tender.Requirements.Extra)

	// short rows leave trailing fields absent
	tender, err = a.AssembleRow(2, []string{"Culvert"}, fm, SheetContext{Name: "Main"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceNonGeM, tender.SourceTag)
	assert.Equal(t, now.AddDate(0, 0, 30), tender.Deadline)
}

func TestAssembleRowErrors(t *testing.T) {
	a := fixedAssembler(time.Now())
	fm := ResolveSchema([]string{"Title", "Amount"})

	_, err := a.AssembleRow(1, []string{"   ", "100"}, fm, SheetContext{})
	assert.ErrorIs(t, err, ErrNoTitle)

	_, err = a.AssembleRow(1, []string{"Road", "-500"}, fm, SheetContext{})
	assert.ErrorIs(t, err, ErrNegativeValue)
	assert.Contains(t, err.Error(), "row 2")

	_, err = a.AssembleRow(1, []string{"Road"}, ResolveSchema([]string{"Dept"}), SheetContext{})
	assert.True(t, errors.Is(err, ErrNoTitle))
}

func TestAssembleRowRecoversPanic(t *testing.T) {
	a := fixedAssembler(time.Now())
	fm := ResolveSchema([]string{"Tender Brief"})
	sc := SheetContext{Sheet: panicSheet{&fakeSheet{}}}

	tender, err := a.AssembleRow(1, []string{"Road"}, fm, sc)
	assert.Nil(t, tender)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

type panicSheet struct{ *fakeSheet }

func (panicSheet) Hyperlink(int, int) (string, bool) { panic("corrupt relationship") }
