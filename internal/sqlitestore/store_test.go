package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-scout/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tenders.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTender(title, ref string, deadline time.Time) *models.Tender {
	return &models.Tender{
		ID:              uuid.New(),
		Title:           title,
		ReferenceNumber: ref,
		Deadline:        deadline,
		SourceTag:       models.DeriveSourceTag(ref, ""),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenders.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
}

func TestTenderRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	batch := models.NewImportBatch("week.xlsx")
	require.NoError(t, s.CreateBatch(ctx, batch))

	link := "https://example.org/nit.pdf"
	deadline := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)
	tender := newTender("Road Resurfacing", "GEM/2025/B/1", deadline)
	tender.Organization = "PWD"
	tender.Value = 125000000
	tender.Link = &link
	tender.ImportBatchID = &batch.ID
	tender.Requirements = models.Requirements{Turnover: "5 Cr", Extra: map[string]string{"EMD": "50,000"}}
	tender.Score = &models.ScoreBreakdown{OverallScore: 80, Criteria: []models.CriterionResult{{Criterion: models.CriterionTurnover, Score: 100, Met: true}}}
	require.NoError(t, s.CreateTender(ctx, tender))

	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, tender.Title, got.Title)
	assert.Equal(t, models.SourceGeM, got.SourceTag)
	assert.Equal(t, int64(125000000), got.Value)
	assert.True(t, deadline.Equal(got.Deadline))
	require.NotNil(t, got.Link)
	assert.Equal(t, link, *got.Link)
	require.NotNil(t, got.ImportBatchID)
	assert.Equal(t, batch.ID, *got.ImportBatchID)
	assert.Equal(t, "50,000", got.Requirements.Extra["EMD"])
	require.NotNil(t, got.Score)
	assert.Equal(t, 80, got.Score.OverallScore)
	assert.Nil(t, got.ScoredAt)

	_, err = s.GetTender(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUniqueIndexesMapToErrDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateTender(ctx, newTender("Road", "NIT-1", now)))
	assert.ErrorIs(t, s.CreateTender(ctx, newTender("Other", " nit-1 ", now)), models.ErrDuplicate)

	require.NoError(t, s.CreateTender(ctx, newTender("Bridge", "", now)))
	assert.ErrorIs(t, s.CreateTender(ctx, newTender("  BRIDGE ", "", now)), models.ErrDuplicate)

	// a referenced tender does not occupy the title key
	require.NoError(t, s.CreateTender(ctx, newTender("Road", "", now)))
}

func TestFindLookups(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateTender(ctx, newTender("Road Work", "GEM/1", time.Now())))

	got, err := s.FindByReference(ctx, " gem/1")
	require.NoError(t, err)
	assert.Equal(t, "Road Work", got.Title)

	got, err = s.FindByTitle(ctx, "ROAD WORK ")
	require.NoError(t, err)
	assert.Equal(t, "GEM/1", got.ReferenceNumber)

	_, err = s.FindByReference(ctx, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.FindByTitle(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateDeleteAndScore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	tender := newTender("Road", "R1", time.Now())
	require.NoError(t, s.CreateTender(ctx, tender))

	tender.Description = "resurfacing of 4 km"
	require.NoError(t, s.UpdateTender(ctx, tender))

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SaveScore(ctx, tender.ID, &models.ScoreBreakdown{OverallScore: 64}, at))

	got, err := s.GetTender(ctx, tender.ID)
	require.NoError(t, err)
	assert.Equal(t, "resurfacing of 4 km", got.Description)
	require.NotNil(t, got.ScoredAt)
	assert.True(t, at.Equal(*got.ScoredAt))
	assert.Equal(t, 64, got.Score.OverallScore)

	require.NoError(t, s.DeleteTender(ctx, tender.ID))
	assert.ErrorIs(t, s.DeleteTender(ctx, tender.ID), models.ErrNotFound)
	assert.ErrorIs(t, s.UpdateTender(ctx, tender), models.ErrNotFound)
	assert.ErrorIs(t, s.SaveScore(ctx, tender.ID, &models.ScoreBreakdown{}, at), models.ErrNotFound)
}

func TestListTenders(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := newTender("Solar plant", "GEM/A", base.AddDate(0, 0, 3))
	a.Score = &models.ScoreBreakdown{OverallScore: 90}
	b := newTender("Road work", "", base.AddDate(0, 0, 1))
	b.Score = &models.ScoreBreakdown{OverallScore: 40}
	c := newTender("Solar street lights", "", base.AddDate(0, 0, 2))
	for _, tender := range []*models.Tender{a, b, c} {
		require.NoError(t, s.CreateTender(ctx, tender))
	}

	tests := []struct {
		name   string
		params models.ListParams
		want   []string
		total  int
	}{
		{"default sorts by deadline", models.ListParams{}, []string{"Road work", "Solar street lights", "Solar plant"}, 3},
		{"score puts unscored last", models.ListParams{SortBy: models.SortScore}, []string{"Solar plant", "Road work", "Solar street lights"}, 3},
		{"query", models.ListParams{Query: "solar"}, []string{"Solar street lights", "Solar plant"}, 2},
		{"source tag", models.ListParams{SourceTag: models.SourceGeM}, []string{"Solar plant"}, 1},
		{"min score", models.ListParams{MinScore: 50}, []string{"Solar plant"}, 1},
		{"paging", models.ListParams{Limit: 1, Offset: 1}, []string{"Solar street lights"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.ListTenders(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.Total)
			var titles []string
			for _, tender := range res.Tenders {
				titles = append(titles, tender.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetProfile(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)

	p := &models.CompanyProfile{TurnoverAmount: 5e7, BusinessSectors: []string{"Construction"}}
	require.NoError(t, s.SaveProfile(ctx, p))
	p.Certifications = []string{"ISO 9001"}
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5e7, got.TurnoverAmount)
	assert.Equal(t, []string{"Construction"}, got.BusinessSectors)
	assert.Equal(t, []string{}, got.ProjectTypes)
	assert.Equal(t, []string{"ISO 9001"}, got.Certifications)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestBatches(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	older := models.NewImportBatch("a.xlsx")
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := models.NewImportBatch("b.csv")
	require.NoError(t, s.CreateBatch(ctx, older))
	require.NoError(t, s.CreateBatch(ctx, newer))
	assert.ErrorIs(t, s.CreateBatch(ctx, newer), models.ErrDuplicate)

	newer.RowsSeen = 10
	newer.RowsImported = 9
	newer.Errors = append(newer.Errors, `sheet "S1": row 4: negative tender value`)
	newer.Finish(models.BatchCompleted)
	require.NoError(t, s.UpdateBatch(ctx, newer))

	got, err := s.GetBatch(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, got.Status)
	assert.Equal(t, 9, got.RowsImported)
	assert.Len(t, got.Errors, 1)
	require.NotNil(t, got.CompletedAt)

	list, err := s.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.csv", list[0].FileName)

	missing := models.NewImportBatch("x")
	assert.ErrorIs(t, s.UpdateBatch(ctx, missing), models.ErrNotFound)
}
