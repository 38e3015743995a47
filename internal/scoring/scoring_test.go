package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/tender-scout/internal/models"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"3 crores", 3e7},
		{"15 crores", 1.5e8},
		{"1.5 Cr", 1.5e7},
		{"Rs. 50 Lakhs", 5e6},
		{"50 lacs", 5e6},
		{"Rs. 5,00,000", 500000},
		{"25 million", 2.5e7},
		{"Average annual turnover of 2 crore in last 3 years", 2e7},
		{"5000000 over the last 3 years", 5e6},
		{"Not applicable", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseAmount(tt.in), 0.001)
		})
	}
}

func TestTurnoverScoreBands(t *testing.T) {
	tests := []struct {
		name        string
		capability  float64
		requirement float64
		want        int
		met         bool
	}{
		{"exempt", 0, 0, 100, true},
		{"exact", 100, 100, 100, true},
		{"above", 150, 100, 100, true},
		{"zero capability", 0, 100, 0, false},
		{"tiny ratio", 1, 100, 30, false},
		{"just below half", 49.99, 100, 30, false},
		{"half", 50, 100, 70, false},
		{"just below 0.8", 79.99, 100, 70, false},
		{"0.8", 80, 100, 90, false},
		{"just below 1", 99.99, 100, 90, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, met, reason := TurnoverScore(tt.capability, tt.requirement)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.met, met)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestTurnoverScoreExemptForAnyCapability(t *testing.T) {
	for _, c := range []float64{0, 1, 1e5, 1e12} {
		got, _, _ := TurnoverScore(c, 0)
		assert.Equal(t, 100, got)
	}
}

func TestTurnoverScoreMonotonic(t *testing.T) {
	for _, r := range []float64{1, 1e5, 3e7, 1.5e8} {
		prev := -1
		for step := 0; step <= 300; step++ {
			c := r * float64(step) / 200
			got, _, _ := TurnoverScore(c, r)
			require.GreaterOrEqual(t, got, prev, "capability %v requirement %v", c, r)
			prev = got
		}
	}
}

func constructionProfile() *models.CompanyProfile {
	return &models.CompanyProfile{
		TurnoverAmount:  50_000_000,
		BusinessSectors: []string{"Construction"},
	}
}

func TestScoreRequirementMet(t *testing.T) {
	tender := &models.Tender{
		Title:        "Construction of District Court Building",
		Requirements: models.Requirements{Turnover: "3 crores"},
	}
	bd := Score(tender, constructionProfile())

	require.Len(t, bd.Criteria, 2)
	assert.Equal(t, models.CriterionTurnover, bd.Criteria[0].Criterion)
	assert.Equal(t, 100, bd.Criteria[0].Score)
	assert.True(t, bd.Criteria[0].Met)
	assert.Equal(t, models.CriterionBusinessSectors, bd.Criteria[1].Criterion)
	assert.Equal(t, 100, bd.Criteria[1].Score)
	assert.Equal(t, 100, bd.OverallScore)
}

func TestScorePartialTurnover(t *testing.T) {
	tender := &models.Tender{
		Title:        "Supply of hospital linen",
		Requirements: models.Requirements{Turnover: "15 crores"},
	}
	bd := Score(tender, constructionProfile())

	require.Len(t, bd.Criteria, 2)
	assert.Equal(t, 30, bd.Criteria[0].Score)
	assert.False(t, bd.Criteria[0].Met)
	assert.Equal(t, 60, bd.Criteria[1].Score)
	assert.Equal(t, 45, bd.OverallScore)
}

func TestScoreEmptyProfile(t *testing.T) {
	tender := &models.Tender{Title: "Anything", Requirements: models.Requirements{Turnover: "1 crore"}}
	for _, p := range []*models.CompanyProfile{nil, {}} {
		bd := Score(tender, p)
		assert.Equal(t, 50, bd.OverallScore)
		assert.Empty(t, bd.Criteria)
	}
}

func TestScoreProjectTypesAndCertifications(t *testing.T) {
	profile := &models.CompanyProfile{
		TurnoverAmount: 1e7,
		ProjectTypes:   []string{"Mobile", "drone survey"},
		Certifications: []string{"CMMI Level 3"},
	}

	t.Run("keyword in requirements", func(t *testing.T) {
		tender := &models.Tender{
			Title:        "Citizen services",
			Requirements: models.Requirements{Extra: map[string]string{"Scope": "Android and iOS app"}},
		}
		bd := Score(tender, profile)
		require.Len(t, bd.Criteria, 3)
		assert.Equal(t, 100, bd.Criteria[1].Score)
		assert.Equal(t, 70, bd.Criteria[2].Score)
		assert.Equal(t, 90, bd.OverallScore)
	})

	t.Run("unknown type uses its name", func(t *testing.T) {
		tender := &models.Tender{Title: "Drone Survey of river basin", Description: "Bidder must hold CMMI level 3"}
		bd := Score(tender, profile)
		assert.Equal(t, 100, bd.Criteria[1].Score)
		assert.Equal(t, 100, bd.Criteria[2].Score)
	})

	t.Run("no hit", func(t *testing.T) {
		tender := &models.Tender{Title: "Catering"}
		bd := Score(tender, profile)
		assert.Equal(t, 40, bd.Criteria[1].Score)
		assert.Equal(t, 70, bd.OverallScore)
	})
}

func TestEngineExtraKeywords(t *testing.T) {
	e := NewEngine(map[string][]string{"Mobile": {"Flutter"}, "GIS": {"geospatial"}})
	profile := &models.CompanyProfile{ProjectTypes: []string{"mobile", "gis"}}

	bd := e.Score(&models.Tender{Title: "Flutter rewrite"}, profile)
	assert.Equal(t, 100, bd.Criteria[1].Score)

	bd = e.Score(&models.Tender{Title: "Geospatial mapping"}, profile)
	assert.Equal(t, 100, bd.Criteria[1].Score)
}

func TestScoreDeterministic(t *testing.T) {
	profile := &models.CompanyProfile{
		TurnoverAmount:  2e7,
		BusinessSectors: []string{"IT", "Software"},
		ProjectTypes:    []string{"web", "software", "consulting"},
		Certifications:  []string{"ISO 9001"},
	}
	tender := &models.Tender{
		Title:        "Development of web portal",
		Requirements: models.Requirements{Turnover: "5 crore", Extra: map[string]string{"B": "2", "A": "1"}},
	}
	first := Score(tender, profile)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Score(tender, profile))
	}
	assert.GreaterOrEqual(t, first.OverallScore, 0)
	assert.LessOrEqual(t, first.OverallScore, 100)
}

type fakeRescoreStore struct {
	tenders []models.Tender
	saved   map[uuid.UUID]models.ScoreBreakdown
	failOn  uuid.UUID
}

func (f *fakeRescoreStore) ListTenders(_ context.Context, p models.ListParams) (*models.ListResult, error) {
	end := p.Offset + p.Limit
	if end > len(f.tenders) {
		end = len(f.tenders)
	}
	var page []models.Tender
	if p.Offset < len(f.tenders) {
		page = f.tenders[p.Offset:end]
	}
	return &models.ListResult{Tenders: page, Total: len(f.tenders), Limit: p.Limit, Offset: p.Offset}, nil
}

func (f *fakeRescoreStore) SaveScore(_ context.Context, id uuid.UUID, score *models.ScoreBreakdown, _ time.Time) error {
	if id == f.failOn {
		return errors.New("write failed")
	}
	f.saved[id] = *score
	return nil
}

func TestRescoreAll(t *testing.T) {
	store := &fakeRescoreStore{saved: map[uuid.UUID]models.ScoreBreakdown{}}
	for i := 0; i < rescorePageSize+5; i++ {
		store.tenders = append(store.tenders, models.Tender{ID: uuid.New(), Title: "Construction of road"})
	}
	store.failOn = store.tenders[3].ID

	var pages int
	res, err := defaultEngine.RescoreAll(context.Background(), store, constructionProfile(), func(RescoreResult) { pages++ })
	require.NoError(t, err)
	assert.Equal(t, rescorePageSize+5, res.Total)
	assert.Equal(t, rescorePageSize+4, res.Scored)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 100, store.saved[store.tenders[0].ID].OverallScore)
}

func TestRescoreAllCancelled(t *testing.T) {
	store := &fakeRescoreStore{saved: map[uuid.UUID]models.ScoreBreakdown{}}
	store.tenders = append(store.tenders, models.Tender{ID: uuid.New(), Title: "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RescoreAll(ctx, store, constructionProfile())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.saved)
}
