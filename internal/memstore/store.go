// Package memstore is an in-process store used for dry-run imports and
// tests. It enforces the same dedup uniqueness as the SQL schemas.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/david/tender-scout/internal/models"
)

type Store struct {
	mu      sync.RWMutex
	tenders map[uuid.UUID]*models.Tender
	byRef   map[string]uuid.UUID
	byTitle map[string]uuid.UUID
	batches map[uuid.UUID]*models.ImportBatch
	profile *models.CompanyProfile
}

func New() *Store {
	return &Store{
		tenders: make(map[uuid.UUID]*models.Tender),
		byRef:   make(map[string]uuid.UUID),
		byTitle: make(map[string]uuid.UUID),
		batches: make(map[uuid.UUID]*models.ImportBatch),
	}
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// uniqueKey mirrors the partial unique indexes: reference when set,
// otherwise title.
func uniqueKey(t *models.Tender) (index string, key string) {
	if ref := fold(t.ReferenceNumber); ref != "" {
		return "ref", ref
	}
	return "title", fold(t.Title)
}

func (s *Store) index(name string) map[string]uuid.UUID {
	if name == "ref" {
		return s.byRef
	}
	return s.byTitle
}

func (s *Store) CreateTender(_ context.Context, t *models.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if _, ok := s.tenders[t.ID]; ok {
		return fmt.Errorf("tender %s: %w", t.ID, models.ErrDuplicate)
	}
	idx, key := uniqueKey(t)
	if _, ok := s.index(idx)[key]; ok {
		return fmt.Errorf("%s %q: %w", idx, key, models.ErrDuplicate)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	s.tenders[t.ID] = cloneTender(t)
	s.index(idx)[key] = t.ID
	return nil
}

func (s *Store) GetTender(_ context.Context, id uuid.UUID) (*models.Tender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenders[id]
	if !ok {
		return nil, fmt.Errorf("tender %s: %w", id, models.ErrNotFound)
	}
	return cloneTender(t), nil
}

func (s *Store) FindByReference(_ context.Context, ref string) (*models.Tender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := fold(ref)
	if key == "" {
		return nil, models.ErrNotFound
	}
	id, ok := s.byRef[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneTender(s.tenders[id]), nil
}

// FindByTitle matches any stored tender, with or without a reference.
func (s *Store) FindByTitle(_ context.Context, title string) (*models.Tender, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := fold(title)
	if key == "" {
		return nil, models.ErrNotFound
	}
	if id, ok := s.byTitle[key]; ok {
		return cloneTender(s.tenders[id]), nil
	}
	var found *models.Tender
	for _, t := range s.tenders {
		if fold(t.Title) == key && (found == nil || t.CreatedAt.Before(found.CreatedAt)) {
			found = t
		}
	}
	if found == nil {
		return nil, models.ErrNotFound
	}
	return cloneTender(found), nil
}

// UpdateTender replaces the stored tender, re-keying the dedup indexes.
func (s *Store) UpdateTender(_ context.Context, t *models.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tenders[t.ID]
	if !ok {
		return fmt.Errorf("tender %s: %w", t.ID, models.ErrNotFound)
	}
	oldIdx, oldKey := uniqueKey(old)
	newIdx, newKey := uniqueKey(t)
	if oldIdx != newIdx || oldKey != newKey {
		if other, taken := s.index(newIdx)[newKey]; taken && other != t.ID {
			return fmt.Errorf("%s %q: %w", newIdx, newKey, models.ErrDuplicate)
		}
		delete(s.index(oldIdx), oldKey)
		s.index(newIdx)[newKey] = t.ID
	}
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tenders[t.ID] = cloneTender(t)
	return nil
}

func (s *Store) DeleteTender(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenders[id]
	if !ok {
		return fmt.Errorf("tender %s: %w", id, models.ErrNotFound)
	}
	idx, key := uniqueKey(t)
	delete(s.index(idx), key)
	delete(s.tenders, id)
	return nil
}

func (s *Store) SaveScore(_ context.Context, id uuid.UUID, score *models.ScoreBreakdown, scoredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenders[id]
	if !ok {
		return fmt.Errorf("tender %s: %w", id, models.ErrNotFound)
	}
	t.Score = cloneScore(score)
	at := scoredAt
	t.ScoredAt = &at
	return nil
}

func (s *Store) ListTenders(_ context.Context, p models.ListParams) (*models.ListResult, error) {
	p.Clamp()
	s.mu.RLock()
	matched := make([]*models.Tender, 0, len(s.tenders))
	q := strings.ToLower(strings.TrimSpace(p.Query))
	for _, t := range s.tenders {
		if p.SourceTag != "" && t.SourceTag != p.SourceTag {
			continue
		}
		if p.BatchID != nil && (t.ImportBatchID == nil || *t.ImportBatchID != *p.BatchID) {
			continue
		}
		if p.MinScore > 0 && (t.Score == nil || t.Score.OverallScore < p.MinScore) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title+" "+t.Organization+" "+t.ReferenceNumber), q) {
			continue
		}
		matched = append(matched, t)
	}
	s.mu.RUnlock()

	sortTenders(matched, p.SortBy)

	res := &models.ListResult{Tenders: []models.Tender{}, Total: len(matched), Limit: p.Limit, Offset: p.Offset}
	for i := p.Offset; i < len(matched) && i < p.Offset+p.Limit; i++ {
		res.Tenders = append(res.Tenders, *cloneTender(matched[i]))
	}
	return res, nil
}

func sortTenders(ts []*models.Tender, by string) {
	score := func(t *models.Tender) int {
		if t.Score == nil {
			return -1
		}
		return t.Score.OverallScore
	}
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		switch by {
		case models.SortScore:
			if score(a) != score(b) {
				return score(a) > score(b)
			}
		case models.SortValue:
			if a.Value != b.Value {
				return a.Value > b.Value
			}
		case models.SortDeadline:
			if !a.Deadline.Equal(b.Deadline) {
				return a.Deadline.Before(b.Deadline)
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (s *Store) GetProfile(_ context.Context) (*models.CompanyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, models.ErrNotFound
	}
	return cloneProfile(s.profile), nil
}

func (s *Store) SaveProfile(_ context.Context, p *models.CompanyProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	s.profile = cloneProfile(p)
	return nil
}

func (s *Store) CreateBatch(_ context.Context, b *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("batch %s: %w", b.ID, models.ErrDuplicate)
	}
	s.batches[b.ID] = cloneBatch(b)
	return nil
}

func (s *Store) UpdateBatch(_ context.Context, b *models.ImportBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		return fmt.Errorf("batch %s: %w", b.ID, models.ErrNotFound)
	}
	s.batches[b.ID] = cloneBatch(b)
	return nil
}

func (s *Store) GetBatch(_ context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
	}
	return cloneBatch(b), nil
}

// ListBatches returns the most recent batches first.
func (s *Store) ListBatches(_ context.Context, limit int) ([]models.ImportBatch, error) {
	s.mu.RLock()
	out := make([]models.ImportBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, *cloneBatch(b))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTender(t *models.Tender) *models.Tender {
	c := *t
	if t.Link != nil {
		l := *t.Link
		c.Link = &l
	}
	if t.ImportBatchID != nil {
		id := *t.ImportBatchID
		c.ImportBatchID = &id
	}
	if t.ScoredAt != nil {
		at := *t.ScoredAt
		c.ScoredAt = &at
	}
	if t.Requirements.Extra != nil {
		c.Requirements.Extra = make(map[string]string, len(t.Requirements.Extra))
		for k, v := range t.Requirements.Extra {
			c.Requirements.Extra[k] = v
		}
	}
	c.Score = cloneScore(t.Score)
	return &c
}

func cloneScore(s *models.ScoreBreakdown) *models.ScoreBreakdown {
	if s == nil {
		return nil
	}
	c := *s
	c.Criteria = slices.Clone(s.Criteria)
	return &c
}

func cloneProfile(p *models.CompanyProfile) *models.CompanyProfile {
	c := *p
	c.BusinessSectors = slices.Clone(p.BusinessSectors)
	c.ProjectTypes = slices.Clone(p.ProjectTypes)
	c.Certifications = slices.Clone(p.Certifications)
	return &c
}

func cloneBatch(b *models.ImportBatch) *models.ImportBatch {
	c := *b
	c.Errors = slices.Clone(b.Errors)
	if b.CompletedAt != nil {
		at := *b.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
