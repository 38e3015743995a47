package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/david/tender-scout/internal/models"
)

// TenderLookup finds stored tenders by dedup key. Matching is
// case-insensitive on trimmed values; a miss returns models.ErrNotFound.
type TenderLookup interface {
	FindByReference(ctx context.Context, ref string) (*models.Tender, error)
	FindByTitle(ctx context.Context, title string) (*models.Tender, error)
}

// DedupKey is the reference number when present, otherwise the title.
func DedupKey(t *models.Tender) string {
	if ref := strings.ToLower(strings.TrimSpace(t.ReferenceNumber)); ref != "" {
		return "ref:" + ref
	}
	return "title:" + strings.ToLower(strings.TrimSpace(t.Title))
}

// Gate serializes the check-then-insert for a dedup key so concurrent
// imports of the same tender cannot both pass.
type Gate struct {
	lookup TenderLookup
	locks  *keyedMutex
}

func NewGate(lookup TenderLookup) *Gate {
	return &Gate{lookup: lookup, locks: newKeyedMutex()}
}

// IsDuplicate reports whether a tender with the same dedup key is stored.
func (g *Gate) IsDuplicate(ctx context.Context, t *models.Tender) (bool, error) {
	var err error
	if strings.TrimSpace(t.ReferenceNumber) != "" {
		_, err = g.lookup.FindByReference(ctx, t.ReferenceNumber)
	} else {
		_, err = g.lookup.FindByTitle(ctx, t.Title)
	}
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Admit calls create unless the tender is a duplicate. A create that loses
// a race against the store's unique index also counts as a duplicate.
func (g *Gate) Admit(ctx context.Context, t *models.Tender, create func(context.Context, *models.Tender) error) (duplicate bool, err error) {
	unlock := g.locks.lock(DedupKey(t))
	defer unlock()

	dup, err := g.IsDuplicate(ctx, t)
	if err != nil || dup {
		return dup, err
	}
	if err := create(ctx, t); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
