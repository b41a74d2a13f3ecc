package activity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matthewbaird/civicpulse/internal/filter"
	"github.com/matthewbaird/civicpulse/internal/types"
)

// MemoryStore keeps the journal in a write-ordered slice. It is the default
// driver; the authoritative complaint and alert arenas live in memory too.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.ActivityEntry
}

// NewMemoryStore creates an empty journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	preds := []filter.Predicate[types.ActivityEntry]{
		func(e types.ActivityEntry) bool {
			return e.IndexedEntityType == entityType && e.IndexedEntityID == entityID
		},
		occurredWithin(opts.Since, opts.Until),
		inCategories(opts.Categories),
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		floor := opts.MinWeight
		preds = append(preds, func(e types.ActivityEntry) bool { return IsAtLeastWeight(e.Weight, floor) })
	}
	// The cursor is the occurred_at of the last entry on the previous page.
	if opts.Cursor != "" {
		if cursor, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			preds = append(preds, func(e types.ActivityEntry) bool { return e.OccurredAt.Before(cursor) })
		}
	}

	matched := s.matching(filter.All(preds...))
	total := len(matched)
	limit := normalizeLimit(opts.Limit, 100, 500)
	var next string
	if len(matched) > limit {
		matched = matched[:limit]
		next = matched[limit-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return matched, next, total, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	q := strings.ToLower(query)
	preds := []filter.Predicate[types.ActivityEntry]{
		func(e types.ActivityEntry) bool { return strings.Contains(strings.ToLower(e.Summary), q) },
		occurredWithin(opts.Since, nil),
		inCategories(opts.Categories),
	}
	if opts.EntityType != "" {
		preds = append(preds, func(e types.ActivityEntry) bool { return e.IndexedEntityType == opts.EntityType })
	}

	matched := s.matching(filter.All(preds...))
	total := len(matched)
	if limit := normalizeLimit(opts.Limit, 20, 500); len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) Close() error { return nil }

// matching returns the kept entries newest first. Entries with equal
// timestamps keep write order, as the SQLite store does with its seq column.
func (s *MemoryStore) matching(keep filter.Predicate[types.ActivityEntry]) []types.ActivityEntry {
	s.mu.RLock()
	out := filter.Apply(s.entries, keep)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b types.ActivityEntry) int {
		return b.OccurredAt.Compare(a.OccurredAt)
	})
	return out
}

func occurredWithin(since, until *time.Time) filter.Predicate[types.ActivityEntry] {
	return func(e types.ActivityEntry) bool {
		if since != nil && e.OccurredAt.Before(*since) {
			return false
		}
		return until == nil || !e.OccurredAt.After(*until)
	}
}

// inCategories matches every entry when categories is empty.
func inCategories(categories []string) filter.Predicate[types.ActivityEntry] {
	if len(categories) == 0 {
		return nil
	}
	return func(e types.ActivityEntry) bool { return slices.Contains(categories, e.Category) }
}
