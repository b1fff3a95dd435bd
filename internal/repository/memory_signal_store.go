package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
)

// MemorySignalStore is a process-local store for development and tests.
type MemorySignalStore struct {
	mu      sync.RWMutex
	signals map[models.NaturalKey]models.MarketSignal
	loaded  map[string]time.Time
}

var _ domrepo.SignalStore = (*MemorySignalStore)(nil)

func NewMemorySignalStore() *MemorySignalStore {
	return &MemorySignalStore{
		signals: make(map[models.NaturalKey]models.MarketSignal),
		loaded:  make(map[string]time.Time),
	}
}

func (s *MemorySignalStore) EnsureSchema(context.Context) error { return nil }

func (s *MemorySignalStore) Upsert(_ context.Context, signals []models.MarketSignal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range signals {
		s.signals[sig.Key()] = sig
	}
	return len(signals), nil
}

func (s *MemorySignalStore) Query(ctx context.Context, filter models.SignalFilter) ([]models.MarketSignal, error) {
	var out []models.MarketSignal
	err := s.Stream(ctx, filter.Normalized(), func(sig models.MarketSignal) error {
		out = append(out, sig)
		return nil
	})
	return out, err
}

func (s *MemorySignalStore) Stream(ctx context.Context, filter models.SignalFilter, fn func(models.MarketSignal) error) error {
	s.mu.RLock()
	selected := make([]models.MarketSignal, 0, len(s.signals))
	for _, sig := range s.signals {
		if matches(filter, sig) {
			selected = append(selected, sig)
		}
	}
	s.mu.RUnlock()

	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Metric < b.Metric
	})
	if filter.Limit > 0 && len(selected) > filter.Limit {
		selected = selected[:filter.Limit]
	}

	for _, sig := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(sig); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemorySignalStore) CountBySource(context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64)
	for _, sig := range s.signals {
		out[sig.Source]++
	}
	return out, nil
}

func (s *MemorySignalStore) MarkLoaded(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[key] = at.UTC()
	return nil
}

func (s *MemorySignalStore) LastLoaded(_ context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.loaded[key]
	if !ok {
		return time.Time{}, models.ErrNotFound
	}
	return at, nil
}

func (s *MemorySignalStore) Health(context.Context) error { return nil }

func (s *MemorySignalStore) Close() error { return nil }
