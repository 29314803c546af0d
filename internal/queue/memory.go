package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"FeedPress/internal/domain"
	"FeedPress/internal/ports"
)

// MemoryStore is the in-process queue backend. It is owned by the composition root;
// nothing about it is package-global.
type MemoryStore struct {
	mu    sync.Mutex
	items []domain.QueueItem
	stats domain.IndexingStats
}

var _ ports.QueueStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty queue backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert checks for a live item of the same article and appends under one lock.
func (m *MemoryStore) Insert(_ context.Context, item domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ArticleID == item.ArticleID && !it.Status.Terminal() {
			return domain.ErrAlreadyQueued
		}
	}
	m.items = append(m.items, item)
	return nil
}

func (m *MemoryStore) ClaimNext(_ context.Context) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, it := range m.items {
		if it.Status != domain.QueuePending {
			continue
		}
		if idx < 0 || it.AddedAt.Before(m.items[idx].AddedAt) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, nil
	}
	m.items[idx].Status = domain.QueueProcessing
	claimed := m.items[idx]
	return &claimed, nil
}

func (m *MemoryStore) Update(_ context.Context, item domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = item
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MemoryStore) Counts(_ context.Context) (map[domain.QueueStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[domain.QueueStatus]int, 4)
	for _, it := range m.items {
		counts[it.Status]++
	}
	return counts, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]domain.QueueItem, error) {
	m.mu.Lock()
	out := append([]domain.QueueItem(nil), m.items...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].AddedAt.After(out[j].AddedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = nil
	return n, nil
}

// ResetFailed returns failed items to pending with a zero retry count. An article keeps at most one
// live item, so only its newest failed item is reset and only when nothing else is live for it.
func (m *MemoryStore) ResetFailed(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[string]bool)
	for _, it := range m.items {
		if !it.Status.Terminal() {
			live[it.ArticleID] = true
		}
	}

	order := make([]int, 0, len(m.items))
	for i := range m.items {
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool { return m.items[order[a]].AddedAt.After(m.items[order[b]].AddedAt) })

	n := 0
	for _, i := range order {
		it := &m.items[i]
		if it.Status != domain.QueueFailed || live[it.ArticleID] {
			continue
		}
		it.Status = domain.QueuePending
		it.RetryCount = 0
		it.ProcessedAt = nil
		live[it.ArticleID] = true
		n++
	}
	return n, nil
}

func (m *MemoryStore) RequeueProcessing(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.items {
		if m.items[i].Status == domain.QueueProcessing {
			m.items[i].Status = domain.QueuePending
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RecordIndexed(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalIndexed++
	at = at.UTC()
	m.stats.LastIndexedAt = &at
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) (domain.IndexingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *MemoryStore) Close() error { return nil }
