package postback

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps queue items in process memory. A crash loses in-flight
// retries, which the queue's delivery contract accepts.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]Item
	order  []string
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

func (s *MemoryStore) Create(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("duplicate item id %s", item.ID)
	}
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Item{}, fmt.Errorf("memory store is closed")
	}
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}
	out := make([]Item, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if item, ok := s.items[s.order[i]]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory store is closed")
	}
	if _, ok := s.items[item.ID]; !ok {
		return ErrNotFound
	}
	s.items[item.ID] = item
	return nil
}

func (s *MemoryStore) TakePending(_ context.Context, limit int, now time.Time) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memory store is closed")
	}

	var claimed []Item
	for _, id := range s.order {
		if len(claimed) >= limit {
			break
		}
		item, ok := s.items[id]
		if !ok || item.Status != StatusPending || item.NextAttemptAt.After(now) {
			continue
		}
		item.Status = StatusProcessing
		item.UpdatedAt = now
		s.items[id] = item
		claimed = append(claimed, item)
	}
	return claimed, nil
}

func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("memory store is closed")
	}

	removed := 0
	for id, item := range s.items {
		if item.Status != StatusCompleted && item.Status != StatusFailed {
			continue
		}
		if !item.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.items, id)
		removed++
	}
	if removed > 0 {
		kept := s.order[:0]
		for _, id := range s.order {
			if _, ok := s.items[id]; ok {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
