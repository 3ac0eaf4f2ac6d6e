package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation for development and
// tests.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{notifications: make(map[string]*Notification)}
}

func (s *MemoryStorage) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		return errors.New("notification id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStorage) RecordAttempt(ctx context.Context, id string, status Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.Status != status && !CanTransition(n.Status, status) {
		return ErrInvalidTransition
	}

	n.Status = status
	n.Attempts++
	t := at
	n.LastAttemptAt = &t
	n.UpdatedAt = at
	return nil
}

func (s *MemoryStorage) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.Status != StatusDelivered && !CanTransition(n.Status, StatusDelivered) {
		return ErrInvalidTransition
	}

	n.Status = StatusDelivered
	n.UpdatedAt = at
	return nil
}

func (s *MemoryStorage) Requeue(ctx context.Context, id string, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return ErrNotificationNotFound
	}
	if n.Status != StatusFailed || n.Attempts >= maxAttempts {
		return ErrNotRequeueable
	}

	n.Status = StatusPending
	n.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CountByStatusSince(ctx context.Context, statuses []Status, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, notif := range s.notifications {
		if !notif.CreatedAt.After(since) {
			continue
		}
		for _, st := range statuses {
			if notif.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountRetryQueue(ctx context.Context, maxAttempts int, attemptedSince time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, notif := range s.notifications {
		if notif.Status == StatusFailed &&
			notif.Attempts < maxAttempts &&
			notif.LastAttemptAt != nil &&
			notif.LastAttemptAt.After(attemptedSince) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) FindRequeueable(ctx context.Context, maxAttempts int, idleBefore time.Time, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, notif := range s.notifications {
		if notif.Status != StatusFailed || notif.Attempts >= maxAttempts {
			continue
		}
		// A FAILED record without an attempt timestamp is idle by definition.
		if notif.LastAttemptAt == nil || notif.LastAttemptAt.Before(idleBefore) {
			out = append(out, *notif)
		}
	}

	// Oldest attempts first, so the most stale deliveries re-queue first.
	sort.Slice(out, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if out[i].LastAttemptAt != nil {
			ti = *out[i].LastAttemptAt
		}
		if out[j].LastAttemptAt != nil {
			tj = *out[j].LastAttemptAt
		}
		return ti.Before(tj)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
