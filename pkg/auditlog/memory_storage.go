package auditlog

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage keeps audit records in memory. Suited to tests and
// single-process development runs.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStorage creates an empty in-memory audit storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStorage) Query(ctx context.Context, criteria Criteria) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if matches(rec, criteria) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) CountByEvent(ctx context.Context, event EventType, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.records {
		if rec.Event == event && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) AverageDuration(ctx context.Context, event EventType, since time.Time) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum time.Duration
	var n int64
	for _, rec := range s.records {
		if rec.Event == event && rec.Duration > 0 && !rec.CreatedAt.Before(since) {
			sum += rec.Duration
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / time.Duration(n), nil
}

func (s *MemoryStorage) PurgeOlderThan(ctx context.Context, event EventType, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.Event == event && rec.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

func matches(rec Record, c Criteria) bool {
	if c.Event != "" && rec.Event != c.Event {
		return false
	}
	if c.WorkerID != "" && rec.WorkerID != c.WorkerID {
		return false
	}
	if c.NotificationID != "" && rec.NotificationID != c.NotificationID {
		return false
	}
	if !c.Since.IsZero() && rec.CreatedAt.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && rec.CreatedAt.After(c.Until) {
		return false
	}
	return true
}
