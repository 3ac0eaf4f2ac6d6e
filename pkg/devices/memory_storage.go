package devices

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation for development and
// tests. Keyed by provider token value.
type MemoryStorage struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tokens: make(map[string]*Token)}
}

func (s *MemoryStorage) Upsert(ctx context.Context, tok *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tok
	s.tokens[tok.Token] = &cp
	return nil
}

func (s *MemoryStorage) FindByToken(ctx context.Context, token string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *MemoryStorage) FindActiveByWorker(ctx context.Context, workerID string) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Token
	for _, tok := range s.tokens {
		if tok.WorkerID == workerID && tok.Active {
			out = append(out, *tok)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (s *MemoryStorage) ApplyOutcome(ctx context.Context, token string, success bool, at time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}

	tok.Stats.Sent++
	if success {
		tok.Stats.Delivered++
		tok.Stats.ConsecutiveFailures = 0
		t := at
		tok.Stats.LastSuccessAt = &t
	} else {
		tok.Stats.Failed++
		tok.Stats.ConsecutiveFailures++
		t := at
		tok.Stats.LastFailureAt = &t
	}
	tok.UpdatedAt = at

	cp := *tok
	return &cp, nil
}

func (s *MemoryStorage) SetActive(ctx context.Context, token string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.tokens[token]
	if !ok {
		return ErrTokenNotFound
	}
	tok.Active = active
	tok.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) DeactivateOthers(ctx context.Context, workerID, keepToken string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, tok := range s.tokens {
		if tok.WorkerID == workerID && tok.Active && tok.Token != keepToken {
			tok.Active = false
			tok.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) DeleteStale(ctx context.Context, cutoff time.Time, maxConsecutiveFailures int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, tok := range s.tokens {
		if !tok.Active || tok.LastSeenAt.Before(cutoff) || tok.Stats.ConsecutiveFailures >= maxConsecutiveFailures {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, tok := range s.tokens {
		if tok.Active && tok.LastSeenAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) Counts(ctx context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, active int64
	for _, tok := range s.tokens {
		total++
		if tok.Active {
			active++
		}
	}
	return total, active, nil
}
