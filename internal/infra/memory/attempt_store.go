package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quizapp-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
type AttemptStore struct {
	mu       sync.RWMutex
	nextID   int64
	attempts map[int64]domain.Attempt
	now      func() time.Time
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[int64]domain.Attempt),
		now:      time.Now,
	}
}

func (s *AttemptStore) Latest(_ context.Context, userID int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest domain.Attempt
	found := false
	for _, a := range s.attempts {
		if a.UserID == userID && (!found || a.ID > latest.ID) {
			latest, found = a, true
		}
	}
	if !found {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return clone(latest), nil
}

func (s *AttemptStore) Get(_ context.Context, id int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return clone(a), nil
}

func (s *AttemptStore) Create(_ context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	attempt.ID = s.nextID
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	s.attempts[attempt.ID] = clone(*attempt)
	return nil
}

func (s *AttemptStore) Update(_ context.Context, attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.UpdatedAt = s.now()
	s.attempts[attempt.ID] = clone(*attempt)
	return nil
}

func (s *AttemptStore) DeleteIncomplete(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.attempts {
		if a.UserID == userID && !a.Completed {
			delete(s.attempts, id)
			n++
		}
	}
	return n, nil
}

func (s *AttemptStore) ListByUser(_ context.Context, userID int64) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *AttemptStore) TopCompleted(_ context.Context, limit int) ([]domain.Attempt, error) {
	s.mu.RLock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.Completed && a.Score != nil {
			out = append(out, clone(a))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if *out[i].Score != *out[j].Score {
			return *out[i].Score > *out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(a domain.Attempt) domain.Attempt {
	a.Answers = a.Answers.Clone()
	if a.Score != nil {
		score := *a.Score
		a.Score = &score
	}
	return a
}
