package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"quizapp-service/internal/domain"
)

// ScoreboardService builds the top-scores listing and fans updates out to subscribers.
type ScoreboardService struct {
	attempts AttemptStore
	users    UserStore
	now      func() time.Time

	mu          sync.Mutex
	last        domain.Scoreboard
	subscribers map[chan domain.Scoreboard]struct{}
}

func NewScoreboardService(attempts AttemptStore, users UserStore) *ScoreboardService {
	return NewScoreboardServiceWithClock(attempts, users, time.Now)
}

// NewScoreboardServiceWithClock is test-only for deterministic timestamps.
func NewScoreboardServiceWithClock(attempts AttemptStore, users UserStore, now func() time.Time) *ScoreboardService {
	return &ScoreboardService{
		attempts:    attempts,
		users:       users,
		now:         now,
		subscribers: make(map[chan domain.Scoreboard]struct{}),
	}
}

// Top returns up to domain.ScoreboardSize completed, scored attempts.
func (s *ScoreboardService) Top(ctx context.Context) (domain.Scoreboard, error) {
	attempts, err := s.attempts.TopCompleted(ctx, domain.ScoreboardSize)
	if err != nil {
		return domain.Scoreboard{}, persistence("load scoreboard", err)
	}

	names := make(map[int64]string)
	entries := make([]domain.ScoreboardEntry, 0, len(attempts))
	for _, a := range attempts {
		if !a.Completed || a.Score == nil {
			continue
		}
		name, ok := names[a.UserID]
		if !ok {
			user, err := s.users.Get(ctx, a.UserID)
			switch {
			case err == nil:
				name = user.Username
			case errors.Is(err, domain.ErrUserNotFound):
			default:
				return domain.Scoreboard{}, persistence("load scoreboard user", err)
			}
			names[a.UserID] = name
		}
		entries = append(entries, domain.ScoreboardEntry{
			AttemptID:     a.ID,
			UserID:        a.UserID,
			Username:      name,
			DateAttempted: a.DateAttempted,
			Score:         *a.Score,
		})
	}
	return domain.Scoreboard{Entries: entries, UpdatedAt: s.now()}, nil
}

// Publish recomputes the scoreboard and pushes it to every subscriber.
func (s *ScoreboardService) Publish(ctx context.Context) (domain.Scoreboard, error) {
	board, err := s.Top(ctx)
	if err != nil {
		return domain.Scoreboard{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = board
	s.broadcastLocked(board)
	return board, nil
}

// Subscribe returns a channel of scoreboard updates primed with the current board.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ScoreboardService) Subscribe(ctx context.Context) (<-chan domain.Scoreboard, func(), error) {
	board, err := s.Top(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan domain.Scoreboard, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	if s.last.UpdatedAt.After(board.UpdatedAt) {
		board = s.last
	}
	s.mu.Unlock()

	ch <- board

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// Subscribers reports how many feeds are attached.
func (s *ScoreboardService) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *ScoreboardService) broadcastLocked(board domain.Scoreboard) {
	for ch := range s.subscribers {
		select {
		case ch <- board:
		default:
			// Slow reader: replace its oldest pending update.
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
}
