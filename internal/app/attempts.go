package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizapp-service/internal/domain"
)

// AttemptService owns the attempt lifecycle: merge-or-create, completion and purge.
type AttemptService struct {
	store AttemptStore
	loc   *time.Location
	now   func() time.Time
}

func NewAttemptService(store AttemptStore, loc *time.Location) *AttemptService {
	return NewAttemptServiceWithClock(store, loc, time.Now)
}

// NewAttemptServiceWithClock allows deterministic dates in tests.
func NewAttemptServiceWithClock(store AttemptStore, loc *time.Location, now func() time.Time) *AttemptService {
	if loc == nil {
		loc = time.UTC
	}
	return &AttemptService{store: store, loc: loc, now: now}
}

// Today returns the current calendar date in the service timezone, as UTC midnight.
func (s *AttemptService) Today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sameDate compares calendar dates as stored, without timezone conversion.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// resumable reports whether answers for today still belong to attempt.
func (s *AttemptService) resumable(attempt domain.Attempt) bool {
	return !attempt.Completed && sameDate(attempt.DateAttempted, s.Today())
}

// Resumable reports whether the user's latest attempt can still take answers. A user
// without attempts has nothing to resume.
func (s *AttemptService) Resumable(ctx context.Context, userID int64) (bool, error) {
	latest, err := s.Latest(ctx, userID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.resumable(latest), nil
}

// Merge writes a validated step form into the user's attempt. The latest attempt is
// updated in place when it was started today and is not complete; otherwise a new
// attempt is created and created is true.
func (s *AttemptService) Merge(ctx context.Context, form StepForm) (attempt domain.Attempt, created bool, err error) {
	if !domain.ValidStep(form.CurrentStep) {
		return domain.Attempt{}, false, domain.ErrStepNotFound
	}
	if err := form.Validate(); err != nil {
		return domain.Attempt{}, false, err
	}

	latest, err := s.store.Latest(ctx, form.UserID)
	switch {
	case err == nil && s.resumable(latest):
		latest.Answers = latest.Answers.Clone()
		latest.Answers[domain.PageKey(form.CurrentStep)] = form.AnswerList()
		if err := latest.Validate(); err != nil {
			return domain.Attempt{}, false, err
		}
		if err := s.store.Update(ctx, &latest); err != nil {
			return domain.Attempt{}, false, persistence("update attempt", err)
		}
		return latest, false, nil
	case err == nil || errors.Is(err, domain.ErrAttemptNotFound):
		attempt = domain.Attempt{
			UserID:        form.UserID,
			Answers:       domain.AnswerSheet{domain.PageKey(form.CurrentStep): form.AnswerList()},
			DateAttempted: s.Today(),
		}
		if err := attempt.Validate(); err != nil {
			return domain.Attempt{}, false, err
		}
		if err := s.store.Create(ctx, &attempt); err != nil {
			return domain.Attempt{}, false, persistence("create attempt", err)
		}
		return attempt, true, nil
	default:
		return domain.Attempt{}, false, persistence("load latest attempt", err)
	}
}

// Latest returns the user's newest attempt.
func (s *AttemptService) Latest(ctx context.Context, userID int64) (domain.Attempt, error) {
	attempt, err := s.store.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return domain.Attempt{}, err
		}
		return domain.Attempt{}, persistence("load latest attempt", err)
	}
	return attempt, nil
}

// Get returns a single attempt by id.
func (s *AttemptService) Get(ctx context.Context, id int64) (domain.Attempt, error) {
	attempt, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return domain.Attempt{}, err
		}
		return domain.Attempt{}, persistence("load attempt", err)
	}
	return attempt, nil
}

// Complete marks the latest attempt complete and purges every other incomplete attempt of the user.
func (s *AttemptService) Complete(ctx context.Context, userID int64) (domain.Attempt, int, error) {
	latest, err := s.Latest(ctx, userID)
	if err != nil {
		return domain.Attempt{}, 0, err
	}
	if !latest.Completed {
		latest.Completed = true
		if err := s.store.Update(ctx, &latest); err != nil {
			return domain.Attempt{}, 0, persistence("complete attempt", err)
		}
	}
	purged, err := s.store.DeleteIncomplete(ctx, userID)
	if err != nil {
		return domain.Attempt{}, 0, persistence("purge incomplete attempts", err)
	}
	return latest, purged, nil
}

// Reopen clears the completed flag of the latest attempt so it can be edited. A user
// without attempts is left alone.
func (s *AttemptService) Reopen(ctx context.Context, userID int64) error {
	latest, err := s.Latest(ctx, userID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !latest.Completed {
		return nil
	}
	latest.Completed = false
	if err := s.store.Update(ctx, &latest); err != nil {
		return persistence("reopen attempt", err)
	}
	return nil
}

// RecordElapsed stores the time spent on the latest attempt.
func (s *AttemptService) RecordElapsed(ctx context.Context, userID int64, elapsed time.Duration) (domain.Attempt, error) {
	latest, err := s.Latest(ctx, userID)
	if err != nil {
		return domain.Attempt{}, err
	}
	latest.ElapsedSeconds = elapsed.Seconds()
	if err := s.store.Update(ctx, &latest); err != nil {
		return domain.Attempt{}, persistence("record elapsed time", err)
	}
	return latest, nil
}

// RecordScore persists the truncated percentage on the attempt.
func (s *AttemptService) RecordScore(ctx context.Context, attempt domain.Attempt, score int) (domain.Attempt, error) {
	attempt.Score = &score
	if err := s.store.Update(ctx, &attempt); err != nil {
		return domain.Attempt{}, persistence("record score", err)
	}
	return attempt, nil
}

// History lists the user's attempts, oldest first.
func (s *AttemptService) History(ctx context.Context, userID int64) ([]domain.Attempt, error) {
	attempts, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list attempts", err)
	}
	return attempts, nil
}

// BestScore returns the highest score among the user's completed attempts.
func (s *AttemptService) BestScore(ctx context.Context, userID int64) (int, bool, error) {
	attempts, err := s.History(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	best, found := 0, false
	for _, a := range attempts {
		if !a.Completed || a.Score == nil {
			continue
		}
		if !found || *a.Score > best {
			best, found = *a.Score, true
		}
	}
	return best, found, nil
}

func persistence(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrPersistence, err)
}
