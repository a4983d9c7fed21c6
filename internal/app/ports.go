package app

import (
	"context"
	"time"

	"quizapp-service/internal/domain"
)

// AttemptStore persists quiz attempts (in-memory, Postgres, etc).
type AttemptStore interface {
	// Latest returns the user's most recently created attempt or domain.ErrAttemptNotFound.
	Latest(ctx context.Context, userID int64) (domain.Attempt, error)
	Get(ctx context.Context, id int64) (domain.Attempt, error)
	Create(ctx context.Context, attempt *domain.Attempt) error
	Update(ctx context.Context, attempt *domain.Attempt) error
	// DeleteIncomplete removes every incomplete attempt of the user and returns how many went.
	DeleteIncomplete(ctx context.Context, userID int64) (int, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Attempt, error)
	// TopCompleted returns completed, scored attempts ordered by score descending.
	TopCompleted(ctx context.Context, limit int) ([]domain.Attempt, error)
}

// UserStore persists registered users.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	Get(ctx context.Context, id int64) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// SessionStore keeps per-browser-session progress: step snapshots, the timer and the signed-in user.
type SessionStore interface {
	SaveForm(ctx context.Context, sessionID string, snap domain.FormSnapshot) error
	Form(ctx context.Context, sessionID string, step int) (domain.FormSnapshot, bool, error)
	ClearForms(ctx context.Context, sessionID string) error
	StartTimer(ctx context.Context, sessionID string, at time.Time) error
	// TakeTimer returns the start time and clears it; ok is false when no timer is running.
	TakeTimer(ctx context.Context, sessionID string) (time.Time, bool, error)
	SetUser(ctx context.Context, sessionID string, userID int64) error
	User(ctx context.Context, sessionID string) (int64, bool, error)
	Reset(ctx context.Context, sessionID string) error
}

// QuestionBankRepository loads question banks (from cache/backing store).
type QuestionBankRepository interface {
	GetBank(ctx context.Context, locale string) (domain.QuestionBank, error)
}

// FlowMetrics receives quiz flow events.
type FlowMetrics interface {
	StepSubmitted(step int, outcome string)
	QuizCompleted(score int, elapsed time.Duration)
	TokenRejected(stage string)
}

type noopMetrics struct{}

func (noopMetrics) StepSubmitted(int, string)        {}
func (noopMetrics) QuizCompleted(int, time.Duration) {}
func (noopMetrics) TokenRejected(string)             {}
