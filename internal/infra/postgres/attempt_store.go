package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"quizapp-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID             int64              `bun:"id,pk,autoincrement"`
	UserID         int64              `bun:"user_id,notnull"`
	Answer         domain.AnswerSheet `bun:"answer,type:jsonb,notnull"`
	DateAttempted  time.Time          `bun:"date_attempted,type:date,notnull"`
	Completed      bool               `bun:"completed,notnull"`
	Score          *int               `bun:"score"`
	ElapsedSeconds float64            `bun:"elapsed_seconds,notnull"`
	CreatedAt      time.Time          `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time          `bun:"updated_at,notnull,default:current_timestamp"`
}

func toAttemptRow(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:             a.ID,
		UserID:         a.UserID,
		Answer:         a.Answers,
		DateAttempted:  a.DateAttempted,
		Completed:      a.Completed,
		Score:          a.Score,
		ElapsedSeconds: a.ElapsedSeconds,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func (r *attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:             r.ID,
		UserID:         r.UserID,
		Answers:        r.Answer,
		DateAttempted:  r.DateAttempted,
		Completed:      r.Completed,
		Score:          r.Score,
		ElapsedSeconds: r.ElapsedSeconds,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// AttemptStore persists attempts with bun.
type AttemptStore struct {
	db  bun.IDB
	now func() time.Time
}

func NewAttemptStore(db bun.IDB) *AttemptStore {
	return &AttemptStore{db: db, now: time.Now}
}

func (s *AttemptStore) Latest(ctx context.Context, userID int64) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).
		Where("user_id = ?", userID).
		OrderExpr("id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) Get(ctx context.Context, id int64) (domain.Attempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) Create(ctx context.Context, attempt *domain.Attempt) error {
	now := s.now().UTC()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	row := toAttemptRow(*attempt)
	if _, err := s.db.NewInsert().Model(row).ExcludeColumn("id").Returning("id").Exec(ctx); err != nil {
		return err
	}
	attempt.ID = row.ID
	return nil
}

func (s *AttemptStore) Update(ctx context.Context, attempt *domain.Attempt) error {
	attempt.UpdatedAt = s.now().UTC()
	row := toAttemptRow(*attempt)
	res, err := s.db.NewUpdate().Model(row).
		Column("answer", "date_attempted", "completed", "score", "elapsed_seconds", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func (s *AttemptStore) DeleteIncomplete(ctx context.Context, userID int64) (int, error) {
	res, err := s.db.NewDelete().Model((*attemptRow)(nil)).
		Where("user_id = ?", userID).
		Where("completed = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *AttemptStore) ListByUser(ctx context.Context, userID int64) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return toAttempts(rows), nil
}

func (s *AttemptStore) TopCompleted(ctx context.Context, limit int) ([]domain.Attempt, error) {
	var rows []attemptRow
	q := s.db.NewSelect().Model(&rows).
		Where("completed = TRUE").
		Where("score IS NOT NULL").
		OrderExpr("score DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return toAttempts(rows), nil
}

func toAttempts(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}
