package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizapp-service/internal/domain"
)

const uniqueViolation = "23505"

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Username       string    `bun:"username,notnull"`
	Email          string    `bun:"email,notnull"`
	PasswordDigest string    `bun:"password_digest,notnull"`
	Language       string    `bun:"language,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (r *userRow) toDomain() domain.User {
	return domain.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		PasswordDigest: r.PasswordDigest,
		Language:       r.Language,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// UserStore persists users with bun.
type UserStore struct {
	db bun.IDB
}

func NewUserStore(db bun.IDB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	row := &userRow{
		Username:       user.Username,
		Email:          strings.ToLower(user.Email),
		PasswordDigest: user.PasswordDigest,
		Language:       user.Language,
		CreatedAt:      user.CreatedAt.UTC(),
		UpdatedAt:      user.UpdatedAt.UTC(),
	}
	_, err := s.db.NewInsert().Model(row).ExcludeColumn("id").Returning("id").Exec(ctx)
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return err
	}
	user.ID = row.ID
	return nil
}

func (s *UserStore) Get(ctx context.Context, id int64) (domain.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findOne(ctx, "email = ?", strings.ToLower(email))
}

func (s *UserStore) Update(ctx context.Context, user *domain.User) error {
	row := &userRow{
		ID:        user.ID,
		Username:  user.Username,
		Language:  user.Language,
		UpdatedAt: user.UpdatedAt.UTC(),
	}
	res, err := s.db.NewUpdate().Model(row).
		Column("username", "language", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, where string, arg any) (domain.User, error) {
	row := new(userRow)
	err := s.db.NewSelect().Model(row).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return row.toDomain(), nil
}
