package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"quizapp-service/internal/app"
	"quizapp-service/internal/config"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/files"
	"quizapp-service/internal/infra/memory"
	"quizapp-service/internal/infra/postgres"
	redisstore "quizapp-service/internal/infra/redis"
	"quizapp-service/internal/logging"
)

// loadConfig reads path; a missing file means defaults.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log)
}

// stack holds the storage adapters picked from config: Redis and Postgres when
// configured, in-memory otherwise.
type stack struct {
	attempts app.AttemptStore
	users    app.UserStore
	sessions app.SessionStore
	banks    app.QuestionBankRepository

	db      *bun.DB
	pool    *pgxpool.Pool
	redis   *redis.Client
	closers []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildStack(ctx context.Context, cfg config.Config, log *zap.Logger) (*stack, error) {
	s := &stack{}
	var loader memory.QuestionBankLoader = files.NewQuestionLoader(cfg.Quiz.QuestionDir)

	if cfg.Postgres.URL != "" {
		s.db = postgres.Open(cfg.Postgres.URL)
		s.closers = append(s.closers, func() { _ = s.db.Close() })
		group, err := postgres.Migrate(ctx, s.db)
		if err != nil {
			s.Close()
			return nil, err
		}
		if !group.IsZero() {
			log.Info("migrations applied", zap.Stringer("group", group))
		}

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect postgres pool: %w", err)
		}
		s.pool = pool
		s.closers = append(s.closers, pool.Close)

		s.attempts = postgres.NewAttemptStore(s.db)
		s.users = postgres.NewUserStore(s.db)
		loader = fallbackLoader{primary: postgres.NewQuestionLoader(pool), secondary: loader}
		log.Info("using postgres storage")
	} else {
		s.attempts = memory.NewAttemptStore()
		s.users = memory.NewUserStore()
		log.Warn("postgres not configured, attempts and users are kept in memory")
	}

	bankTTL := config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = s.redis.Close() })
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		sessionTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
		s.sessions = redisstore.NewSessionStore(s.redis, sessionTTL)
		s.banks = redisstore.NewQuestionBankRepository(s.redis, loader, bankTTL)
		log.Info("using redis sessions", zap.String("addr", cfg.Redis.Addr))
	} else {
		s.sessions = memory.NewSessionStore()
		s.banks = memory.NewQuestionBankRepository(loader, bankTTL)
	}
	return s, nil
}

// fallbackLoader consults secondary when primary has no bank for the locale.
type fallbackLoader struct {
	primary   memory.QuestionBankLoader
	secondary memory.QuestionBankLoader
}

func (l fallbackLoader) LoadBank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	bank, err := l.primary.LoadBank(ctx, locale)
	if errors.Is(err, domain.ErrQuestionBankNotFound) {
		return l.secondary.LoadBank(ctx, locale)
	}
	return bank, err
}
