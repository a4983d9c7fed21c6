package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/files"
	"quizapp-service/internal/infra/postgres"
)

type sampleUser struct {
	Email    string
	Username string
	Password string
	Answers  domain.AnswerSheet
}

func sampleUsers() []sampleUser {
	page3 := []string{"giraffe", "pacific", "lima", "au", "ruby"}
	return []sampleUser{
		{
			Email: "test@test.com", Username: "test", Password: "test",
			Answers: domain.AnswerSheet{
				"question_page_1": {"Tibia", "Isaac Newton", "Intel", "Mount Everest", "Nitrogen"},
				"question_page_2": {"Photosynthesis", "Ornithology", "Dorothy Hodgkin", "Ruby", "F. Scott Fitzgerald"},
				"question_page_3": page3,
			},
		},
		{
			Email: "alice@example.com", Username: "alice", Password: "password",
			Answers: domain.AnswerSheet{
				"question_page_1": {"Tibia", "Isaac Newton", "Intel", "Mount Everest", "Nitrogen"},
				"question_page_2": {"Photosynthesis", "Entomology", "Dorothy Hodgkin", "Python", "J.D. Salinger"},
				"question_page_3": page3,
			},
		},
		{
			Email: "bob@example.com", Username: "bob", Password: "password",
			Answers: domain.AnswerSheet{
				"question_page_1": {"Femur", "Albert Einstein", "Intel", "Mount Everest", "Nitrogen"},
				"question_page_2": {"Photosynthesis", "Ichthyology", "Marie Curie", "Python", "J.D. Salinger"},
				"question_page_3": page3,
			},
		},
		{
			Email: "charlie@example.com", Username: "charlie", Password: "password",
			Answers: domain.AnswerSheet{
				"question_page_1": {"Tibia", "Albert Einstein", "Intel", "Mount Everest", "Nitrogen"},
				"question_page_2": {"Photosynthesis", "Entomology", "Rosalind Franklin", "Python", "J.D. Salinger"},
				"question_page_3": {"shark", "pacific", "lima", "pb", "ruby"},
			},
		},
	}
}

// NewSeedCmd loads sample users with scored attempts and stores the YAML question banks in Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var skipBanks bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample users, scored attempts and question banks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath, !skipBanks)
		},
	}
	cmd.Flags().BoolVar(&skipBanks, "skip-banks", false, "do not copy YAML question banks into Postgres")
	return cmd
}

func runSeed(ctx context.Context, configPath string, withBanks bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := buildStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if withBanks {
		if err := copyBanks(ctx, files.NewQuestionLoader(cfg.Quiz.QuestionDir), postgres.NewQuestionLoader(st.pool), log); err != nil {
			return err
		}
	}

	bank, err := st.banks.GetBank(ctx, cfg.Quiz.DefaultLocale)
	if err != nil {
		return fmt.Errorf("load %s question bank: %w", cfg.Quiz.DefaultLocale, err)
	}
	attempts := app.NewAttemptService(st.attempts, cfg.Location())
	auth := app.NewAuthService(st.users, st.sessions, attempts)
	return seedSamples(ctx, st.users, st.attempts, attempts.Today(), bank, auth.Hash, log)
}

func copyBanks(ctx context.Context, src *files.QuestionLoader, dst *postgres.QuestionLoader, log *zap.Logger) error {
	locales, err := src.Locales()
	if err != nil {
		return err
	}
	for _, locale := range locales {
		bank, err := src.LoadBank(ctx, locale)
		if err != nil {
			return err
		}
		if err := dst.SaveBank(ctx, bank); err != nil {
			return err
		}
		log.Info("question bank stored", zap.String("locale", locale))
	}
	return nil
}

// seedSamples creates each sample user unless the email exists, and gives users
// without attempts one completed, scored attempt dated today.
func seedSamples(ctx context.Context, users app.UserStore, attempts app.AttemptStore, today time.Time, bank domain.QuestionBank, hash func(string) (string, error), log *zap.Logger) error {
	for _, sample := range sampleUsers() {
		user, err := users.FindByEmail(ctx, sample.Email)
		switch {
		case err == nil:
			log.Info("user already exists", zap.String("username", user.Username))
		case errors.Is(err, domain.ErrUserNotFound):
			digest, err := hash(sample.Password)
			if err != nil {
				return err
			}
			user = domain.User{Username: sample.Username, Email: sample.Email, PasswordDigest: digest, CreatedAt: today, UpdatedAt: today}
			if err := users.Create(ctx, &user); err != nil {
				return fmt.Errorf("create %s: %w", sample.Username, err)
			}
			log.Info("created user", zap.String("username", user.Username))
		default:
			return err
		}

		existing, err := attempts.ListByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			log.Info("answers already exist", zap.String("username", user.Username))
			continue
		}

		attempt := domain.Attempt{
			UserID:        user.ID,
			Answers:       sample.Answers.Clone(),
			DateAttempted: today,
			Completed:     true,
		}
		stored := app.Score(attempt, bank).Stored()
		attempt.Score = &stored
		if err := attempts.Create(ctx, &attempt); err != nil {
			return fmt.Errorf("create attempt for %s: %w", user.Username, err)
		}
		log.Info("created answers", zap.String("username", user.Username), zap.Int("score", stored))
	}
	return nil
}
