package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/files"
	"quizapp-service/internal/infra/memory"
	"quizapp-service/internal/paramcodec"
)

func TestTokenEncodeDecode(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "encode", "answer[]=Tibia", "answer[]=Intel", "current_step=2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	token := strings.TrimSpace(out.String())

	params, err := paramcodec.Decode(token)
	if err != nil {
		t.Fatalf("decode produced token: %v", err)
	}
	if params.String("current_step") != "2" || strings.Join(params.Strings("answer"), ",") != "Tibia,Intel" {
		t.Fatalf("unexpected params %#v", params)
	}

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "decode", token})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.String(), `"current_step": "2"`) {
		t.Fatalf("unexpected decode output %q", out.String())
	}
}

func TestSeedSamplesScoresAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserStore()
	attempts := memory.NewAttemptStore()
	bank, err := files.NewQuestionLoader("../../config/questions").LoadBank(ctx, "en")
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	today := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	hash := func(pw string) (string, error) { return "digest:" + pw, nil }

	for i := 0; i < 2; i++ {
		if err := seedSamples(ctx, users, attempts, today, bank, hash, zap.NewNop()); err != nil {
			t.Fatalf("seed run %d: %v", i+1, err)
		}
	}

	board, err := attempts.TopCompleted(ctx, domain.ScoreboardSize)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(board) != 4 {
		t.Fatalf("expected 4 seeded attempts after two runs, got %d", len(board))
	}
	alice, err := users.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find alice: %v", err)
	}
	// alice misses only the Ruby question on page 2.
	if board[0].UserID != alice.ID || *board[0].Score != 93 {
		t.Fatalf("expected alice on top with 93, got user %d score %d", board[0].UserID, *board[0].Score)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig("does/not/exist.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Quiz.DefaultLocale != "en" {
		t.Fatalf("expected defaults, got %+v", cfg.Quiz)
	}
}
