package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/memory"
)

func TestQuestionBankRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionBankLoader: memory.NewStaticBankLoader(map[string]domain.QuestionBank{
			"en": sampleBank(),
		}),
	}
	repo := NewQuestionBankRepository(client, loader, time.Minute)

	if _, err := repo.GetBank(context.Background(), "en"); err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:bank:en:answers") {
		t.Fatalf("expected answers hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	bank, err := repo.GetBank(context.Background(), "en")
	if err != nil {
		t.Fatalf("get bank 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if bank.CorrectAnswer(2, 1) != "Entomology" || bank.Question(1, 0) != "Which bone?" {
		t.Fatalf("bank not rebuilt from cache: %+v", bank)
	}
	if bank.TotalQuestions() != 3 {
		t.Fatalf("expected 3 cached questions, got %d", bank.TotalQuestions())
	}
}

func TestQuestionBankRepositoryExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuestionBankLoader: memory.NewStaticBankLoader(map[string]domain.QuestionBank{"en": sampleBank()}),
	}
	repo := NewQuestionBankRepository(newClient(mr), loader, time.Minute)

	if _, err := repo.GetBank(context.Background(), "en"); err != nil {
		t.Fatalf("get bank: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := repo.GetBank(context.Background(), "en"); err != nil {
		t.Fatalf("get bank after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, got %d", loader.calls)
	}

	if err := repo.Invalidate(context.Background(), "en"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:bank:en:answers") {
		t.Fatalf("expected cache cleared")
	}
}

type countingLoader struct {
	QuestionBankLoader
	calls int
}

func (l *countingLoader) LoadBank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	l.calls++
	return l.QuestionBankLoader.LoadBank(ctx, locale)
}

func sampleBank() domain.QuestionBank {
	return domain.QuestionBank{
		Locale: "en",
		Pages: []domain.QuestionPage{
			{Questions: []domain.Question{
				{Text: "Which bone?", CorrectAnswer: "Tibia"},
			}},
			{Questions: []domain.Question{
				{Text: "Study of plants and light?", CorrectAnswer: "Photosynthesis"},
				{Text: "Study of insects?", CorrectAnswer: "Entomology"},
			}},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
