package redis

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizapp-service/internal/domain"
)

// QuestionBankLoader fetches question banks from a backing store (files, Postgres).
type QuestionBankLoader interface {
	LoadBank(ctx context.Context, locale string) (domain.QuestionBank, error)
}

// QuestionBankRepository caches question banks in Redis and falls back to a loader on cache miss.
// Questions are stored as: HSET quiz:bank:{locale}:questions {page}.{index} {text}
// Answers are stored as:   HSET quiz:bank:{locale}:answers   {page}.{index} {correct answer}
type QuestionBankRepository struct {
	client *redis.Client
	loader QuestionBankLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBankRepository(client *redis.Client, loader QuestionBankLoader, ttl time.Duration) *QuestionBankRepository {
	return &QuestionBankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionBankRepository) GetBank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	if bank, ok := r.fromCache(ctx, locale); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(locale, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.fromCache(ctx, locale); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, locale)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		questionKey, answerKey := r.questionsKey(locale), r.answersKey(locale)
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.Del(ctx, questionKey, answerKey)
		for p, page := range bank.Pages {
			for i, q := range page.Questions {
				field := slotField(p+1, i)
				pipe.HSet(ctx, questionKey, field, q.Text)
				pipe.HSet(ctx, answerKey, field, q.CorrectAnswer)
			}
		}
		if ttl > 0 {
			pipe.Expire(ctx, questionKey, ttl)
			pipe.Expire(ctx, answerKey, ttl)
		}
		// best-effort: a failed write only costs another load
		_, _ = pipe.Exec(ctx)

		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// Invalidate removes the cached bank for locale.
func (r *QuestionBankRepository) Invalidate(ctx context.Context, locale string) error {
	return r.client.Del(ctx, r.questionsKey(locale), r.answersKey(locale)).Err()
}

func (r *QuestionBankRepository) fromCache(ctx context.Context, locale string) (domain.QuestionBank, bool) {
	answers, err := r.client.HGetAll(ctx, r.answersKey(locale)).Result()
	if err != nil || len(answers) == 0 {
		return domain.QuestionBank{}, false
	}
	questions, _ := r.client.HGetAll(ctx, r.questionsKey(locale)).Result()
	return buildBankFromCache(locale, questions, answers), true
}

func (r *QuestionBankRepository) questionsKey(locale string) string {
	return "quiz:bank:" + locale + ":questions"
}

func (r *QuestionBankRepository) answersKey(locale string) string {
	return "quiz:bank:" + locale + ":answers"
}

func slotField(page, index int) string {
	return strconv.Itoa(page) + "." + strconv.Itoa(index)
}

func parseSlotField(field string) (int, int, bool) {
	rawPage, rawIndex, ok := strings.Cut(field, ".")
	if !ok {
		return 0, 0, false
	}
	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 1 {
		return 0, 0, false
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		return 0, 0, false
	}
	return page, index, true
}

func buildBankFromCache(locale string, questions, answers map[string]string) domain.QuestionBank {
	bank := domain.QuestionBank{Locale: locale}
	for field, answer := range answers {
		page, index, ok := parseSlotField(field)
		if !ok {
			continue
		}
		for len(bank.Pages) < page {
			bank.Pages = append(bank.Pages, domain.QuestionPage{})
		}
		qs := bank.Pages[page-1].Questions
		for len(qs) <= index {
			qs = append(qs, domain.Question{})
		}
		qs[index] = domain.Question{Text: questions[field], CorrectAnswer: answer}
		bank.Pages[page-1].Questions = qs
	}
	return bank
}

func (r *QuestionBankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
