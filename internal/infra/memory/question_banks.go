package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizapp-service/internal/domain"
)

// QuestionBankLoader fetches question banks from a backing store (files, Postgres).
type QuestionBankLoader interface {
	LoadBank(ctx context.Context, locale string) (domain.QuestionBank, error)
}

// QuestionBankRepository caches question banks per locale with TTL to avoid repeated loads.
type QuestionBankRepository struct {
	loader QuestionBankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedBank
}

type cachedBank struct {
	bank      domain.QuestionBank
	expiresAt time.Time
}

func NewQuestionBankRepository(loader QuestionBankLoader, ttl time.Duration) *QuestionBankRepository {
	return &QuestionBankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedBank),
	}
}

func (r *QuestionBankRepository) GetBank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	if bank, ok := r.cached(locale); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(locale, func() (interface{}, error) {
		if bank, ok := r.cached(locale); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx, locale)
		if err != nil {
			return domain.QuestionBank{}, err
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[locale] = cachedBank{bank: bank, expiresAt: expiresAt}
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.QuestionBank{}, err
	}
	return result.(domain.QuestionBank), nil
}

// Invalidate drops a cached locale so the next read reloads it.
func (r *QuestionBankRepository) Invalidate(locale string) {
	r.mu.Lock()
	delete(r.cache, locale)
	r.mu.Unlock()
}

func (r *QuestionBankRepository) cached(locale string) (domain.QuestionBank, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[locale]
	if !ok || !entry.expiresAt.After(now) {
		return domain.QuestionBank{}, false
	}
	return entry.bank, true
}

func (r *QuestionBankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations across replicas
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticBankLoader serves banks from a map (useful for tests/demos).
type StaticBankLoader struct {
	banks map[string]domain.QuestionBank
}

func NewStaticBankLoader(banks map[string]domain.QuestionBank) *StaticBankLoader {
	return &StaticBankLoader{banks: banks}
}

func (l *StaticBankLoader) LoadBank(_ context.Context, locale string) (domain.QuestionBank, error) {
	if bank, ok := l.banks[locale]; ok {
		return bank, nil
	}
	return domain.QuestionBank{}, domain.ErrQuestionBankNotFound
}
