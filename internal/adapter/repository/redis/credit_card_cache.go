package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/iho/cardledger/internal/domain"
	"github.com/iho/cardledger/internal/infrastructure/metrics"
	"github.com/iho/cardledger/internal/usecase"
)

const cardKeyPrefix = "credit_card:"

// CachedCreditCardRepository serves credit card reads from the cache and
// falls through to the wrapped repository on a miss. A circuit breaker
// bypasses the cache while Redis is failing. Writes invalidate the entry.
type CachedCreditCardRepository struct {
	next    usecase.CreditCardRepository
	cache   usecase.Cache
	ttl     time.Duration
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewCachedCreditCardRepository wraps next with a read-through cache.
func NewCachedCreditCardRepository(
	next usecase.CreditCardRepository,
	cache usecase.Cache,
	ttl time.Duration,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *CachedCreditCardRepository {
	r := &CachedCreditCardRepository{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}

	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "card-cache",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("cache breaker state changed")
			if r.metrics != nil {
				r.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return r
}

// Create stores the card and primes the cache.
func (r *CachedCreditCardRepository) Create(ctx context.Context, card *domain.CreditCard) error {
	if err := r.next.Create(ctx, card); err != nil {
		return err
	}

	r.store(ctx, card)

	return nil
}

// GetByID returns the cached card or loads it from the wrapped repository.
func (r *CachedCreditCardRepository) GetByID(ctx context.Context, id string) (*domain.CreditCard, error) {
	result, err := r.cb.Execute(func() (any, error) {
		return r.cache.Get(ctx, cardKeyPrefix+id)
	})

	switch {
	case err == nil:
		var card domain.CreditCard
		if jsonErr := json.Unmarshal(result.([]byte), &card); jsonErr == nil {
			r.lookup("hit")
			return &card, nil
		}
		r.lookup("corrupt")
	case errors.Is(err, ErrCacheMiss):
		r.lookup("miss")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.lookup("bypass")
	default:
		r.lookup("error")
		r.logger.Warn().Err(err).Str("credit_card_id", id).Msg("card cache read failed")
	}

	card, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, card)

	return card, nil
}

// Update writes through to the wrapped repository and drops the cached copy.
func (r *CachedCreditCardRepository) Update(ctx context.Context, card *domain.CreditCard) error {
	err := r.next.Update(ctx, card)

	if _, cacheErr := r.cb.Execute(func() (any, error) {
		return nil, r.cache.Delete(ctx, cardKeyPrefix+card.ID)
	}); cacheErr != nil {
		r.logger.Warn().Err(cacheErr).Str("credit_card_id", card.ID).Msg("card cache invalidation failed")
	}

	return err
}

// List is not cached.
func (r *CachedCreditCardRepository) List(ctx context.Context, limit, offset int) ([]*domain.CreditCard, error) {
	return r.next.List(ctx, limit, offset)
}

func (r *CachedCreditCardRepository) store(ctx context.Context, card *domain.CreditCard) {
	data, err := json.Marshal(card)
	if err != nil {
		return
	}

	if _, err := r.cb.Execute(func() (any, error) {
		return nil, r.cache.Set(ctx, cardKeyPrefix+card.ID, data, r.ttl)
	}); err != nil {
		r.logger.Debug().Err(err).Str("credit_card_id", card.ID).Msg("card cache write skipped")
	}
}

func (r *CachedCreditCardRepository) lookup(result string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
