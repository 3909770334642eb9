package recommend

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
)

// BreakerService stops calling next after repeated failures and answers
// ErrUnavailable until the breaker lets a probe through again.
type BreakerService struct {
	next Service
	cb   *gobreaker.CircuitBreaker[[]Item]
}

// NewBreakerService opens the circuit after maxFailures consecutive
// failures and tries again after timeout.
func NewBreakerService(next Service, maxFailures uint32, timeout time.Duration) *BreakerService {
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker[[]Item](gobreaker.Settings{
		Name:        "recommendation-service",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller giving up is not a service failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &BreakerService{next: next, cb: cb}
}

func (s *BreakerService) PersonalizedRecommendations(ctx context.Context, prefs auth.Preferences, count int) ([]Item, error) {
	return s.execute(func() ([]Item, error) {
		return s.next.PersonalizedRecommendations(ctx, prefs, count)
	})
}

func (s *BreakerService) SimilarContentTitles(ctx context.Context, title, overview, mediaType string, count int) ([]Item, error) {
	return s.execute(func() ([]Item, error) {
		return s.next.SimilarContentTitles(ctx, title, overview, mediaType, count)
	})
}

func (s *BreakerService) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerService) execute(fn func() ([]Item, error)) ([]Item, error) {
	items, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrUnavailable
	}
	return items, err
}
