package recommend

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
)

type flakyService struct {
	err   error
	items []Item
	calls int
}

func (f *flakyService) PersonalizedRecommendations(ctx context.Context, prefs auth.Preferences, count int) ([]Item, error) {
	f.calls++
	return f.items, f.err
}

func (f *flakyService) SimilarContentTitles(ctx context.Context, title, overview, mediaType string, count int) ([]Item, error) {
	f.calls++
	return f.items, f.err
}

func TestBreakerPassesThroughWhileClosed(t *testing.T) {
	next := &flakyService{items: []Item{{Title: "Heat"}}}
	svc := NewBreakerService(next, 2, time.Minute)

	items, err := svc.PersonalizedRecommendations(context.Background(), auth.Preferences{}, 1)

	require.NoError(t, err)
	assert.Equal(t, next.items, items)
	assert.Equal(t, gobreaker.StateClosed, svc.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	next := &flakyService{err: boom}
	svc := NewBreakerService(next, 2, time.Minute)
	ctx := context.Background()

	_, err := svc.SimilarContentTitles(ctx, "Heat", "", "", 1)
	assert.ErrorIs(t, err, boom)
	_, err = svc.SimilarContentTitles(ctx, "Heat", "", "", 1)
	assert.ErrorIs(t, err, boom)

	_, err = svc.SimilarContentTitles(ctx, "Heat", "", "", 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, gobreaker.StateOpen, svc.State())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	next := &flakyService{err: context.Canceled}
	svc := NewBreakerService(next, 1, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := svc.PersonalizedRecommendations(context.Background(), auth.Preferences{}, 1)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, svc.State())
}
