// Package recommend talks to the recommendation service that turns
// preferences, or a title the user liked, into a list of titles.
package recommend

import (
	"context"
	"errors"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
)

// DefaultCount is used when a caller asks for zero or fewer items.
const DefaultCount = 10

var (
	// ErrUnavailable is returned while the service is considered down.
	ErrUnavailable = errors.New("recommend: service unavailable")
	// ErrBadResponse means the service answered with something unusable.
	ErrBadResponse = errors.New("recommend: malformed response")
)

// Item is one recommended title.
type Item struct {
	Title      string `json:"title" validate:"required"`
	Reason     string `json:"reason,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	Year       int    `json:"year,omitempty"`
}

type Service interface {
	PersonalizedRecommendations(ctx context.Context, prefs auth.Preferences, count int) ([]Item, error)
	SimilarContentTitles(ctx context.Context, title, overview, mediaType string, count int) ([]Item, error)
}

func normalizeCount(count int) int {
	if count <= 0 {
		return DefaultCount
	}
	return count
}
