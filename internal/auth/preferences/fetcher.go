package preferences

import (
	"context"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
)

// Source is the preferences data store.
// FetchPreferences returns (nil, nil) when the user has none.
type Source interface {
	FetchPreferences(ctx context.Context, userID string) (*auth.Preferences, error)
}

// Fetcher is a best-effort preferences lookup with its own failure
// domain: it never reports an error, only "no preferences".
type Fetcher struct {
	source Source
}

func NewFetcher(source Source) *Fetcher {
	return &Fetcher{source: source}
}

// Fetch makes a single attempt. It returns nil on error or when the
// stored preferences are empty.
func (f *Fetcher) Fetch(ctx context.Context, userID string) *auth.Preferences {
	prefs, err := f.source.FetchPreferences(ctx, userID)
	if err != nil {
		logger.Warn("preferences fetch failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	if prefs.IsEmpty() {
		return nil
	}
	return prefs
}
