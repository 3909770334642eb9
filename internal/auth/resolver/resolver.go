package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/metrics"
	"github.com/joshuamichael7/whattowatch-sub004/internal/retry"
)

// ErrNoRows marks a fetch that succeeded but returned nothing. The
// resolver treats it as retryable: a freshly provisioned profile may not
// be visible yet.
var ErrNoRows = errors.New("resolver: no rows returned")

// Resolver determines which profile record a session subject has.
// It is the ONLY place where profile lookup logic lives.
type Resolver interface {
	Resolve(ctx context.Context, user auth.User) auth.LookupOutcome
}

// DefaultEmailPolicy is 2 attempts waiting 300ms × attempt.
func DefaultEmailPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, Backoff: retry.Linear(300 * time.Millisecond)}
}

// DefaultIDPolicy is 3 attempts waiting 500ms × attempt.
func DefaultIDPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Backoff: retry.Linear(500 * time.Millisecond)}
}

// ProfileResolver looks a profile up by email first, then by id.
// It never creates a profile.
type ProfileResolver struct {
	source      Source
	emailPolicy retry.Policy
	idPolicy    retry.Policy
}

type Option func(*ProfileResolver)

func WithEmailPolicy(p retry.Policy) Option {
	return func(r *ProfileResolver) { r.emailPolicy = p }
}

func WithIDPolicy(p retry.Policy) Option {
	return func(r *ProfileResolver) { r.idPolicy = p }
}

// WithSleep replaces the wait used by both policies.
func WithSleep(s retry.SleepFunc) Option {
	return func(r *ProfileResolver) {
		r.emailPolicy.Sleep = s
		r.idPolicy.Sleep = s
	}
}

func NewProfileResolver(source Source, opts ...Option) *ProfileResolver {
	r := &ProfileResolver{
		source:      source,
		emailPolicy: DefaultEmailPolicy(),
		idPolicy:    DefaultIDPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ProfileResolver) Resolve(ctx context.Context, user auth.User) auth.LookupOutcome {
	var (
		record  *auth.Profile
		lastErr error
	)

	// 1. Email lookup
	if user.Email != "" {
		exists, err := r.source.ExistsByEmail(ctx, user.Email)
		if err != nil {
			logger.Warn("profile existence check by email failed", map[string]any{
				"user_id": user.ID,
				"error":   err.Error(),
			})
			exists = false
		}

		if exists {
			record, lastErr = r.fetch(ctx, "email", r.emailPolicy, user.Email, r.source.FetchByEmail)
			if record != nil {
				metrics.ProfileResolutions.WithLabelValues("email", "found").Inc()
				return auth.LookupOutcome{Found: true, Record: record}
			}
		}
	}

	// 2. Id lookup
	if user.ID == "" {
		metrics.ProfileResolutions.WithLabelValues("none", "not_found").Inc()
		return auth.LookupOutcome{Err: lastErr}
	}

	exists, err := r.source.ExistsByID(ctx, user.ID)
	if err != nil {
		logger.Warn("profile existence check by id failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
		exists = false
	}

	if !exists {
		metrics.ProfileResolutions.WithLabelValues("id", "not_found").Inc()
		return auth.LookupOutcome{}
	}

	record, lastErr = r.fetch(ctx, "id", r.idPolicy, user.ID, r.source.FetchByID)

	// 3. Outcome
	if record == nil {
		metrics.ProfileResolutions.WithLabelValues("id", "not_found").Inc()
		logger.Warn("profile exists but could not be fetched", map[string]any{
			"user_id": user.ID,
			"error":   errString(lastErr),
		})
		return auth.LookupOutcome{Err: lastErr}
	}

	metrics.ProfileResolutions.WithLabelValues("id", "found").Inc()
	return auth.LookupOutcome{Found: true, Record: record}
}

func (r *ProfileResolver) fetch(
	ctx context.Context,
	path string,
	policy retry.Policy,
	key string,
	fetch func(context.Context, string) ([]auth.Profile, error),
) (*auth.Profile, error) {

	rows, res, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) ([]auth.Profile, error) {
		metrics.ProfileFetchAttempts.WithLabelValues(path).Inc()

		rows, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, ErrNoRows
		}
		return rows, nil
	})
	if err != nil {
		logger.Debug("profile fetch gave up", map[string]any{
			"path":     path,
			"attempts": res.Attempts,
			"error":    err.Error(),
		})
		return nil, err
	}

	p := rows[0]
	return &p, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
