package resolver

import (
	"context"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
)

// Source is the profile data store the resolver reads from.
type Source interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	FetchByEmail(ctx context.Context, email string) ([]auth.Profile, error)
	FetchByID(ctx context.Context, id string) ([]auth.Profile, error)
}

// AdminChecker answers the out-of-band admin-status question for a user
// whose profile could not be resolved.
type AdminChecker interface {
	IsAdminByEmail(ctx context.Context, email string) (bool, error)
}
