package auth

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Profile is the application-level record describing a user.
type Profile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Role        Role           `json:"role"`
	DisplayName string         `json:"display_name,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Preferences are the user's recommendation tuning parameters.
// ViewingTime is the default viewing session length in minutes.
type Preferences struct {
	Genres          []string `json:"genres" validate:"dive,required,max=40"`
	Moods           []string `json:"moods" validate:"dive,required,max=40"`
	ViewingTime     int      `json:"viewing_time" validate:"min=0,max=600"`
	FavoriteContent []string `json:"favorite_content" validate:"dive,required,max=200"`
	AvoidContent    []string `json:"avoid_content" validate:"dive,required,max=200"`
	AgeRatings      []string `json:"age_ratings" validate:"dive,required,max=10"`
	Language        string   `json:"language" validate:"omitempty,max=35"`
}

// IsEmpty reports whether no preference has been set.
func (p *Preferences) IsEmpty() bool {
	return p == nil || (len(p.Genres) == 0 && len(p.Moods) == 0 && p.ViewingTime == 0 &&
		len(p.FavoriteContent) == 0 && len(p.AvoidContent) == 0 &&
		len(p.AgeRatings) == 0 && p.Language == "")
}

// LookupOutcome is the transient result of a profile resolution.
// Err carries the last fetch failure as a diagnostic; it is never
// a reason to treat the outcome as fatal.
type LookupOutcome struct {
	Found  bool
	Record *Profile
	Err    error
}
