package auth

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google", "keycloak"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string // verified email returned by provider
	EmailVerified  bool   // whether provider asserts email ownership
	DisplayName    string // name claim, used to seed a new profile
}

// User is the subject of an authenticated session: the key the profile
// resolver looks records up by. Email may be empty.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}
