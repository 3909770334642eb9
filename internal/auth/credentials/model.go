package credentials

// Credential is a stored password for one user.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	HashVersion  string
}
