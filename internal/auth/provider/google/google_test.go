package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/o/oauth2/v2/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
		})
	}))
	defer srv.Close()

	p, err := newWithIssuer(context.Background(), srv.URL, "cid", "secret", "http://app/oauth/callback/google")
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	u, err := url.Parse(p.AuthCodeURL("s", "c"))
	require.NoError(t, err)

	assert.Equal(t, "/o/oauth2/v2/auth", u.Path)
	assert.Equal(t, "s", u.Query().Get("state"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	assert.Equal(t, "openid profile email", u.Query().Get("scope"))
}

func TestNewRequiresAllFields(t *testing.T) {
	_, err := New(context.Background(), "cid", "", "http://app/cb")
	assert.Error(t, err)
}
