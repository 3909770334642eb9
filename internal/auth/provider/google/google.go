package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider"
)

const (
	providerName = "google"
	googleIssuer = "https://accounts.google.com"
)

type Provider struct {
	client *provider.OIDCClient
}

// New discovers Google's OIDC endpoints and builds the provider.
func New(ctx context.Context, clientID, clientSecret, redirectURL string) (*Provider, error) {
	return newWithIssuer(ctx, googleIssuer, clientID, clientSecret, redirectURL)
}

func newWithIssuer(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (*Provider, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     oidcProvider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: clientID})

	return &Provider{client: provider.NewOIDCClient(providerName, cfg, verifier)}, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.client.AuthCodeURL(state, codeChallenge)
}

func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Identity, error) {
	claims, err := p.client.Exchange(ctx, code, codeVerifier)
	if err != nil {
		return nil, err
	}

	return &auth.Identity{
		Provider:       providerName,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
	}, nil
}
