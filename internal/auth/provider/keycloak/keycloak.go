package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/auth/provider"
)

const providerName = "keycloak"

// Provider implements OAuth + OIDC authentication against Keycloak.
// It returns identity facts only; no user/session decisions are made here.
type Provider struct {
	client *provider.OIDCClient
}

// New initializes a Keycloak OIDC provider using discovery.
// issuer is the realm issuer URL as the server sees it, e.g.
// http://keycloak:8080/realms/whattowatch. publicBaseURL is the Keycloak
// origin browsers can reach; the authorization endpoint is rewritten onto
// it while token exchange keeps using the discovered endpoint.
func New(ctx context.Context, issuer, clientID, redirectURL, publicBaseURL string) (*Provider, error) {
	if issuer == "" || clientID == "" || redirectURL == "" || publicBaseURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	ep := oidcProvider.Endpoint()
	ep.AuthURL, err = rebase(ep.AuthURL, publicBaseURL)
	if err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURL,
		Endpoint:    ep,
		Scopes:      []string{oidc.ScopeOpenID, "email", "profile"},
	}
	verifier := oidcProvider.Verifier(&oidc.Config{ClientID: clientID})

	return &Provider{client: provider.NewOIDCClient(providerName, cfg, verifier)}, nil
}

// rebase moves endpoint's path and query onto base.
func rebase(endpoint, base string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("keycloak: parse auth url: %w", err)
	}
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("keycloak: invalid public base url %q", base)
	}

	b.Path += u.Path
	b.RawQuery = u.RawQuery
	return b.String(), nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.client.AuthCodeURL(state, codeChallenge)
}

// ExchangeCode falls back to preferred_username when the realm sends no
// name claim.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.Identity, error) {
	claims, err := p.client.Exchange(ctx, code, codeVerifier)
	if err != nil {
		return nil, err
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	return &auth.Identity{
		Provider:       providerName,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    name,
	}, nil
}
