package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
)

// Claims are the ID token fields providers map onto auth.Identity.
type Claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// OIDCClient runs the authorization-code flow with PKCE against one
// OIDC issuer.
type OIDCClient struct {
	name     string
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDCClient(name string, config *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCClient {
	return &OIDCClient{name: name, config: config, verifier: verifier}
}

// Config exposes the oauth2 settings, endpoints included.
func (c *OIDCClient) Config() *oauth2.Config {
	return c.config
}

func (c *OIDCClient) AuthCodeURL(state, codeChallenge string) string {
	return c.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades code for tokens and returns the verified ID token
// claims. Subject and email are required.
func (c *OIDCClient) Exchange(ctx context.Context, code, codeVerifier string) (Claims, error) {
	token, err := c.config.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return Claims{}, fmt.Errorf("%s token exchange failed: %w", c.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Claims{}, fmt.Errorf("%s did not return id_token", c.name)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Claims{}, fmt.Errorf("%s id_token verification failed: %w", c.name, err)
	}

	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, fmt.Errorf("%s id_token claims parse failed: %w", c.name, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return Claims{}, errors.New(c.name + " id_token missing required claims")
	}

	logger.Debug("oidc token verified", map[string]any{
		"provider":       c.name,
		"issuer":         idToken.Issuer,
		"email_verified": claims.EmailVerified,
		"expiry_unix":    idToken.Expiry.Unix(),
	})

	return claims, nil
}
