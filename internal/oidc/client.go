// Package oidc is the gateway's relying-party client for external OpenID
// Connect providers: discovery, authorization URL construction, and the
// authorization-code token exchange performed during login completion.
package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider is the subset of identity provider configuration the client needs.
type Provider struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Claims are the identity claims extracted from the provider's ID token. Only
// claims obtained from the provider's token endpoint are trusted; nothing
// client-supplied reaches this struct.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	Nonce       string
	// Groups maps each group-bearing claim name to its values, so access
	// grants can match on (claim, value) pairs regardless of which claim the
	// provider uses ("groups", "roles", ...).
	Groups map[string][]string
}

// Exchanger is implemented by Client and mocked in tests.
type Exchanger interface {
	AuthCodeURL(ctx context.Context, p Provider, state, nonce, challenge, redirectURI string) (string, error)
	Exchange(ctx context.Context, p Provider, code, verifier, redirectURI string) (*Claims, error)
}

type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: 15 * time.Second}}
}

type discovery struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// discover fetches the provider's discovery document. The token exchange is
// the only blocking network call in the login path; its timeout is the HTTP
// client's, a configuration concern.
func (c *Client) discover(ctx context.Context, issuer string) (*discovery, error) {
	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery document: unexpected status %d", resp.StatusCode)
	}

	var d discovery
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if d.AuthorizationEndpoint == "" || d.TokenEndpoint == "" {
		return nil, fmt.Errorf("discovery document missing endpoints")
	}
	return &d, nil
}

// AuthCodeURL builds the provider authorization URL the browser is redirected
// to. challenge, when non-empty, is the S256 PKCE challenge.
func (c *Client) AuthCodeURL(ctx context.Context, p Provider, state, nonce, challenge, redirectURI string) (string, error) {
	d, err := c.discover(ctx, p.Issuer)
	if err != nil {
		return "", err
	}

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {p.ClientID},
		"redirect_uri":  {redirectURI},
		"scope":         {strings.Join(p.Scopes, " ")},
		"state":         {state},
		"nonce":         {nonce},
	}
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", "S256")
	}

	return d.AuthorizationEndpoint + "?" + q.Encode(), nil
}

type tokenResponse struct {
	IDToken string `json:"id_token"`
}

// Exchange redeems an authorization code at the provider's token endpoint and
// extracts the identity claims from the returned ID token. The token arrives
// over the direct TLS channel to the provider, which is what makes its claims
// trustworthy here; signature verification against the provider JWKS is not
// re-done for this code-flow exchange.
func (c *Client) Exchange(ctx context.Context, p Provider, code, verifier, redirectURI string) (*Claims, error) {
	d, err := c.discover(ctx, p.Issuer)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {p.ClientID},
		"client_secret": {p.ClientSecret},
	}
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange: unexpected status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.IDToken == "" {
		return nil, fmt.Errorf("token response missing id_token")
	}

	return ParseIDToken(tr.IDToken)
}

// ParseIDToken decodes the claims of an ID token without re-verifying its
// signature (see Exchange for the trust model).
func ParseIDToken(idToken string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse id_token: %w", err)
	}

	out := &Claims{Groups: map[string][]string{}}

	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	}
	if out.Subject == "" {
		return nil, fmt.Errorf("id_token missing sub claim")
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		out.DisplayName = name
	} else if name, ok := claims["preferred_username"].(string); ok {
		out.DisplayName = name
	}
	if nonce, ok := claims["nonce"].(string); ok {
		out.Nonce = nonce
	}

	for _, claim := range []string{"groups", "roles"} {
		if values, ok := claims[claim].([]any); ok {
			for _, v := range values {
				if s, ok := v.(string); ok {
					out.Groups[claim] = append(out.Groups[claim], s)
				}
			}
		}
	}

	return out, nil
}
