package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeS256(t *testing.T) {
	verifier := NewVerifier()
	challenge := ChallengeS256(verifier)

	h := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(h[:]), challenge)
}

func TestNewVerifier_Unique(t *testing.T) {
	assert.NotEqual(t, NewVerifier(), NewVerifier())
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestParseIDToken(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{
		"sub":    "user-123",
		"email":  "dev@example.com",
		"name":   "Dev User",
		"nonce":  "n-1",
		"groups": []string{"ml-team", "admins"},
	})

	claims, err := ParseIDToken(idToken)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.Equal(t, "Dev User", claims.DisplayName)
	assert.Equal(t, "n-1", claims.Nonce)
	assert.Equal(t, []string{"ml-team", "admins"}, claims.Groups["groups"])
}

func TestParseIDToken_MissingSubject(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{"email": "dev@example.com"})

	_, err := ParseIDToken(idToken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub")
}

func TestParseIDToken_PreferredUsernameFallback(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{
		"sub":                "user-123",
		"preferred_username": "devuser",
	})

	claims, err := ParseIDToken(idToken)
	require.NoError(t, err)
	assert.Equal(t, "devuser", claims.DisplayName)
}

func TestParseIDToken_Garbage(t *testing.T) {
	_, err := ParseIDToken("not-a-jwt")
	require.Error(t, err)
}

func newProviderServer(t *testing.T, idToken string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "code-1", r.Form.Get("code"))
		json.NewEncoder(w).Encode(map[string]string{"id_token": idToken})
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_AuthCodeURL(t *testing.T) {
	srv := newProviderServer(t, "")
	c := NewClient()

	p := Provider{Issuer: srv.URL, ClientID: "cid", Scopes: []string{"openid", "email"}}
	u, err := c.AuthCodeURL(context.Background(), p, "state-1", "nonce-1", "chal-1", "https://gw/auth/callback")
	require.NoError(t, err)

	assert.Contains(t, u, srv.URL+"/authorize?")
	assert.Contains(t, u, "state=state-1")
	assert.Contains(t, u, "nonce=nonce-1")
	assert.Contains(t, u, "code_challenge=chal-1")
	assert.Contains(t, u, "code_challenge_method=S256")
	assert.Contains(t, u, "scope=openid+email")
}

func TestClient_Exchange(t *testing.T) {
	idToken := signedToken(t, jwt.MapClaims{"sub": "user-1", "nonce": "n-1"})
	srv := newProviderServer(t, idToken)
	c := NewClient()

	p := Provider{Issuer: srv.URL, ClientID: "cid", ClientSecret: "cs"}
	claims, err := c.Exchange(context.Background(), p, "code-1", "", "https://gw/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "n-1", claims.Nonce)
}
