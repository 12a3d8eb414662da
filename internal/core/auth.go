package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/llmgate/internal/crypto"
	"github.com/edvin/llmgate/internal/model"
	"github.com/edvin/llmgate/internal/oidc"
	"github.com/edvin/llmgate/internal/platform"
)

const (
	handshakeTTL = 10 * time.Minute
	sessionTTL   = 24 * time.Hour
)

// AuthService owns the OIDC login handshake and browser sessions. Handshake
// rows are single-use with a short absolute expiry; both handshakes and
// sessions expire passively and are re-checked on every read.
type AuthService struct {
	db        DB
	providers *ProviderService
	users     *UserService
	grants    *GrantService
	exchanger oidc.Exchanger
	// redirectURI is the gateway callback URL registered with every provider.
	redirectURI string
}

func NewAuthService(db DB, providers *ProviderService, users *UserService, grants *GrantService, exchanger oidc.Exchanger, redirectURI string) *AuthService {
	return &AuthService{
		db:          db,
		providers:   providers,
		users:       users,
		grants:      grants,
		exchanger:   exchanger,
		redirectURI: redirectURI,
	}
}

// BeginLogin creates a handshake record and returns the provider
// authorization URL the browser should be redirected to. The CSRF token
// travels as the OIDC `state` parameter.
func (s *AuthService) BeginLogin(ctx context.Context, providerID string) (string, error) {
	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		return "", err
	}
	if !provider.Enabled {
		return "", fmt.Errorf("identity provider %s is disabled", providerID)
	}

	state := &model.LoginState{
		CSRFToken:   platform.NewSecret("lgx_"),
		ProviderID:  provider.ID,
		Nonce:       platform.NewSecret("lgn_"),
		RedirectURI: s.redirectURI,
		ExpiresAt:   time.Now().Add(handshakeTTL),
	}

	var challenge string
	if provider.PKCE {
		verifier := oidc.NewVerifier()
		state.PKCEVerifier = &verifier
		challenge = oidc.ChallengeS256(verifier)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO login_states (csrf_token, provider_id, nonce, pkce_verifier, redirect_uri, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		state.CSRFToken, state.ProviderID, state.Nonce, state.PKCEVerifier, state.RedirectURI, state.ExpiresAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert login state: %w", err)
	}

	return s.exchanger.AuthCodeURL(ctx, oidc.Provider{
		Issuer:   provider.Issuer,
		ClientID: provider.ClientID,
		Scopes:   provider.Scopes,
	}, state.CSRFToken, state.Nonce, challenge, s.redirectURI)
}

// CompleteLogin consumes the handshake keyed by the returned state value,
// exchanges the authorization code with the provider, upserts the user and
// issues a session. The handshake row is deleted and its expiry checked in
// one statement, so replayed or expired callbacks fail identically with
// ErrHandshakeExpiredOrUnknown.
func (s *AuthService) CompleteLogin(ctx context.Context, stateToken, code string) (*model.Session, string, error) {
	var state model.LoginState
	err := s.db.QueryRow(ctx,
		`DELETE FROM login_states
		 WHERE csrf_token = $1 AND expires_at > now()
		 RETURNING csrf_token, provider_id, nonce, pkce_verifier, redirect_uri, expires_at, created_at`,
		stateToken,
	).Scan(&state.CSRFToken, &state.ProviderID, &state.Nonce, &state.PKCEVerifier,
		&state.RedirectURI, &state.ExpiresAt, &state.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrHandshakeExpiredOrUnknown
	}
	if err != nil {
		return nil, "", fmt.Errorf("consume login state: %w", err)
	}

	provider, err := s.providers.GetByID(ctx, state.ProviderID)
	if err != nil {
		return nil, "", err
	}
	clientSecret, err := s.providers.ClientSecret(provider)
	if err != nil {
		return nil, "", err
	}

	verifier := ""
	if state.PKCEVerifier != nil {
		verifier = *state.PKCEVerifier
	}

	claims, err := s.exchanger.Exchange(ctx, oidc.Provider{
		Issuer:       provider.Issuer,
		ClientID:     provider.ClientID,
		ClientSecret: clientSecret,
		Scopes:       provider.Scopes,
	}, code, verifier, state.RedirectURI)
	if err != nil {
		return nil, "", fmt.Errorf("token exchange with provider %s: %w", provider.ID, err)
	}

	if claims.Nonce != state.Nonce {
		return nil, "", fmt.Errorf("id_token nonce mismatch")
	}

	user, err := s.users.Upsert(ctx, provider.ID, claims.Subject, claims.Email, claims.DisplayName)
	if err != nil {
		return nil, "", err
	}

	// Snapshot category grants onto the session so per-request authorization
	// never re-evaluates provider claims.
	categories, err := s.grants.CategoriesFor(ctx, provider.ID, claims.Groups)
	if err != nil {
		return nil, "", err
	}

	return s.issueSession(ctx, user.ID, categories)
}

func (s *AuthService) issueSession(ctx context.Context, userID string, categories []string) (*model.Session, string, error) {
	raw := platform.NewSecret("lgs_")
	if categories == nil {
		categories = []string{}
	}

	session := &model.Session{
		ID:          platform.NewID(),
		UserID:      userID,
		TokenHash:   crypto.GenericHash(raw),
		TokenPrefix: raw[:12],
		Categories:  categories,
		ExpiresAt:   time.Now().Add(sessionTTL),
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, token_prefix, categories, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 RETURNING created_at`,
		session.ID, session.UserID, session.TokenHash, session.TokenPrefix, session.Categories, session.ExpiresAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("insert session: %w", err)
	}

	return session, raw, nil
}

// ValidateSession resolves a raw session token. Unknown hashes fail with
// ErrUnauthenticated; a known but expired session fails with ErrSessionExpired.
func (s *AuthService) ValidateSession(ctx context.Context, raw string) (*model.User, *model.Session, error) {
	var session model.Session
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, token_hash, token_prefix, categories, expires_at, created_at
		 FROM sessions WHERE token_hash = $1`,
		crypto.GenericHash(raw),
	).Scan(&session.ID, &session.UserID, &session.TokenHash, &session.TokenPrefix,
		&session.Categories, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, err
	}

	return user, &session, nil
}

// Logout invalidates a session by raw token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`, crypto.GenericHash(raw),
	)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
