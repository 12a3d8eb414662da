package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/llmgate/internal/crypto"
	"github.com/edvin/llmgate/internal/model"
)

// Identity is an authenticated caller with their effective authorization
// scope. Categories is populated for session callers from the grant snapshot;
// token callers are bounded by the token scope alone.
type Identity struct {
	User       model.User  `json:"user"`
	TokenID    *string     `json:"token_id,omitempty"`
	Scope      model.Scope `json:"scope"`
	Categories []string    `json:"categories,omitempty"`
}

// RouteDecision is the backend chosen for a request: the model, its routing
// port, and the decrypted credential the gateway presents to it.
type RouteDecision struct {
	Model  model.Model `json:"model"`
	Port   int         `json:"port"`
	APIKey string      `json:"api_key"`
	Slots  int         `json:"slots"`
}

// reservationChecker and backendProvider narrow the scheduler and registry
// to what resolution needs.
type reservationChecker interface {
	ActiveAt(ctx context.Context, now time.Time) (*model.Reservation, error)
}

type backendProvider interface {
	Live(ctx context.Context, modelID string) (*model.ContainerSecret, string, error)
}

// AccessService resolves presented credentials to identities and elects the
// backend model serving a request.
type AccessService struct {
	db           DB
	auth         *AuthService
	reservations reservationChecker
	containers   backendProvider
	logger       zerolog.Logger
}

func NewAccessService(db DB, auth *AuthService, reservations reservationChecker, containers backendProvider, logger zerolog.Logger) *AccessService {
	return &AccessService{
		db:           db,
		auth:         auth,
		reservations: reservations,
		containers:   containers,
		logger:       logger,
	}
}

// ResolveToken authenticates a raw bearer token. Revocation, expiry and
// soft-deletion are independent disqualifying conditions folded into one
// predicate; any of them yields ErrUnauthenticated, indistinguishable from an
// unknown token.
func (s *AccessService) ResolveToken(ctx context.Context, raw string) (*Identity, error) {
	var t model.Token
	var u model.User
	err := s.db.QueryRow(ctx,
		`SELECT t.id, t.user_id, t.category_id, t.model_id,
		        u.id, u.provider_id, u.subject, u.email, u.display_name, u.admin, u.created_at, u.updated_at
		 FROM tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.key_hash = $1
		   AND t.revoked_at IS NULL
		   AND t.deleted_at IS NULL
		   AND (t.expires_at IS NULL OR t.expires_at > now())`,
		crypto.GenericHash(raw),
	).Scan(&t.ID, &t.UserID, &t.CategoryID, &t.ModelID,
		&u.ID, &u.ProviderID, &u.Subject, &u.Email, &u.DisplayName, &u.Admin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	s.touchToken(t.ID)

	return &Identity{User: u, TokenID: &t.ID, Scope: t.Scope()}, nil
}

// ResolveSession authenticates a raw session token issued by CompleteLogin.
// Session callers are unrestricted within their granted categories.
func (s *AccessService) ResolveSession(ctx context.Context, raw string) (*Identity, error) {
	user, session, err := s.auth.ValidateSession(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &Identity{
		User:       *user,
		Scope:      model.Scope{Kind: model.ScopeUnrestricted},
		Categories: session.Categories,
	}, nil
}

// ElectModel picks the loaded model serving a category: the category's
// preferred model when loaded, otherwise the most recently used loaded model
// (model id as the final deterministic tie-break). No loaded model yields
// ErrNoEligibleModel.
func (s *AccessService) ElectModel(ctx context.Context, categoryID string) (*model.Model, error) {
	row := s.db.QueryRow(ctx,
		`SELECT m.id, m.name, m.category_id, m.loaded, m.port, m.last_used_at, m.created_at, m.updated_at
		 FROM models m
		 JOIN categories c ON c.id = $1
		 WHERE m.category_id = $1 AND m.loaded = true
		 ORDER BY (m.id = c.preferred_model_id) DESC NULLS LAST,
		          m.last_used_at DESC NULLS LAST,
		          m.id
		 LIMIT 1`, categoryID,
	)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEligibleModel
	}
	if err != nil {
		return nil, fmt.Errorf("elect model for category %s: %w", categoryID, err)
	}
	return &m, nil
}

// ResolveRequest runs the full routing decision for an authenticated caller:
// scope check, model election, exclusive-window check, and backend lookup.
// modelID and categoryID name what the request asked for; at most one is set.
func (s *AccessService) ResolveRequest(ctx context.Context, identity *Identity, modelID, categoryID string, now time.Time) (*RouteDecision, error) {
	target, err := s.electTarget(ctx, identity, modelID, categoryID)
	if err != nil {
		return nil, err
	}

	// An approved or active exclusive window makes every non-owning caller's
	// request fail until the window passes.
	reservation, err := s.reservations.ActiveAt(ctx, now)
	if err != nil {
		return nil, err
	}
	if reservation != nil && reservation.UserID != identity.User.ID {
		return nil, ErrCapacityReserved
	}

	secret, apiKey, err := s.containers.Live(ctx, target.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoEligibleModel
	}
	if err != nil {
		return nil, err
	}
	if target.Port == nil {
		return nil, ErrNoEligibleModel
	}

	s.touchModel(target.ID)

	return &RouteDecision{
		Model:  *target,
		Port:   *target.Port,
		APIKey: apiKey,
		Slots:  secret.Slots,
	}, nil
}

func (s *AccessService) electTarget(ctx context.Context, identity *Identity, modelID, categoryID string) (*model.Model, error) {
	// The credential's scope narrows what the request may name. A
	// model-scoped token pins the model outright; a category-scoped token
	// pins the category; session callers may use any granted category.
	switch identity.Scope.Kind {
	case model.ScopeModel:
		return s.loadedModel(ctx, identity.Scope.ModelID)
	case model.ScopeCategory:
		if modelID != "" {
			m, err := s.loadedModel(ctx, modelID)
			if err != nil {
				return nil, err
			}
			if m.CategoryID == nil || *m.CategoryID != identity.Scope.CategoryID {
				return nil, ErrUnauthenticated
			}
			return m, nil
		}
		return s.ElectModel(ctx, identity.Scope.CategoryID)
	case model.ScopeUnrestricted:
		if modelID != "" {
			m, err := s.loadedModel(ctx, modelID)
			if err != nil {
				return nil, err
			}
			if len(identity.Categories) > 0 && !s.categoryGranted(identity, m.CategoryID) {
				return nil, ErrUnauthenticated
			}
			return m, nil
		}
		if categoryID != "" {
			if len(identity.Categories) > 0 && !s.categoryGrantedID(identity, categoryID) {
				return nil, ErrUnauthenticated
			}
			return s.ElectModel(ctx, categoryID)
		}
		return nil, fmt.Errorf("request names neither model nor category")
	default:
		return nil, fmt.Errorf("invalid scope kind %d", identity.Scope.Kind)
	}
}

func (s *AccessService) categoryGranted(identity *Identity, categoryID *string) bool {
	if categoryID == nil {
		return false
	}
	return s.categoryGrantedID(identity, *categoryID)
}

func (s *AccessService) categoryGrantedID(identity *Identity, categoryID string) bool {
	for _, c := range identity.Categories {
		if c == categoryID {
			return true
		}
	}
	return false
}

func (s *AccessService) loadedModel(ctx context.Context, id string) (*model.Model, error) {
	row := s.db.QueryRow(ctx, `SELECT `+modelColumns+` FROM models WHERE id = $1 AND loaded = true`, id)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoEligibleModel
	}
	if err != nil {
		return nil, fmt.Errorf("get loaded model %s: %w", id, err)
	}
	return &m, nil
}

// touchToken and touchModel update last-used timestamps best-effort in the
// background; request latency never waits on them.
func (s *AccessService) touchToken(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.db.Exec(ctx, `UPDATE tokens SET last_used_at = now() WHERE id = $1`, id); err != nil {
			s.logger.Warn().Err(err).Str("token_id", id).Msg("failed to touch token")
		}
	}()
}

func (s *AccessService) touchModel(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.db.Exec(ctx, `UPDATE models SET last_used_at = now() WHERE id = $1`, id); err != nil {
			s.logger.Warn().Err(err).Str("model_id", id).Msg("failed to touch model")
		}
	}()
}
