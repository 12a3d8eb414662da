package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionCookie is the browser session cookie set by the login callback.
const SessionCookie = "llmgate_session"

// Auth resolves the caller's credential to a core.Identity. Bearer tokens
// (lgt_) and session tokens (lgs_, header or cookie) are both accepted;
// everything else is rejected before reaching a handler.
func Auth(access *core.AccessService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := credentialFrom(r)
			if raw == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing credentials")
				return
			}

			var identity *core.Identity
			var err error
			switch {
			case strings.HasPrefix(raw, "lgs_"):
				identity, err = access.ResolveSession(r.Context(), raw)
			default:
				identity, err = access.ResolveToken(r.Context(), raw)
			}
			if err != nil {
				if errors.Is(err, core.ErrSessionExpired) {
					response.WriteError(w, http.StatusUnauthorized, "session expired")
					return
				}
				if errors.Is(err, core.ErrUnauthenticated) {
					response.WriteError(w, http.StatusUnauthorized, "invalid credentials")
					return
				}
				response.WriteError(w, http.StatusInternalServerError, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func credentialFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// WithIdentity returns a context carrying the resolved identity. Used by
// Auth and by tests that bypass it.
func WithIdentity(ctx context.Context, identity *core.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the authenticated identity, or nil outside Auth.
func GetIdentity(ctx context.Context) *core.Identity {
	identity, _ := ctx.Value(identityKey).(*core.Identity)
	return identity
}

// RequireAdmin rejects non-admin callers. Must sit inside Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())
		if identity == nil || !identity.User.Admin {
			response.WriteError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
