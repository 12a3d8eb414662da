package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type Auth struct {
	svc    *core.AuthService
	secure bool
}

func NewAuth(svc *core.AuthService, secureCookies bool) *Auth {
	return &Auth{svc: svc, secure: secureCookies}
}

// Login starts the OIDC handshake and redirects the browser to the provider.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	providerID, err := request.RequireID(chi.URLParam(r, "provider"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := h.svc.BeginLogin(r.Context(), providerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback consumes the provider redirect, issues a session and sets the
// session cookie.
func (h *Auth) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		response.WriteError(w, http.StatusBadRequest, "missing state or code")
		return
	}

	session, raw, err := h.svc.CompleteLogin(r.Context(), state, code)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    raw,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	response.WriteJSON(w, http.StatusOK, session)
}

// Logout clears the session server-side and expires the cookie.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(mw.SessionCookie); err == nil {
		if err := h.svc.Logout(r.Context(), c.Value); err != nil {
			response.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
