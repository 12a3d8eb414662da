package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
	"github.com/edvin/llmgate/internal/model"
)

type Token struct {
	svc *core.TokenService
}

func NewToken(svc *core.TokenService) *Token {
	return &Token{svc: svc}
}

// mintedToken is the one response that carries the raw token value.
type mintedToken struct {
	*model.Token
	Raw string `json:"token"`
}

func (h *Token) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateToken
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CategoryID != nil && req.ModelID != nil {
		response.WriteError(w, http.StatusBadRequest, "token may be scoped to a category or a model, not both")
		return
	}

	scope := model.Scope{Kind: model.ScopeUnrestricted}
	if req.CategoryID != nil {
		scope = model.Scope{Kind: model.ScopeCategory, CategoryID: *req.CategoryID}
	}
	if req.ModelID != nil {
		scope = model.Scope{Kind: model.ScopeModel, ModelID: *req.ModelID}
	}

	identity := mw.GetIdentity(r.Context())
	token, raw, err := h.svc.Mint(r.Context(), identity.User.ID, req.Name, scope, req.ExpiresAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, mintedToken{Token: token, Raw: raw})
}

func (h *Token) List(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	tokens, err := h.svc.ListByUser(r.Context(), identity.User.ID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Token) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !h.mayManage(r, token) {
		response.WriteError(w, http.StatusNotFound, "token not found")
		return
	}

	response.WriteJSON(w, http.StatusOK, token)
}

func (h *Token) Revoke(w http.ResponseWriter, r *http.Request) {
	token, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := h.svc.Revoke(r.Context(), token.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Token) Delete(w http.ResponseWriter, r *http.Request) {
	token, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := h.svc.SoftDelete(r.Context(), token.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the token from the URL and checks the caller may manage it.
// Foreign tokens read as not found rather than forbidden.
func (h *Token) owned(w http.ResponseWriter, r *http.Request) (*model.Token, bool) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	token, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if !h.mayManage(r, token) {
		response.WriteError(w, http.StatusNotFound, "token not found")
		return nil, false
	}
	return token, true
}

func (h *Token) mayManage(r *http.Request, token *model.Token) bool {
	identity := mw.GetIdentity(r.Context())
	return identity.User.Admin || token.UserID == identity.User.ID
}
