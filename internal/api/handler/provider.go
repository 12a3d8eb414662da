package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type Provider struct {
	svc    *core.ProviderService
	grants *core.GrantService
}

func NewProvider(svc *core.ProviderService, grants *core.GrantService) *Provider {
	return &Provider{svc: svc, grants: grants}
}

func (h *Provider) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateProvider
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pkce := true
	if req.PKCE != nil {
		pkce = *req.PKCE
	}

	p, err := h.svc.Create(r.Context(), req.Name, req.Issuer, req.ClientID, req.ClientSecret, req.Scopes, pkce)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, p)
}

func (h *Provider) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, providers)
}

func (h *Provider) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, p)
}

func (h *Provider) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetProviderEnabled
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetEnabled(r.Context(), id, req.Enabled); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Provider) ListGrants(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	grants, err := h.grants.ListByProvider(r.Context(), id)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, grants)
}

func (h *Provider) CreateGrant(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.CreateGrant
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.grants.Create(r.Context(), id, req.GroupClaim, req.GroupValue, req.CategoryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, g)
}

func (h *Provider) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "grantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.grants.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
