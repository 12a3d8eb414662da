package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
	"github.com/edvin/llmgate/internal/model"
)

type Model struct {
	svc        *core.ModelService
	containers *core.ContainerService
}

func NewModel(svc *core.ModelService, containers *core.ContainerService) *Model {
	return &Model{svc: svc, containers: containers}
}

func (h *Model) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateModel
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.Create(r.Context(), req.Name, req.CategoryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, m)
}

func (h *Model) List(w http.ResponseWriter, r *http.Request) {
	models, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, models)
}

func (h *Model) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, m)
}

func (h *Model) SetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetModelCategory
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetCategory(r.Context(), id, req.CategoryID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Model) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// startedContainer carries the plaintext backend key. It exists only in this
// response; afterwards the key is recoverable solely by the gateway.
type startedContainer struct {
	*model.ContainerSecret
	APIKey string `json:"api_key"`
}

func (h *Model) ContainerStart(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ContainerStart
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret, rawKey, err := h.containers.RegisterStart(r.Context(), id, req.Port, req.Slots)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, startedContainer{ContainerSecret: secret, APIKey: rawKey})
}

func (h *Model) ContainerStop(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.containers.RegisterStop(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Model) ListContainers(w http.ResponseWriter, r *http.Request) {
	secrets, err := h.containers.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, secrets)
}
