package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type Category struct {
	svc *core.CategoryService
}

func NewCategory(svc *core.CategoryService) *Category {
	return &Category{svc: svc}
}

func (h *Category) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateCategory
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.Create(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

func (h *Category) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, categories)
}

func (h *Category) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

func (h *Category) SetPreferredModel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.SetPreferredModel
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.SetPreferredModel(r.Context(), id, req.ModelID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Category) Delete(w http.ResponseWriter, r *http.Request) {
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
