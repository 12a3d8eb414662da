package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type Reservation struct {
	svc *core.ReservationService
}

func NewReservation(svc *core.ReservationService) *Reservation {
	return &Reservation{svc: svc}
}

func (h *Reservation) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateReservation
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := mw.GetIdentity(r.Context())
	res, err := h.svc.Create(r.Context(), identity.User.ID, req.StartsAt, req.EndsAt, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, res)
}

func (h *Reservation) List(w http.ResponseWriter, r *http.Request) {
	p := request.ParsePagination(r)
	status := r.URL.Query().Get("status")

	reservations, hasMore, err := h.svc.List(r.Context(), status, p.Limit, p.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	nextCursor := ""
	if hasMore && len(reservations) > 0 {
		nextCursor = reservations[len(reservations)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, reservations, nextCursor, hasMore)
}

func (h *Reservation) ListMine(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	reservations, err := h.svc.ListByUser(r.Context(), identity.User.ID)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, reservations)
}

func (h *Reservation) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	identity := mw.GetIdentity(r.Context())
	if !identity.User.Admin && res.UserID != identity.User.ID {
		response.WriteError(w, http.StatusNotFound, "reservation not found")
		return
	}

	response.WriteJSON(w, http.StatusOK, res)
}

func (h *Reservation) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Approve)
}

func (h *Reservation) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.svc.Reject)
}

func (h *Reservation) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, adminID string, note *string) error) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The note body is optional.
	var req request.ReservationDecision
	if r.ContentLength != 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	identity := mw.GetIdentity(r.Context())
	if err := fn(r.Context(), id, identity.User.ID, req.Note); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Reservation) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := mw.GetIdentity(r.Context())
	if err := h.svc.Cancel(r.Context(), id, identity.User.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Reservation) Release(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.ReservationDecision
	if r.ContentLength != 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.svc.Release(r.Context(), id, req.Note); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
