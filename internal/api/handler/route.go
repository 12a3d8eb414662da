package handler

import (
	"net/http"
	"time"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

// Route exposes the proxy-facing resolve/complete pair. A proxied request
// resolves a backend, holds the returned slot while the upstream call runs,
// then completes to release the slot and write the usage entry.
//
// The pair is not pinned together: Complete releases a slot for whatever
// model the caller names. The proxy process is the only intended caller and
// is trusted to pair its own resolve/complete calls; the slot counter clamps
// at zero, so the damage a misbehaving caller can do is bounded to freeing
// capacity early.
type Route struct {
	access     *core.AccessService
	containers *core.ContainerService
	usage      *core.UsageService
}

func NewRoute(access *core.AccessService, containers *core.ContainerService, usage *core.UsageService) *Route {
	return &Route{access: access, containers: containers, usage: usage}
}

func (h *Route) Resolve(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	var req request.ResolveRoute
	if r.ContentLength != 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	decision, err := h.access.ResolveRequest(r.Context(), identity, req.ModelID, req.CategoryID, time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.containers.AdmitRequest(r.Context(), decision.Model.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, decision)
}

func (h *Route) Complete(w http.ResponseWriter, r *http.Request) {
	identity := mw.GetIdentity(r.Context())
	if identity == nil {
		response.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	var req request.CompleteRoute
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Release before recording so the slot frees even if the insert fails.
	if err := h.containers.ReleaseRequest(r.Context(), req.ModelID); err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := h.usage.Record(r.Context(), core.RecordInput{
		TokenID:          identity.TokenID,
		UserID:           identity.User.ID,
		ModelID:          req.ModelID,
		CategoryID:       req.CategoryID,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		LatencyMs:        req.LatencyMs,
		QueueMs:          req.QueueMs,
		Succeeded:        req.Succeeded,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, entry)
}
