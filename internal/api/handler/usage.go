package handler

import (
	"net/http"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/api/request"
	"github.com/edvin/llmgate/internal/api/response"
	"github.com/edvin/llmgate/internal/core"
)

type Usage struct {
	svc *core.UsageService
}

func NewUsage(svc *core.UsageService) *Usage {
	return &Usage{svc: svc}
}

// scopedFilter pins non-admin callers to their own usage regardless of the
// user_id they asked for.
func scopedFilter(r *http.Request) core.UsageFilter {
	filter := request.ParseUsageFilter(r)
	identity := mw.GetIdentity(r.Context())
	if identity != nil && !identity.User.Admin {
		filter.UserID = identity.User.ID
	}
	return filter
}

func (h *Usage) List(w http.ResponseWriter, r *http.Request) {
	filter := scopedFilter(r)
	p := request.ParsePagination(r)

	entries, hasMore, err := h.svc.List(r.Context(), filter, p.Limit, p.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(entries) > 0 {
		nextCursor = entries[len(entries)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, entries, nextCursor, hasMore)
}

func (h *Usage) Totals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.svc.Totals(r.Context(), scopedFilter(r))
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, totals)
}
