package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	mw "github.com/edvin/llmgate/internal/api/middleware"
	"github.com/edvin/llmgate/internal/core"
	"github.com/edvin/llmgate/internal/model"
	"github.com/go-chi/chi/v5"
)

// newRequest creates a new HTTP request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withChiURLParam adds a chi URL parameter to the request context.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeErrorResponse parses the JSON error response body into a map.
func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

// withIdentity injects an authenticated identity into the request context.
func withIdentity(r *http.Request, identity *core.Identity) *http.Request {
	return r.WithContext(mw.WithIdentity(r.Context(), identity))
}

// withUser injects a plain authenticated user.
func withUser(r *http.Request, id string, admin bool) *http.Request {
	return withIdentity(r, &core.Identity{
		User:  model.User{ID: id, Admin: admin},
		Scope: model.Scope{},
	})
}

const validID = "test-id-1"
