package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/store"
)

func (h *Handler) unauthorized(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Unauthorized"})
}

func (h *Handler) endpointURL(slug string) string {
	return h.BaseURL + "/" + slug
}

type endpointResponse struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	URL          string    `json:"url"`
	RequestCount int       `json:"requestCount,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreateEndpoint mints a new capture target owned by the caller's session.
func (h *Handler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	var ep *store.Endpoint
	var err error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		ep, err = h.Store.CreateEndpoint(r.Context(), sess.ID, randomSlug(2))
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("create endpoint")
		h.internalError(w, "failed to create endpoint")
		return
	}

	h.writeJSON(w, http.StatusCreated, endpointResponse{
		ID:        ep.ID,
		Slug:      ep.Slug,
		URL:       h.endpointURL(ep.Slug),
		CreatedAt: ep.CreatedAt,
	})
}

// ListEndpoints returns the caller's endpoints with their request counts.
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	eps, err := h.Store.ListEndpoints(r.Context(), sess.ID)
	if err != nil {
		h.Log.Error().Err(err).Msg("list endpoints")
		h.internalError(w, "failed to list endpoints")
		return
	}

	out := make([]endpointResponse, 0, len(eps))
	for _, ep := range eps {
		out = append(out, endpointResponse{
			ID:           ep.ID,
			Slug:         ep.Slug,
			URL:          h.endpointURL(ep.Slug),
			RequestCount: ep.RequestCount,
			CreatedAt:    ep.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"endpoints": out})
}

type endpointDetailResponse struct {
	ID         string                  `json:"id"`
	Slug       string                  `json:"slug"`
	URL        string                  `json:"url"`
	CreatedAt  time.Time               `json:"createdAt"`
	Webhooks   []*store.RequestSummary `json:"webhooks"`
	NextCursor *string                 `json:"nextCursor"`
}

// GetEndpoint returns endpoint details plus a page of request summaries.
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	limit, cursor, err := pageParams(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	sess, ok := h.currentSession(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	ep, err := h.Store.GetEndpointBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil || ep.SessionID != sess.ID {
		h.notFound(w, "Endpoint not found.")
		return
	}

	items, next, err := h.Store.ListRequests(r.Context(), store.RequestFilter{EndpointID: ep.ID}, limit, cursor)
	if errors.Is(err, store.ErrInvalidLimit) {
		h.badRequest(w, err.Error())
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("list requests")
		h.internalError(w, "failed to list requests")
		return
	}
	if items == nil {
		items = []*store.RequestSummary{}
	}

	resp := endpointDetailResponse{
		ID:        ep.ID,
		Slug:      ep.Slug,
		URL:       h.endpointURL(ep.Slug),
		CreatedAt: ep.CreatedAt,
		Webhooks:  items,
	}
	if next != "" {
		resp.NextCursor = &next
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteEndpoint removes one of the caller's endpoints; captured requests
// go with it via the cascade.
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(r)
	if !ok {
		h.unauthorized(w)
		return
	}

	err := h.Store.DeleteEndpoint(r.Context(), chi.URLParam(r, "id"), sess.ID)
	if errors.Is(err, store.ErrNotFound) {
		h.notFound(w, "Endpoint not found.")
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("delete endpoint")
		h.internalError(w, "failed to delete endpoint")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
