package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/hookbin/hookbin/internal/store"
)

type webhookListResponse struct {
	Webhooks   []*store.RequestSummary `json:"webhooks"`
	NextCursor *string                 `json:"nextCursor"`
	Message    string                  `json:"message,omitempty"`
}

// pageParams parses limit/cursor query parameters. A malformed limit is a
// validation error; range checking happens in the store.
func pageParams(r *http.Request) (int, string, error) {
	limit := store.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, "", store.ErrInvalidLimit
		}
		limit = n
	}
	return limit, r.URL.Query().Get("cursor"), nil
}

func listResponse(items []*store.RequestSummary, next string) webhookListResponse {
	if items == nil {
		items = []*store.RequestSummary{}
	}
	resp := webhookListResponse{Webhooks: items}
	if next != "" {
		resp.NextCursor = &next
	}
	return resp
}

// ListWebhooks pages through captured requests, scoped either to one of
// the caller's endpoints or to everything the caller's session owns.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	limit, cursor, err := pageParams(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	sess, ok := h.currentSession(r)
	if !ok {
		// Existence is hidden from unauthenticated callers.
		h.writeJSON(w, http.StatusNotFound, webhookListResponse{
			Webhooks: []*store.RequestSummary{},
			Message:  "Endpoint not found.",
		})
		return
	}

	filter := store.RequestFilter{SessionID: sess.ID}
	if slug := r.URL.Query().Get("endpoint"); slug != "" {
		ep, err := h.Store.GetEndpointBySlug(r.Context(), slug)
		if err != nil || ep.SessionID != sess.ID {
			h.writeJSON(w, http.StatusNotFound, webhookListResponse{
				Webhooks: []*store.RequestSummary{},
				Message:  "Endpoint not found.",
			})
			return
		}
		filter = store.RequestFilter{EndpointID: ep.ID}
	}

	items, next, err := h.Store.ListRequests(r.Context(), filter, limit, cursor)
	if errors.Is(err, store.ErrInvalidLimit) {
		h.badRequest(w, err.Error())
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("list requests")
		h.internalError(w, "failed to list requests")
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse(items, next))
}

type webhookResponse struct {
	ID            string            `json:"id"`
	EndpointID    string            `json:"endpointId"`
	Method        string            `json:"method"`
	Pathname      string            `json:"pathname"`
	IP            string            `json:"ip"`
	StatusCode    int               `json:"statusCode"`
	ContentType   string            `json:"contentType,omitempty"`
	ContentLength int64             `json:"contentLength"`
	QueryParams   map[string]string `json:"queryParams"`
	Headers       map[string]string `json:"headers"`
	Body          *string           `json:"body"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// GetWebhook returns one captured request with its payload fields
// decrypted. Corrupt ciphertext is fatal to the read.
func (h *Handler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.currentSession(r)
	if !ok {
		h.notFound(w, "Webhook not found.")
		return
	}

	rec, err := h.Store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.notFound(w, "Webhook not found.")
		return
	}
	ep, err := h.Store.GetEndpointByID(r.Context(), rec.EndpointID)
	if err != nil || ep.SessionID != sess.ID {
		h.notFound(w, "Webhook not found.")
		return
	}

	resp := webhookResponse{
		ID:            rec.ID,
		EndpointID:    rec.EndpointID,
		Method:        rec.Method,
		Pathname:      rec.Pathname,
		IP:            rec.IP,
		StatusCode:    rec.StatusCode,
		ContentType:   rec.ContentType,
		ContentLength: rec.ContentLength,
		CreatedAt:     rec.CreatedAt,
	}

	headersJSON, err := h.Codec.Decrypt(rec.Headers)
	if err == nil {
		err = json.Unmarshal([]byte(headersJSON), &resp.Headers)
	}
	if err == nil && rec.QueryParams != "" {
		var queryJSON string
		if queryJSON, err = h.Codec.Decrypt(rec.QueryParams); err == nil {
			err = json.Unmarshal([]byte(queryJSON), &resp.QueryParams)
		}
	}
	if err == nil && rec.Body != "" {
		var body string
		if body, err = h.Codec.Decrypt(rec.Body); err == nil {
			resp.Body = &body
		}
	}
	if err != nil {
		h.Log.Error().Err(err).Str("request", rec.ID).Msg("decrypt stored request")
		h.internalError(w, "failed to decrypt stored request")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}
