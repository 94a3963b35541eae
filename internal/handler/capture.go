package handler

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hookbin/hookbin/internal/metrics"
	"github.com/hookbin/hookbin/internal/store"
	"github.com/hookbin/hookbin/internal/ws"
)

// Paths that can never resolve to an endpoint slug. These short-circuit
// before any storage lookup.
var reservedPrefixes = []string{"/api/", "/docs", "/health", "/metrics"}

func reservedPath(path string) bool {
	if path == "/" || path == "/api" {
		return true
	}
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Capture handles every request that did not match a reserved route: it
// resolves the first path segment to an endpoint, persists the request
// under the retention cap, notifies the owner's dashboards, and answers
// 201 with the stored id.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if reservedPath(path) {
		h.notFound(w, "Endpoint not found.")
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		h.notFound(w, "Endpoint not found.")
		return
	}
	slug := parts[0]
	subpath := "/"
	if len(parts) > 1 {
		subpath = "/" + strings.Join(parts[1:], "/")
	}

	ep, err := h.Store.GetEndpointBySlug(r.Context(), slug)
	if err != nil {
		h.notFound(w, "Endpoint not found.")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.internalError(w, "failed to read request body")
		return
	}
	defer r.Body.Close()
	body = decompress(r.Header.Get("Content-Encoding"), body)

	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	headersJSON, _ := json.Marshal(headers)

	queryJSON := ""
	if q := r.URL.Query(); len(q) > 0 {
		params := make(map[string]string, len(q))
		for k, v := range q {
			params[k] = v[0]
		}
		raw, _ := json.Marshal(params)
		queryJSON = string(raw)
	}

	snap, err := h.sealSnapshot(r, subpath, string(headersJSON), queryJSON, string(body))
	if err != nil {
		h.Log.Error().Err(err).Msg("encrypt capture payload")
		h.internalError(w, "failed to store request")
		return
	}

	rec, evicted, err := h.Store.Capture(r.Context(), ep.ID, snap)
	if err != nil {
		h.Log.Error().Err(err).Str("endpoint", ep.Slug).Msg("capture failed")
		h.internalError(w, "failed to store request")
		return
	}
	metrics.CapturesTotal.Inc()
	metrics.EvictedTotal.Add(float64(evicted))

	// Notification is best effort and runs outside the capture
	// transaction; a fanout problem never fails the capture.
	if owner, err := h.Store.GetSessionByID(r.Context(), ep.SessionID); err == nil {
		n := h.Registry.Broadcast(owner.Slug, ws.Event{Type: "new_webhook", Webhook: rec})
		metrics.BroadcastsTotal.Add(float64(n))
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"id": rec.ID})
}

// sealSnapshot encrypts the sensitive payload fields before they reach the
// store. Headers are always present; query params and body are kept empty
// when the request carried none.
func (h *Handler) sealSnapshot(r *http.Request, subpath, headersJSON, queryJSON, body string) (*store.RequestSnapshot, error) {
	sealedHeaders, err := h.Codec.Encrypt(headersJSON)
	if err != nil {
		return nil, err
	}
	snap := &store.RequestSnapshot{
		Method:        r.Method,
		Pathname:      subpath,
		IP:            clientIP(r),
		StatusCode:    http.StatusCreated,
		ContentType:   r.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		Headers:       sealedHeaders,
	}
	if queryJSON != "" {
		if snap.QueryParams, err = h.Codec.Encrypt(queryJSON); err != nil {
			return nil, err
		}
	}
	if body != "" {
		if snap.Body, err = h.Codec.Encrypt(body); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// decompress inflates gzip/deflate bodies for storage; on any error the
// raw bytes are kept as-is.
func decompress(encoding string, body []byte) []byte {
	switch encoding {
	case "gzip":
		if gr, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
			if out, err := io.ReadAll(gr); err == nil {
				body = out
			}
			gr.Close()
		}
	case "deflate":
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			if out, err := io.ReadAll(zr); err == nil {
				body = out
			}
			zr.Close()
		}
	}
	return body
}
