// Package handler implements the HTTP surface: the catch-all capture
// route, the dashboard JSON API, the session bootstrap, and the realtime
// websocket upgrade.
package handler

import (
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/hookbin/hookbin/internal/crypto"
	"github.com/hookbin/hookbin/internal/session"
	"github.com/hookbin/hookbin/internal/store"
	"github.com/hookbin/hookbin/internal/ws"
)

type Handler struct {
	Store      store.Store
	Codec      *crypto.Codec
	Signer     *session.Signer
	Registry   *ws.Registry
	BaseURL    string
	SessionTTL time.Duration
	Log        zerolog.Logger
}

func New(s store.Store, codec *crypto.Codec, signer *session.Signer, registry *ws.Registry, baseURL string, sessionTTL time.Duration, log zerolog.Logger) *Handler {
	return &Handler{
		Store:      s,
		Codec:      codec,
		Signer:     signer,
		Registry:   registry,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SessionTTL: sessionTTL,
		Log:        log,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error().Err(err).Msg("write response")
	}
}

func (h *Handler) notFound(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusNotFound, messageResponse{Message: msg})
}

// NotFound answers unmatched API routes with the same structured body the
// rest of the surface uses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.notFound(w, "Not found.")
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, messageResponse{Message: msg})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msg})
}

// currentSession resolves the signed cookie to a live session row. A
// missing, invalid, or expired session yields (nil, false), never an error.
func (h *Handler) currentSession(r *http.Request) (*store.Session, bool) {
	slug, ok := h.Signer.Resolve(r)
	if !ok {
		return nil, false
	}
	sess, err := h.Store.GetSessionBySlug(r.Context(), slug)
	if err != nil {
		return nil, false
	}
	return sess, true
}

// clientIP prefers proxy headers over RemoteAddr since the capture surface
// normally sits behind a load balancer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if rip := r.Header.Get("X-Real-Ip"); rip != "" {
		return rip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
