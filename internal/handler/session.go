package handler

import (
	"net/http"
	"time"

	"github.com/hookbin/hookbin/internal/session"
	"github.com/hookbin/hookbin/internal/store"
)

type sessionData struct {
	Slug            string    `json:"slug"`
	SharePin        string    `json:"share_pin"`
	IsPendingDelete bool      `json:"is_pending_delete"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type initResponse struct {
	SlugData sessionData `json:"slugData"`
	Role     string      `json:"role"`
}

// InitSession resolves the caller's session from the signed cookie, or
// creates a fresh one (with a new cookie) when the cookie is missing,
// invalid, or points at an expired row.
func (h *Handler) InitSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.currentSession(r); ok {
		h.writeJSON(w, http.StatusOK, initResponse{SlugData: toSessionData(sess), Role: "owner"})
		return
	}

	var sess *store.Session
	var err error
	for attempt := 0; attempt < slugAttempts; attempt++ {
		sess, err = h.Store.CreateSession(r.Context(), randomSlug(3), randomPin(), h.SessionTTL)
		if err == nil || !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("create session")
		h.internalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    h.Signer.Sign(sess.Slug),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})

	h.writeJSON(w, http.StatusOK, initResponse{SlugData: toSessionData(sess), Role: "owner"})
}

func toSessionData(sess *store.Session) sessionData {
	return sessionData{
		Slug:            sess.Slug,
		SharePin:        sess.SharePin,
		IsPendingDelete: sess.IsPendingDelete,
		CreatedAt:       sess.CreatedAt,
		ExpiresAt:       sess.ExpiresAt,
	}
}
