package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookieName ties the turns of one conversation together in the
	// logs. History still travels with every request.
	SessionCookieName = "vendorchat_session"
	SessionHeader     = "X-Session-Id"
	sessionMaxAge     = 30 * time.Minute
)

func setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// getSessionID reads the session id from the cookie, then the header.
func getSessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeader)
}

// getOrCreateSessionID returns the caller's session id, minting one when
// absent. The cookie is refreshed and the id echoed in the response header.
func getOrCreateSessionID(r *http.Request, w http.ResponseWriter) string {
	sid := getSessionID(r)
	if sid == "" {
		sid = uuid.NewString()
	}
	setSessionCookie(w, r, sid)
	w.Header().Set(SessionHeader, sid)
	return sid
}
