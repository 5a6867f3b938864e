package handlers

import (
	"net/http"

	"branchpost/pkg/common"

	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the caller's session
const SessionCookieName = "session_id"

// sessionID returns the caller's session, minting one and setting the cookie
// when the request carries none.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := common.GetSessionID(r.Context()); ok && id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
