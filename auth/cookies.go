// Package auth manages the session cookie that carries the application
// session credential to browser clients.
package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie name for the session token
const SessionCookieName = "session"

// Cookies sets and clears the session cookie
type Cookies struct {
	secure bool
	now    func() time.Time
}

// NewCookies creates cookie helpers. secure marks cookies Secure and should
// follow whether the server terminates TLS.
func NewCookies(secure bool) *Cookies {
	return &Cookies{secure: secure, now: time.Now}
}

// SetSession stores the session token in an HttpOnly cookie expiring with the token
func (c *Cookies) SetSession(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(c.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSession expires the session cookie
func (c *Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
