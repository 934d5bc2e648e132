package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
)

func NewCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SetCSRFCookie issues the double-submit token next to the session cookie.
// It is readable by scripts so the client can echo it in CSRFHeaderName.
func SetCSRFCookie(w http.ResponseWriter, value string, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(AuthCookieMaxAge),
		MaxAge:   int(AuthCookieMaxAge.Seconds()),
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func ClearCSRFCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
