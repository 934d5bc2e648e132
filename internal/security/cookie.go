package security

import (
	"net/http"
	"time"
)

const (
	AuthCookieName   = "app-token"
	AuthCookieMaxAge = 3 * 24 * time.Hour
)

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetAuthCookie issues the session cookie. SameSite=None requires Secure, so
// the cookie is only sent cross-site over TLS.
func SetAuthCookie(w http.ResponseWriter, value string, now time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(AuthCookieMaxAge),
		MaxAge:   int(AuthCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
