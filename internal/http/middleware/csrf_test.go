package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stackhq/stack-api/internal/security"
)

func noContentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestCSRFRejectsMissingCookie(t *testing.T) {
	h := withPipeline(nil, CSRF(noContentHandler()))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set(security.CSRFHeaderName, "token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf cookie, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "Access denied. Invalid CSRF token." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestCSRFRejectsMissingHeader(t *testing.T) {
	h := withPipeline(nil, CSRF(noContentHandler()))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: "cookie-value"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf header, got %d", rr.Code)
	}
}

func TestCSRFRejectsMismatch(t *testing.T) {
	h := withPipeline(nil, CSRF(noContentHandler()))

	req := httptest.NewRequest(http.MethodDelete, "/me/sessions/1", nil)
	req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: "cookie-value"})
	req.Header.Set(security.CSRFHeaderName, "header-value")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for csrf mismatch, got %d", rr.Code)
	}
}

func TestCSRFAllowsMatchingToken(t *testing.T) {
	h := withPipeline(nil, CSRF(noContentHandler()))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: "match"})
	req.Header.Set(security.CSRFHeaderName, "match")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid csrf token, got %d", rr.Code)
	}
}

func TestCSRFSkipsSafeMethods(t *testing.T) {
	h := withPipeline(nil, CSRF(noContentHandler()))

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/me", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s: expected pass-through, got %d", method, rr.Code)
		}
	}
}

func TestCSRFPathGroup(t *testing.T) {
	cases := map[string]string{
		"/":                               "root",
		"/auth/logout":                    "auth",
		"/admin/users/u1/revoke-sessions": "admin",
		"/me/sessions/1700000000":         "me",
	}
	for input, expected := range cases {
		if got := csrfPathGroup(input); got != expected {
			t.Fatalf("csrfPathGroup(%q)=%q want %q", input, got, expected)
		}
	}
}
