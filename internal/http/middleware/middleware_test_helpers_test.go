package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
	"github.com/stackhq/stack-api/internal/security"
	"github.com/stackhq/stack-api/internal/service"
)

const testCookieSecret = "abcdefghijklmnopqrstuvwxyz123456"

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestSessions(store service.SessionStore) *service.SessionService {
	return service.NewSessionService(store, security.NewCookieCodec(testCookieSecret), time.Second)
}

// withPipeline mounts h behind the helper and request id middleware the way
// the router does.
func withPipeline(auth reqctx.AuthProvider, h http.Handler) http.Handler {
	return Helpers(auth, discardLogger)(RequestID(h))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func issueCookie(t *testing.T, sessions *service.SessionService, userID string, perms ...domain.Permission) *http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	if _, err := sessions.Issue(httptest.NewRequest(http.MethodGet, "/", nil).Context(), rr, userID, perms); err != nil {
		t.Fatalf("issue session: %v", err)
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == security.AuthCookieName {
			return c
		}
	}
	t.Fatal("no auth cookie issued")
	return nil
}

func perform(h http.Handler, method, target, remoteAddr string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return body.Error
}

func cookieCleared(rr *httptest.ResponseRecorder) bool {
	for _, v := range rr.Header().Values("Set-Cookie") {
		if strings.HasPrefix(v, security.AuthCookieName+"=;") && strings.Contains(v, "Max-Age=0") {
			return true
		}
	}
	return false
}
