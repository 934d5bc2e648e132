package router

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/health"
	"github.com/stackhq/stack-api/internal/http/handler"
	"github.com/stackhq/stack-api/internal/http/middleware"
	"github.com/stackhq/stack-api/internal/jobs"
	"github.com/stackhq/stack-api/internal/ratelimit"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/security"
	"github.com/stackhq/stack-api/internal/service"
)

const testAdminKey = "admin-key-for-tests"

type unhealthyChecker struct{}

func (unhealthyChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "db", Healthy: false, Error: "db down"}
}

type routerFixture struct {
	db     *gorm.DB
	redis  *miniredis.Miniredis
	users  *service.UserService
	deps   Dependencies
	router http.Handler
}

func newRouterFixture(t *testing.T, enforced bool, checkers ...health.Checker) *routerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Job{}, &domain.JobQueue{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := service.NewUserService(repository.NewUserRepository(db), service.NewRedisJSONCache(client, ""), time.Minute)
	sessions := service.NewSessionService(service.NewRedisSessionStore(client, ""), security.NewCookieCodec("abcdefghijklmnopqrstuvwxyz123456"), time.Second)
	registry, err := jobs.NewDefaultRegistry(db, discard)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	queue := jobs.NewQueue(db, registry)
	bank := ratelimit.NewMemoryBank(enforced)

	if len(checkers) == 0 {
		checkers = []health.Checker{health.DBChecker{DB: db}, health.RedisChecker{Client: client}}
	}

	deps := Dependencies{
		Sessions:         sessions,
		Authenticator:    middleware.NewAuthenticator(service.NewRBACService(), bank, testAdminKey),
		Limiters:         bank,
		AuthHandler:      handler.NewAuthHandler(users, sessions, queue),
		UserHandler:      handler.NewUserHandler(users, sessions),
		AdminHandler:     handler.NewAdminHandler(users, sessions, queue),
		HealthHandler:    handler.NewHealthHandler(health.NewRunner(time.Second, 0, checkers...)),
		AppEnv:           "test",
		CORSOrigins:      []string{"http://localhost"},
		RequestBodyLimit: 1 << 20,
		Logger:           discard,
	}
	return &routerFixture{db: db, redis: mr, users: users, deps: deps, router: NewRouter(deps)}
}

func (f *routerFixture) createUser(t *testing.T, email string, perms ...domain.Permission) {
	t.Helper()
	if _, err := f.users.Create(context.Background(), email, "Test", "correct-horse", perms); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

// login returns the session and csrf cookies.
func (f *routerFixture) login(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	rr := perform(f.router, http.MethodPost, "/auth/login", nil, nil, fmt.Sprintf(`{"email":%q,"password":"correct-horse"}`, email))
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d body=%s", email, rr.Code, rr.Body.String())
	}
	var cookies []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == security.AuthCookieName || c.Name == security.CSRFCookieName {
			cookies = append(cookies, c)
		}
	}
	if len(cookies) != 2 {
		t.Fatalf("login %s: expected auth and csrf cookies, got %v", email, cookies)
	}
	return cookies
}

func authCookieOnly(cookies []*http.Cookie) []*http.Cookie {
	for _, c := range cookies {
		if c.Name == security.AuthCookieName {
			return []*http.Cookie{c}
		}
	}
	return nil
}

// perform echoes the csrf cookie in the header unless headers sets it, the way
// a browser client would.
func perform(r http.Handler, method, target string, headers map[string]string, cookies []*http.Cookie, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
		if c.Name == security.CSRFCookieName {
			req.Header.Set(security.CSRFHeaderName, c.Value)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func cookieCleared(rr *httptest.ResponseRecorder) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == security.AuthCookieName && c.MaxAge < 0 {
			return true
		}
	}
	return false
}

func TestRouterHealth(t *testing.T) {
	t.Run("live and ready", func(t *testing.T) {
		f := newRouterFixture(t, false)
		if rr := perform(f.router, http.MethodGet, "/health/live", nil, nil, ""); rr.Code != http.StatusOK {
			t.Fatalf("expected live 200, got %d", rr.Code)
		}
		rr := perform(f.router, http.MethodGet, "/health/ready", nil, nil, "")
		if rr.Code != http.StatusOK || decode(t, rr)["status"] != "ready" {
			t.Fatalf("expected ready, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("unready dependency", func(t *testing.T) {
		f := newRouterFixture(t, false, unhealthyChecker{})
		rr := perform(f.router, http.MethodGet, "/health/ready", nil, nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "db down") {
			t.Fatalf("expected check detail in body, got %s", rr.Body.String())
		}
	})
}

func TestRouterNotFound(t *testing.T) {
	f := newRouterFixture(t, false)
	rr := perform(f.router, http.MethodGet, "/nope", nil, nil, "")
	if rr.Code != http.StatusNotFound || decode(t, rr)["error"] != "Not Found" {
		t.Fatalf("expected 404 Not Found, got %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatal("expected request id on unmatched routes")
	}
}

func TestRouterLoginSessionLifecycle(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "member@example.com")

	rr := perform(f.router, http.MethodPost, "/auth/login", nil, nil, `{"email":"member@example.com","password":"wrong"}`)
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["error"] != "Invalid email or password." {
		t.Fatalf("expected invalid credentials, got %d %s", rr.Code, rr.Body.String())
	}

	cookie := f.login(t, "member@example.com")

	rr = perform(f.router, http.MethodGet, "/me", nil, cookie, "")
	if rr.Code != http.StatusOK || decode(t, rr)["email"] != "member@example.com" {
		t.Fatalf("expected profile, got %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Fatalf("profile leaked password hash: %s", rr.Body.String())
	}

	rr = perform(f.router, http.MethodGet, "/me/sessions", nil, cookie, "")
	sessions, _ := decode(t, rr)["sessions"].([]any)
	if rr.Code != http.StatusOK || len(sessions) != 1 {
		t.Fatalf("expected one session, got %d %s", rr.Code, rr.Body.String())
	}
	if current, _ := sessions[0].(map[string]any)["is_current"].(bool); !current {
		t.Fatalf("expected current session flagged, got %v", sessions[0])
	}

	rr = perform(f.router, http.MethodPost, "/auth/logout", nil, cookie, "")
	if rr.Code != http.StatusOK || !cookieCleared(rr) {
		t.Fatalf("expected logout to clear cookie, got %d", rr.Code)
	}

	rr = perform(f.router, http.MethodGet, "/me", nil, cookie, "")
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["error"] != "Access denied. Cookie is no longer valid." {
		t.Fatalf("expected revoked cookie to be rejected, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterRevokeCurrentSessionByIssueTime(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "member@example.com")
	cookie := f.login(t, "member@example.com")

	rr := perform(f.router, http.MethodGet, "/me/sessions", nil, cookie, "")
	sessions, _ := decode(t, rr)["sessions"].([]any)
	iat := int64(sessions[0].(map[string]any)["iat"].(float64))

	rr = perform(f.router, http.MethodDelete, "/me/sessions/not-a-number", nil, cookie, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed iat, got %d", rr.Code)
	}
	rr = perform(f.router, http.MethodDelete, fmt.Sprintf("/me/sessions/%d", iat), nil, cookie, "")
	if rr.Code != http.StatusOK || !cookieCleared(rr) {
		t.Fatalf("expected current session revoked with cookie cleared, got %d", rr.Code)
	}
}

func TestRouterLogoutAll(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "member@example.com")
	cookie := f.login(t, "member@example.com")

	rr := perform(f.router, http.MethodPost, "/auth/logout-all", nil, cookie, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	u, err := f.users.FindByEmail(context.Background(), "member@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if f.redis.Exists("auth:" + u.ID) {
		t.Fatal("expected the session set to be deleted")
	}
	if rr := perform(f.router, http.MethodGet, "/me", nil, cookie, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected cookie rejected after logout-all, got %d", rr.Code)
	}
}

func TestRouterAdminGate(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "admin@example.com", domain.PermissionAdmin)
	f.createUser(t, "member@example.com")
	admin := f.login(t, "admin@example.com")
	member := f.login(t, "member@example.com")

	rr := perform(f.router, http.MethodGet, "/admin/users", nil, member, "")
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["error"] != "Access denied. Not enough permissions." {
		t.Fatalf("expected member denied, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(f.router, http.MethodGet, "/admin/users?page=1&page_size=1", nil, admin, "")
	body := decode(t, rr)
	if rr.Code != http.StatusOK || body["total"].(float64) != 2 || len(body["items"].([]any)) != 1 {
		t.Fatalf("expected paged users, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(f.router, http.MethodGet, "/admin/users?apiKey="+testAdminKey, nil, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin key bypass on users list, got %d", rr.Code)
	}
	rr = perform(f.router, http.MethodPost, "/admin/jobs?apiKey="+testAdminKey, nil, nil, `{"name":"passwordResetEmail"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected admin key not accepted on jobs, got %d", rr.Code)
	}
}

func TestRouterAdminJobsAndRevoke(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "admin@example.com", domain.PermissionAdmin)
	f.createUser(t, "member@example.com")
	admin := f.login(t, "admin@example.com")
	member := f.login(t, "member@example.com")

	rr := perform(f.router, http.MethodPost, "/admin/jobs", nil, admin, `{"name":"passwordResetEmail","payload":{"email":"a@b.c"},"delaySeconds":60}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected job accepted, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(f.router, http.MethodPost, "/admin/jobs", nil, admin, `{"name":"nope"}`)
	if rr.Code != http.StatusBadRequest || decode(t, rr)["error"] != "Unknown job." {
		t.Fatalf("expected unknown job rejected, got %d %s", rr.Code, rr.Body.String())
	}

	memberUser, err := f.users.FindByEmail(context.Background(), "member@example.com")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	rr = perform(f.router, http.MethodPost, "/admin/users/"+memberUser.ID+"/revoke-sessions", nil, admin, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected revoke 200, got %d %s", rr.Code, rr.Body.String())
	}
	if rr := perform(f.router, http.MethodGet, "/me", nil, member, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected member logged out everywhere, got %d", rr.Code)
	}
	rr = perform(f.router, http.MethodPost, "/admin/users/missing/revoke-sessions", nil, admin, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rr.Code)
	}
}

func TestRouterForgotPassword(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "member@example.com")

	rr := perform(f.router, http.MethodPost, "/auth/forgot-password/Member@Example.com", nil, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(f.router, http.MethodPost, "/auth/forgot-password/ghost@example.com", nil, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected unknown email to look the same, got %d", rr.Code)
	}
	var queued int64
	f.db.Model(&domain.Job{}).Where("task_identifier = ?", jobs.TaskPasswordResetEmail).Count(&queued)
	if queued != 1 {
		t.Fatalf("expected exactly one reset job, got %d", queued)
	}

	rr = perform(f.router, http.MethodPost, "/auth/forgot-password/", nil, nil, "")
	if rr.Code != http.StatusBadRequest || decode(t, rr)["error"] != "Email was not provided." {
		t.Fatalf("expected missing email 400, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterForgotPasswordLimitedInProduction(t *testing.T) {
	f := newRouterFixture(t, true)
	for i := range 2 {
		if rr := perform(f.router, http.MethodPost, "/auth/forgot-password/ghost@example.com", nil, nil, ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
	rr := perform(f.router, http.MethodPost, "/auth/forgot-password/GHOST@example.com", nil, nil, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third request throttled, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRouterResetPasswordValidation(t *testing.T) {
	f := newRouterFixture(t, false)
	cases := []struct {
		body string
		code int
	}{
		{`{}`, http.StatusBadRequest},
		{`{"token":"t","password":"short"}`, http.StatusBadRequest},
		{`{"token":"t","password":"long-enough"}`, http.StatusAccepted},
	}
	for _, tc := range cases {
		if rr := perform(f.router, http.MethodPost, "/auth/reset-password", nil, nil, tc.body); rr.Code != tc.code {
			t.Fatalf("body %s: expected %d, got %d", tc.body, tc.code, rr.Code)
		}
	}
}

func TestRouterPublicPingOptionalAuth(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "member@example.com")

	rr := perform(f.router, http.MethodGet, "/public/ping", nil, nil, "")
	if rr.Code != http.StatusOK || decode(t, rr)["userId"] != nil {
		t.Fatalf("expected anonymous pong, got %d %s", rr.Code, rr.Body.String())
	}

	garbage := &http.Cookie{Name: security.AuthCookieName, Value: "garbage"}
	if rr := perform(f.router, http.MethodGet, "/public/ping", nil, []*http.Cookie{garbage}, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected malformed cookie treated as anonymous, got %d", rr.Code)
	}

	cookie := f.login(t, "member@example.com")
	rr = perform(f.router, http.MethodGet, "/public/ping", nil, cookie, "")
	if rr.Code != http.StatusOK || decode(t, rr)["userId"] == nil {
		t.Fatalf("expected identified pong, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterCookieWritesRequireCSRFToken(t *testing.T) {
	f := newRouterFixture(t, false)
	f.createUser(t, "admin@example.com", domain.PermissionAdmin)
	cookies := f.login(t, "admin@example.com")

	forged := map[string]string{security.CSRFHeaderName: "forged"}
	writes := []struct {
		method, target, body string
	}{
		{http.MethodPost, "/auth/logout", ""},
		{http.MethodPost, "/auth/logout-all", ""},
		{http.MethodPost, "/admin/jobs", `{"name":"passwordResetEmail"}`},
		{http.MethodPost, "/admin/users/u1/revoke-sessions", ""},
		{http.MethodDelete, "/me/sessions/1", ""},
	}
	for _, w := range writes {
		if rr := perform(f.router, w.method, w.target, forged, cookies, w.body); rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s with forged token: expected 403, got %d", w.method, w.target, rr.Code)
		}
		if rr := perform(f.router, w.method, w.target, nil, authCookieOnly(cookies), w.body); rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s with session cookie only: expected 403, got %d", w.method, w.target, rr.Code)
		}
	}

	if rr := perform(f.router, http.MethodGet, "/me", nil, authCookieOnly(cookies), ""); rr.Code != http.StatusOK {
		t.Fatalf("expected reads to need no csrf token, got %d", rr.Code)
	}
	if rr := perform(f.router, http.MethodPost, "/auth/logout", nil, cookies, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected matching token accepted, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterCompressesContextResponses(t *testing.T) {
	f := newRouterFixture(t, false)
	deps := f.deps
	deps.EnableCompress = true
	r := NewRouter(deps)

	gzipped := map[string]string{"Accept-Encoding": "gzip"}
	for _, target := range []string{"/public/ping", "/me", "/health/live"} {
		rr := perform(r, http.MethodGet, target, gzipped, nil, "")
		if got := rr.Header().Get("Content-Encoding"); got != "gzip" {
			t.Fatalf("%s: expected gzip response, got status=%d encoding=%q", target, rr.Code, got)
		}
		zr, err := gzip.NewReader(rr.Body)
		if err != nil {
			t.Fatalf("%s: gzip reader: %v", target, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			t.Fatalf("%s: read gzip body: %v", target, err)
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("%s: decode body %q: %v", target, raw, err)
		}
	}
}
