package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/security"
)

const sessionTestSecret = "abcdefghijklmnopqrstuvwxyz123456"

type failingSessionStore struct {
	*InMemorySessionStore
	err error
}

func (s *failingSessionStore) IsValid(context.Context, string, int64) (bool, error) {
	return false, s.err
}

func (s *failingSessionStore) MarkValid(context.Context, string, int64) error {
	return s.err
}

type hangingSessionStore struct {
	*InMemorySessionStore
}

func (hangingSessionStore) IsValid(ctx context.Context, _ string, _ int64) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func newSessionServiceForTest(store SessionStore, now time.Time) *SessionService {
	svc := NewSessionService(store, security.NewCookieCodec(sessionTestSecret), time.Second)
	svc.now = func() time.Time { return now }
	return svc
}

func requestWithCookies(rr *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionServiceIssueThenResolve(t *testing.T) {
	store := NewInMemorySessionStore()
	svc := newSessionServiceForTest(store, time.Unix(1_700_000_000, 0))

	rr := httptest.NewRecorder()
	token, err := svc.Issue(context.Background(), rr, "u1", []domain.Permission{domain.PermissionAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.IssuedAt != 1_700_000_000 {
		t.Fatalf("unexpected iat %d", token.IssuedAt)
	}
	ok, _ := store.IsValid(context.Background(), "u1", token.IssuedAt)
	if !ok {
		t.Fatal("expected store entry right after issue")
	}

	res := svc.Resolve(requestWithCookies(rr))
	if !res.Authenticated() {
		t.Fatalf("expected authenticated result, got err=%v", res.Err)
	}
	if res.User.UserID != "u1" || !domain.PermissionList(res.User.Permissions).Has(domain.PermissionAdmin) {
		t.Fatalf("unexpected user %+v", res.User)
	}
}

func TestSessionServiceResolveFailures(t *testing.T) {
	store := NewInMemorySessionStore()
	svc := newSessionServiceForTest(store, time.Unix(1_700_000_000, 0))

	res := svc.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(res.Err, domain.ErrNoCookie) || res.User != nil {
		t.Fatalf("expected no cookie error, got %+v", res)
	}

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.AddCookie(&http.Cookie{Name: security.AuthCookieName, Value: "garbage"})
	res = svc.Resolve(bad)
	if _, ok := domain.AsBenign(res.Err); !ok || res.User != nil {
		t.Fatalf("expected benign decode error, got %+v", res)
	}

	rr := httptest.NewRecorder()
	token, err := svc.Issue(context.Background(), rr, "u1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := svc.RevokeSession(context.Background(), "u1", token.IssuedAt); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	res = svc.Resolve(requestWithCookies(rr))
	if !errors.Is(res.Err, domain.ErrCookieNoLongerValid) || res.User != nil {
		t.Fatalf("expected cookie no longer valid, got %+v", res)
	}
}

func TestSessionServiceStoreFailureIsInternal(t *testing.T) {
	healthy := newSessionServiceForTest(NewInMemorySessionStore(), time.Unix(10, 0))
	rr := httptest.NewRecorder()
	if _, err := healthy.Issue(context.Background(), rr, "u1", nil); err != nil {
		t.Fatalf("issue: %v", err)
	}

	broken := newSessionServiceForTest(&failingSessionStore{InMemorySessionStore: NewInMemorySessionStore(), err: errors.New("down")}, time.Unix(10, 0))
	res := broken.Resolve(requestWithCookies(rr))
	if res.Err == nil {
		t.Fatal("expected error when the store is unavailable")
	}
	if _, ok := domain.AsBenign(res.Err); ok {
		t.Fatalf("store failure must not be benign: %v", res.Err)
	}

	rr = httptest.NewRecorder()
	if _, err := broken.Issue(context.Background(), rr, "u1", nil); err == nil {
		t.Fatal("expected issue to fail when the store rejects the entry")
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("cookie must not be set when the store write fails")
	}
}

func TestSessionServiceStoreCallsAreBounded(t *testing.T) {
	healthy := newSessionServiceForTest(NewInMemorySessionStore(), time.Unix(10, 0))
	rr := httptest.NewRecorder()
	if _, err := healthy.Issue(context.Background(), rr, "u1", nil); err != nil {
		t.Fatalf("issue: %v", err)
	}

	slow := NewSessionService(hangingSessionStore{NewInMemorySessionStore()}, security.NewCookieCodec(sessionTestSecret), 50*time.Millisecond)
	start := time.Now()
	res := slow.Resolve(requestWithCookies(rr))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected resolve to give up near the timeout, took %v", elapsed)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) || res.User != nil {
		t.Fatalf("expected deadline exceeded, got %+v", res)
	}
	if _, ok := domain.AsBenign(res.Err); ok {
		t.Fatalf("timeout must not be benign: %v", res.Err)
	}
}

func TestSessionServiceIssueSetsCSRFCookie(t *testing.T) {
	svc := newSessionServiceForTest(NewInMemorySessionStore(), time.Unix(10, 0))
	rr := httptest.NewRecorder()
	if _, err := svc.Issue(context.Background(), rr, "u1", nil); err != nil {
		t.Fatalf("issue: %v", err)
	}
	var csrf *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == security.CSRFCookieName {
			csrf = c
		}
	}
	if csrf == nil || csrf.Value == "" || csrf.HttpOnly {
		t.Fatalf("expected a script-readable csrf cookie, got %+v", csrf)
	}

	cleared := httptest.NewRecorder()
	svc.Clear(cleared)
	if n := len(cleared.Result().Cookies()); n != 2 {
		t.Fatalf("expected both cookies cleared, got %d", n)
	}
}

func TestSessionServiceListAndRevokeAll(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySessionStore()
	svc := newSessionServiceForTest(store, time.Unix(100, 0))
	_ = store.MarkValid(ctx, "u1", 50)
	_ = store.MarkValid(ctx, "u1", 100)

	views, err := svc.ListActiveSessions(ctx, "u1", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].IsCurrent || !views[1].IsCurrent {
		t.Fatalf("unexpected views %+v", views)
	}
	if !views[1].ExpiresAt.Equal(time.Unix(100, 0).UTC().Add(security.AuthCookieMaxAge)) {
		t.Fatalf("unexpected expiry %v", views[1].ExpiresAt)
	}

	if err := svc.RevokeAllSessions(ctx, "u1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	views, _ = svc.ListActiveSessions(ctx, "u1", 100)
	if len(views) != 0 {
		t.Fatalf("expected no sessions, got %+v", views)
	}
}
