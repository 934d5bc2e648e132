package service

import (
	"context"
	"net/http"
	"time"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"
	"github.com/stackhq/stack-api/internal/security"
)

type SessionView struct {
	IssuedAt  int64     `json:"iat"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsCurrent bool      `json:"is_current"`
}

// SessionService ties the cookie codec to the session store. Every store
// round-trip is bounded by timeout.
type SessionService struct {
	store   SessionStore
	codec   *security.CookieCodec
	timeout time.Duration
	now     func() time.Time
}

func NewSessionService(store SessionStore, codec *security.CookieCodec, timeout time.Duration) *SessionService {
	return &SessionService{
		store:   store,
		codec:   codec,
		timeout: timeout,
		now:     time.Now,
	}
}

// Issue records the new token in the store before the cookie is attached, so
// the client never holds a cookie the store does not know.
func (s *SessionService) Issue(ctx context.Context, w http.ResponseWriter, userID string, permissions []domain.Permission) (*domain.SessionToken, error) {
	now := s.now()
	token := domain.SessionToken{
		UserID:      userID,
		Permissions: append([]domain.Permission{}, permissions...),
		IssuedAt:    now.Unix(),
	}
	value, err := s.codec.Encode(token)
	if err != nil {
		return nil, domain.Internal("issue session", err)
	}
	csrf, err := security.NewCSRFToken()
	if err != nil {
		return nil, domain.Internal("issue session", err)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.MarkValid(storeCtx, token.UserID, token.IssuedAt); err != nil {
		return nil, domain.Internal("issue session", err)
	}
	security.SetAuthCookie(w, value, now)
	security.SetCSRFCookie(w, csrf, now)
	return &token, nil
}

func (s *SessionService) Resolve(r *http.Request) domain.AuthResult {
	ctx := r.Context()
	raw := security.GetCookie(r, security.AuthCookieName)
	if raw == "" {
		observability.RecordAuthResolution(ctx, "no_cookie")
		return domain.AuthResult{Err: domain.ErrNoCookie}
	}
	token, err := s.codec.Decode(raw)
	if err != nil {
		observability.RecordAuthResolution(ctx, "invalid_cookie")
		return domain.AuthResult{Err: err}
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	valid, err := s.store.IsValid(storeCtx, token.UserID, token.IssuedAt)
	if err != nil {
		observability.RecordAuthResolution(ctx, "store_error")
		return domain.AuthResult{Err: domain.Internal("resolve session", err)}
	}
	if !valid {
		observability.RecordAuthResolution(ctx, "revoked")
		return domain.AuthResult{Err: domain.ErrCookieNoLongerValid}
	}
	observability.RecordAuthResolution(ctx, "authenticated")
	return domain.AuthResult{User: token}
}

func (s *SessionService) Clear(w http.ResponseWriter) {
	security.ClearAuthCookie(w)
	security.ClearCSRFCookie(w)
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID string, current int64) ([]SessionView, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	issued, err := s.store.ListValid(storeCtx, userID)
	if err != nil {
		return nil, domain.Internal("list sessions", err)
	}
	views := make([]SessionView, 0, len(issued))
	for _, iat := range issued {
		created := time.Unix(iat, 0).UTC()
		views = append(views, SessionView{
			IssuedAt:  iat,
			CreatedAt: created,
			ExpiresAt: created.Add(security.AuthCookieMaxAge),
			IsCurrent: iat == current,
		})
	}
	return views, nil
}

func (s *SessionService) RevokeSession(ctx context.Context, userID string, issuedAt int64) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.Revoke(storeCtx, userID, issuedAt); err != nil {
		return domain.Internal("revoke session", err)
	}
	observability.RecordSessionRevocation(ctx, "single")
	return nil
}

func (s *SessionService) RevokeAllSessions(ctx context.Context, userID string) error {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.RevokeAll(storeCtx, userID); err != nil {
		return domain.Internal("revoke all sessions", err)
	}
	observability.RecordSessionRevocation(ctx, "all")
	return nil
}

func (s *SessionService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
