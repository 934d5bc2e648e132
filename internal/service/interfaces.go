package service

import (
	"context"
	"net/http"
	"time"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/repository"
)

// SessionStore holds the set of valid issue times per user. A token is valid
// iff its issue time is a member of its user's set.
type SessionStore interface {
	MarkValid(ctx context.Context, userID string, issuedAt int64) error
	IsValid(ctx context.Context, userID string, issuedAt int64) (bool, error)
	Revoke(ctx context.Context, userID string, issuedAt int64) error
	ListValid(ctx context.Context, userID string) ([]int64, error)
	RevokeAll(ctx context.Context, userID string) error
}

type SessionServiceInterface interface {
	Issue(ctx context.Context, w http.ResponseWriter, userID string, permissions []domain.Permission) (*domain.SessionToken, error)
	Resolve(r *http.Request) domain.AuthResult
	Clear(w http.ResponseWriter)
	ListActiveSessions(ctx context.Context, userID string, current int64) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID string, issuedAt int64) error
	RevokeAllSessions(ctx context.Context, userID string) error
}

type UserServiceInterface interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetProfile(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error)
	Create(ctx context.Context, email, name, password string, permissions []domain.Permission) (*domain.User, error)
	GrantPermissions(ctx context.Context, id string, permissions ...domain.Permission) (*domain.User, error)
}

type RBACAuthorizer interface {
	Authorize(required, held []domain.Permission) bool
}

// JSONCache stores opaque JSON documents with a TTL.
type JSONCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
