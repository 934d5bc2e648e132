package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/repository"
	"github.com/stackhq/stack-api/internal/security"
)

type UserService struct {
	repo       repository.UserRepository
	cache      JSONCache
	profileTTL time.Duration
}

func NewUserService(repo repository.UserRepository, cache JSONCache, profileTTL time.Duration) *UserService {
	if cache == nil {
		cache = NewNoopJSONCache()
	}
	return &UserService{repo: repo, cache: cache, profileTTL: profileTTL}
}

// Authenticate does not distinguish an unknown email from a wrong password.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.Internal("authenticate", err)
	}
	ok, err := security.VerifyPassword(password, u.PasswordHash)
	if err != nil {
		return nil, domain.Internal("authenticate", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

func (s *UserService) GetProfile(ctx context.Context, id string) (*domain.User, error) {
	return GetOrFetch(ctx, s.cache, profileCacheKey(id), s.profileTTL, func(ctx context.Context) (*domain.User, error) {
		u, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, domain.ErrUserNotFound
			}
			return nil, domain.Internal("load profile", err)
		}
		return u, nil
	})
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Internal("find user", err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error) {
	page, err := s.repo.ListPaged(ctx, req)
	if err != nil {
		return page, domain.Internal("list users", err)
	}
	return page, nil
}

func (s *UserService) Create(ctx context.Context, email, name, password string, permissions []domain.Permission) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrEmailNotProvided
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, domain.Internal("hash password", err)
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Permissions:  domain.PermissionList(permissions),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, domain.Internal("create user", err)
	}
	return u, nil
}

// GrantPermissions adds permissions to the stored user and drops the cached
// profile. Cookies already issued keep the permissions they were signed with.
func (s *UserService) GrantPermissions(ctx context.Context, id string, permissions ...domain.Permission) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Internal("grant permissions", err)
	}
	merged := append(domain.PermissionList{}, u.Permissions...)
	for _, p := range permissions {
		if !merged.Has(p) {
			merged = append(merged, p)
		}
	}
	if len(merged) == len(u.Permissions) {
		return u, nil
	}
	if err := s.repo.UpdatePermissions(ctx, id, merged); err != nil {
		return nil, domain.Internal("grant permissions", err)
	}
	u.Permissions = merged
	if err := s.cache.Delete(ctx, profileCacheKey(id)); err != nil {
		return u, domain.Internal("invalidate profile", err)
	}
	return u, nil
}

func profileCacheKey(id string) string {
	return "profile:" + id
}
