package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/observability"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdatePermissions(ctx context.Context, id string, permissions domain.PermissionList) error
	ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.User], error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	return r.found(ctx, "find_by_id", &u, err)
}

// FindByEmail matches case-insensitively; emails are stored lower-cased.
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	return r.found(ctx, "find_by_email", &u, err)
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) UpdatePermissions(ctx context.Context, id string, permissions domain.PermissionList) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("permissions", permissions)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "update_permissions", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", "update_permissions", "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", "update_permissions", "success")
	return nil
}

func (r *GormUserRepository) ListPaged(ctx context.Context, query PageRequest) (PageResult[domain.User], error) {
	req := normalizePageRequest(query)
	result := PageResult[domain.User]{
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	base := r.db.WithContext(ctx).Model(&domain.User{})
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	offset := (req.Page - 1) * req.PageSize
	if err := base.Order("created_at ASC").Order("id ASC").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(ctx, "user", "list_paged", "success")
	return result, nil
}

func (r *GormUserRepository) found(ctx context.Context, op string, u *domain.User, err error) (*domain.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return u, nil
}
