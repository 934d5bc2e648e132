package service

import (
	"slices"

	"github.com/stackhq/stack-api/internal/domain"
)

type RBACService struct{}

func NewRBACService() *RBACService { return &RBACService{} }

// Authorize applies an any-of policy: holding one required permission is
// enough, and an empty requirement always passes.
func (s *RBACService) Authorize(required, held []domain.Permission) bool {
	if len(required) == 0 {
		return true
	}
	for _, p := range required {
		if slices.Contains(held, p) {
			return true
		}
	}
	return false
}
