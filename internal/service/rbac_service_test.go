package service

import (
	"testing"

	"github.com/stackhq/stack-api/internal/domain"
)

func TestRBACServiceAuthorizeAnyOf(t *testing.T) {
	const (
		admin  domain.Permission = "ADMIN"
		editor domain.Permission = "EDITOR"
		viewer domain.Permission = "VIEWER"
	)
	tests := []struct {
		name     string
		required []domain.Permission
		held     []domain.Permission
		want     bool
	}{
		{name: "empty requirement allows anonymous set", required: nil, held: nil, want: true},
		{name: "empty requirement allows any", required: []domain.Permission{}, held: []domain.Permission{viewer}, want: true},
		{name: "exact match", required: []domain.Permission{admin}, held: []domain.Permission{admin}, want: true},
		{name: "one of many is enough", required: []domain.Permission{admin, editor}, held: []domain.Permission{editor}, want: true},
		{name: "disjoint denies", required: []domain.Permission{admin, editor}, held: []domain.Permission{viewer}, want: false},
		{name: "nothing held denies", required: []domain.Permission{admin}, held: nil, want: false},
	}
	svc := NewRBACService()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.Authorize(tc.required, tc.held); got != tc.want {
				t.Fatalf("Authorize(%v, %v) = %v, want %v", tc.required, tc.held, got, tc.want)
			}
		})
	}
}

func FuzzRBACServiceAuthorizeMatchesIntersection(f *testing.F) {
	f.Add(uint8(0), uint8(0))
	f.Add(uint8(1), uint8(2))
	f.Add(uint8(7), uint8(4))

	all := []domain.Permission{"A", "B", "C"}
	pick := func(mask uint8) []domain.Permission {
		var out []domain.Permission
		for i, p := range all {
			if mask&(1<<i) != 0 {
				out = append(out, p)
			}
		}
		return out
	}
	svc := NewRBACService()
	f.Fuzz(func(t *testing.T, requiredMask, heldMask uint8) {
		required, held := pick(requiredMask), pick(heldMask)
		want := len(required) == 0 || (requiredMask&heldMask&0x7) != 0
		if got := svc.Authorize(required, held); got != want {
			t.Fatalf("Authorize(%v, %v) = %v, want %v", required, held, got, want)
		}
	})
}
