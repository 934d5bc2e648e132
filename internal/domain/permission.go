package domain

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
)

type Permission string

const (
	PermissionAdmin Permission = "ADMIN"
)

// PermissionList is stored as a comma separated column.
type PermissionList []Permission

func (l PermissionList) Has(p Permission) bool {
	return slices.Contains(l, p)
}

func (l PermissionList) Value() (driver.Value, error) {
	parts := make([]string, 0, len(l))
	for _, p := range l {
		v := strings.TrimSpace(string(p))
		if v == "" {
			continue
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ","), nil
}

func (l *PermissionList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = PermissionList{}
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan permission list: unsupported type %T", src)
	}
	out := PermissionList{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, Permission(part))
	}
	*l = out
	return nil
}
