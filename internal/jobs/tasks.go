package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stackhq/stack-api/internal/domain"
)

const (
	TaskPasswordResetEmail = "passwordResetEmail"
	TaskPruneExhaustedJobs = "pruneExhaustedJobs"
)

type PasswordResetEmailPayload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// NewDefaultRegistry registers the built-in tasks and their schedules.
func NewDefaultRegistry(db *gorm.DB, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	if err := reg.Register(TaskPasswordResetEmail, passwordResetEmail(logger)); err != nil {
		return nil, err
	}
	if err := reg.Register(TaskPruneExhaustedJobs, pruneExhaustedJobs(db, 7*24*time.Hour), LongRunning()); err != nil {
		return nil, err
	}
	if err := reg.AddCron("0 3 * * *", TaskPruneExhaustedJobs); err != nil {
		return nil, err
	}
	return reg, nil
}

// Delivery is out of process; the task records the request for the mailer.
func passwordResetEmail(logger *slog.Logger) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var p PasswordResetEmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if p.Email == "" {
			return fmt.Errorf("password reset email: missing recipient")
		}
		logger.InfoContext(ctx, "password reset email requested", "user_id", p.UserID, "email", MaskEmail(p.Email))
		return nil
	}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + host
}

func pruneExhaustedJobs(db *gorm.DB, olderThan time.Duration) Handler {
	return func(ctx context.Context, _ json.RawMessage) error {
		cutoff := time.Now().UTC().Add(-olderThan)
		return db.WithContext(ctx).
			Where("attempts >= max_attempts AND updated_at <= ?", cutoff).
			Delete(&domain.Job{}).Error
	}
}
