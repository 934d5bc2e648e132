package domain

import "time"

// Job is a unit of background work. QueueName equals TaskIdentifier so that
// jobs of the same kind run one at a time.
type Job struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	QueueName      string     `gorm:"size:128;index;not null" json:"queue_name"`
	TaskIdentifier string     `gorm:"size:128;not null" json:"task_identifier"`
	Payload        string     `gorm:"type:text;not null" json:"payload"`
	RunAt          time.Time  `gorm:"index;not null" json:"run_at"`
	Attempts       int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts    int        `gorm:"not null;default:25" json:"max_attempts"`
	LastError      *string    `gorm:"type:text" json:"last_error,omitempty"`
	LockedAt       *time.Time `gorm:"index" json:"locked_at,omitempty"`
	LockedBy       *string    `gorm:"size:64" json:"locked_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type JobQueue struct {
	QueueName string     `gorm:"primaryKey;size:128" json:"queue_name"`
	LockedAt  *time.Time `gorm:"index" json:"locked_at,omitempty"`
	LockedBy  *string    `gorm:"size:64" json:"locked_by,omitempty"`
}
