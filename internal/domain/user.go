package domain

import "time"

type User struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Email        string         `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name         string         `gorm:"size:200" json:"name"`
	PasswordHash string         `gorm:"size:100;not null" json:"-"`
	Permissions  PermissionList `gorm:"type:text" json:"permissions"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
