package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an email/password identity of one deposit counter (tenant).
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AppID     string         `gorm:"size:50;not null;uniqueIndex:idx_users_app_email" json:"-"`
	Email     string         `gorm:"not null;size:255;uniqueIndex:idx_users_app_email" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
