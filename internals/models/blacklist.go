package models

import (
	"time"

	"gorm.io/gorm"
)

// Blacklist holds the jti of verified-session tokens revoked before their expiry.
type Blacklist struct {
	gorm.Model
	Jti       string    `gorm:"column:jti;unique;index"`
	Email     string    `gorm:"column:email"`
	ExpiresAt time.Time `gorm:"column:expires_at;index"`
}
