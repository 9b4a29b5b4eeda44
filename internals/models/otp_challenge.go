package models

import (
	"time"

	"gorm.io/gorm"
)

// OTPChallenge is one outstanding email verification. A row exists only while a
// code is pending for the address; it is hard-deleted on success, on expiry and
// once the attempts run out.
type OTPChallenge struct {
	gorm.Model
	ChallengeID   string    `gorm:"column:challenge_id;uniqueIndex"`
	Email         string    `gorm:"column:email;uniqueIndex"`
	SecretEnc     string    `gorm:"column:secret_enc"` // AES-GCM sealed HOTP secret, hex
	Counter       uint64    `gorm:"column:counter"`    // HOTP moving factor, bumped on every resend
	Attempts      int       `gorm:"column:attempts;default:3"`
	CodeExpiresAt time.Time `gorm:"column:code_expires_at;index"`
	LastSentAt    time.Time `gorm:"column:last_sent_at"`
}

// Expired reports whether the code can no longer be verified at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.CodeExpiresAt)
}
