// Package identity holds the OTP session capability used by the verification
// flow and its implementations: the built-in email provider, Supabase Auth, and
// (in package apiclient) this server's own OTP endpoints.
package identity

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mental-health-navigator/high-tea/internals/otp/codeinput"
)

// Status is the normalized outcome of a remote OTP call.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusInvalidData Status = "invalid_data"
	StatusRateLimited Status = "rate_limited"
)

// User-facing messages shared by every provider.
const (
	MsgInvalidEmail  = "Please enter a valid email address"
	MsgCodeRequired  = "Email and verification code are required"
	MsgCodeFormat    = "Verification code must be 6 digits"
	MsgCodeSent      = "Verification code sent! Check your email."
	MsgVerified      = "Email verified successfully!"
	MsgSendFailed    = "Failed to send verification code"
	MsgVerifyFailed  = "Invalid or expired verification code"
	MsgUnexpected    = "An unexpected error occurred"
	MsgRequestFailed = "Verification service is unavailable, please try again"
)

// CodeLength is the number of digits in an emailed verification code.
const CodeLength = 6

// Session is the opaque proof of a verified email handed back by a provider.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Email       string    `json:"email"`
}

// Result is what every OTP call returns. Failures never surface as Go errors;
// they are carried in Status and Message.
type Result struct {
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Success builds a successful Result.
func Success(message string, session *Session) Result {
	return Result{Status: StatusSuccess, Message: message, Session: session}
}

// Failure builds a failed Result with the given status.
func Failure(status Status, message string) Result {
	return Result{Status: status, Message: message}
}

// SessionClient sends verification codes to an email address and verifies them.
type SessionClient interface {
	SendOTP(ctx context.Context, email string) Result
	VerifyOTP(ctx context.Context, email, code string) Result
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email looks like an address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// CheckSend validates a send request before any remote call.
// ok is false when the returned Result should be reported as-is.
func CheckSend(email string) (Result, bool) {
	if !ValidEmail(email) {
		return Failure(StatusInvalidData, MsgInvalidEmail), false
	}
	return Result{}, true
}

// CheckVerify validates a verify request before any remote call.
func CheckVerify(email, code string) (Result, bool) {
	if email == "" || code == "" {
		return Failure(StatusInvalidData, MsgCodeRequired), false
	}
	if !codeinput.IsCode(code, CodeLength) {
		return Failure(StatusInvalidData, MsgCodeFormat), false
	}
	return Result{}, true
}
