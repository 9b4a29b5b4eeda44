package identity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/models"
	"github.com/mental-health-navigator/high-tea/internals/utils"
)

const msgTooManyAttempts = "Too many failed attempts. Please request a new code."

// EmailProviderConfig tunes the built-in provider.
type EmailProviderConfig struct {
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

// EmailProvider is the built-in SessionClient: it keeps one challenge row per
// address, derives codes with HOTP and emails them through a Mailer. The
// Session it returns on success carries no token; the HTTP layer mints one.
type EmailProvider struct {
	DB     *gorm.DB
	Mailer utils.Mailer
	Codes  *utils.CodeGenerator
	Key    []byte
	Config EmailProviderConfig

	log logging.Logger
	now func() time.Time
}

func NewEmailProvider(db *gorm.DB, mailer utils.Mailer, key []byte, cfg EmailProviderConfig, log logging.Logger) *EmailProvider {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if log == nil {
		log = logging.Discard()
	}
	return &EmailProvider{
		DB:     db,
		Mailer: mailer,
		Codes:  utils.NewCodeGenerator(),
		Key:    key,
		Config: cfg,
		log:    log.With("provider", "email"),
		now:    time.Now,
	}
}

// SendOTP creates or refreshes the challenge for email and mails the code.
// A resend inside the cooldown window is rejected with StatusRateLimited.
func (p *EmailProvider) SendOTP(ctx context.Context, email string) Result {
	email = NormalizeEmail(email)
	if res, ok := CheckSend(email); !ok {
		return res
	}
	now := p.now()

	var ch models.OTPChallenge
	err := p.DB.WithContext(ctx).Where("email = ?", email).First(&ch).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		secret, err := p.Codes.NewSecret()
		if err != nil {
			p.log.Error(ctx, "otp secret generation failed", "err", err)
			return Failure(StatusFailed, MsgSendFailed)
		}
		sealed, err := utils.Encrypt(secret, p.Key)
		if err != nil {
			p.log.Error(ctx, "otp secret encryption failed", "err", err)
			return Failure(StatusFailed, MsgSendFailed)
		}
		ch = models.OTPChallenge{
			ChallengeID: uuid.New().String(),
			Email:       email,
			SecretEnc:   sealed,
		}
	case err != nil:
		p.log.Error(ctx, "otp challenge lookup failed", "err", err)
		return Failure(StatusFailed, MsgSendFailed)
	default:
		if wait := ch.LastSentAt.Add(p.Config.ResendCooldown).Sub(now); wait > 0 {
			secs := int(math.Ceil(wait.Seconds()))
			return Failure(StatusRateLimited, fmt.Sprintf("Please wait %d seconds before requesting a new code", secs))
		}
		ch.Counter++
	}

	secret, err := utils.Decrypt(ch.SecretEnc, p.Key)
	if err != nil {
		p.log.Error(ctx, "otp secret decryption failed", "err", err)
		return Failure(StatusFailed, MsgSendFailed)
	}
	code, err := p.Codes.Code(secret, ch.Counter)
	if err != nil {
		p.log.Error(ctx, "otp code generation failed", "err", err)
		return Failure(StatusFailed, MsgSendFailed)
	}

	prevSent := ch.LastSentAt
	ch.Attempts = p.Config.MaxAttempts
	ch.CodeExpiresAt = now.Add(p.Config.CodeTTL)
	ch.LastSentAt = now
	if err := p.DB.WithContext(ctx).Save(&ch).Error; err != nil {
		p.log.Error(ctx, "otp challenge save failed", "err", err)
		return Failure(StatusFailed, MsgSendFailed)
	}

	if err := p.Mailer.SendOTP(ctx, email, code, p.Config.CodeTTL); err != nil {
		p.log.Error(ctx, "otp email delivery failed", "err", err, "challenge_id", ch.ChallengeID)
		// Undo the cooldown so the user can retry straight away.
		p.DB.WithContext(ctx).Model(&ch).Update("last_sent_at", prevSent)
		return Failure(StatusFailed, MsgSendFailed)
	}

	p.log.Info(ctx, "otp code sent", "challenge_id", ch.ChallengeID, "counter", ch.Counter)
	return Success(MsgCodeSent, nil)
}

// VerifyOTP checks code against the pending challenge for email.
func (p *EmailProvider) VerifyOTP(ctx context.Context, email, code string) Result {
	email = NormalizeEmail(email)
	if res, ok := CheckVerify(email, code); !ok {
		return res
	}
	now := p.now()

	var ch models.OTPChallenge
	if err := p.DB.WithContext(ctx).Where("email = ?", email).First(&ch).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			p.log.Error(ctx, "otp challenge lookup failed", "err", err)
		}
		return Failure(StatusFailed, MsgVerifyFailed)
	}

	if ch.Expired(now) {
		p.DB.WithContext(ctx).Unscoped().Delete(&ch)
		return Failure(StatusFailed, "Code expired, please resend code.")
	}

	// An exhausted challenge stays locked until a resend, which the
	// cooldown still gates.
	if ch.Attempts <= 0 {
		return Failure(StatusFailed, msgTooManyAttempts)
	}

	secret, err := utils.Decrypt(ch.SecretEnc, p.Key)
	if err != nil {
		p.log.Error(ctx, "otp secret decryption failed", "err", err)
		return Failure(StatusFailed, MsgUnexpected)
	}

	if !p.Codes.Validate(code, ch.Counter, secret) {
		remaining := ch.Attempts - 1
		if remaining <= 0 {
			p.log.Warn(ctx, "otp attempts exhausted", "challenge_id", ch.ChallengeID)
			p.DB.WithContext(ctx).Model(&ch).Update("attempts", 0)
			return Failure(StatusFailed, msgTooManyAttempts)
		}
		p.DB.WithContext(ctx).Model(&ch).Update("attempts", remaining)
		return Failure(StatusFailed, MsgVerifyFailed)
	}

	if err := p.DB.WithContext(ctx).Unscoped().Delete(&ch).Error; err != nil {
		p.log.Error(ctx, "otp challenge delete failed", "err", err)
		return Failure(StatusFailed, MsgUnexpected)
	}
	return Success(MsgVerified, &Session{Email: email})
}

// PurgeExpired hard-deletes challenges whose code has expired.
func (p *EmailProvider) PurgeExpired(ctx context.Context) (int64, error) {
	res := p.DB.WithContext(ctx).Unscoped().Where("code_expires_at < ?", p.now()).Delete(&models.OTPChallenge{})
	return res.RowsAffected, res.Error
}
