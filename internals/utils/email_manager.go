package utils

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/mental-health-navigator/high-tea/internals/logging"
)

// Mailer delivers verification codes.
type Mailer interface {
	SendOTP(ctx context.Context, toEmail, code string, ttl time.Duration) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	AppName  string
}

type EmailManager struct {
	Config *SMTPConfig

	// sendMail is smtp.SendMail outside of tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailManager(config *SMTPConfig) *EmailManager {
	return &EmailManager{
		Config:   config,
		sendMail: smtp.SendMail,
	}
}

// send handles the SMTP handshake and delivery of a plain text message
func (em *EmailManager) send(toEmail string, subject string, body string) error {
	smtpAddr := fmt.Sprintf("%s:%d", em.Config.Host, em.Config.Port)

	// Headers per RFC 5322, CRLF separated
	headers := []string{
		fmt.Sprintf("From: %s", em.Config.User),
		fmt.Sprintf("To: %s", toEmail),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"", // blank line between headers and body
		body,
	}

	message := strings.Join(headers, "\r\n")

	auth := smtp.PlainAuth("", em.Config.User, em.Config.Password, em.Config.Host)

	return em.sendMail(smtpAddr, auth, em.Config.User, []string{toEmail}, []byte(message))
}

// OTPMessage renders the subject and body of a verification email.
func (em *EmailManager) OTPMessage(code string, ttl time.Duration) (string, string) {
	subject := fmt.Sprintf("%s - Your Verification Code", em.Config.AppName)

	body := fmt.Sprintf(
		"Hello,\n\n"+
			"You asked to update a service listing on %s. Please use the verification code below to confirm your email address:\n\n"+
			"Verification Code: %s\n\n"+
			"This code will expire in %d minutes. If you did not request this email, please ignore it.\n\n"+
			"Best regards,\n"+
			"The %s Team",
		em.Config.AppName, code, int(ttl.Minutes()), em.Config.AppName)

	return subject, body
}

// SendOTP emails a verification code. The SMTP exchange is not cancellable,
// ctx is only checked before dialing.
func (em *EmailManager) SendOTP(ctx context.Context, toEmail, code string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := em.OTPMessage(code, ttl)
	if err := em.send(toEmail, subject, body); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}
	return nil
}

// LogMailer writes codes to the log instead of sending them. Development only.
type LogMailer struct {
	Log logging.Logger
}

func (m *LogMailer) SendOTP(ctx context.Context, toEmail, code string, ttl time.Duration) error {
	m.Log.Warn(ctx, "otp code (log mailer, development only)", "email", toEmail, "code", code, "ttl", ttl.String())
	return nil
}
