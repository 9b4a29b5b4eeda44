package utils

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mental-health-navigator/high-tea/internals/logging"
)

func TestEmailManager_SendOTP(t *testing.T) {
	em := NewEmailManager(&SMTPConfig{Host: "smtp.example.com", Port: 587, User: "noreply@example.com", AppName: "High Tea"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	em.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, em.SendOTP(context.Background(), "user@example.com", "123456", 10*time.Minute))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"user@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: High Tea - Your Verification Code\r\n")
	assert.Contains(t, gotMsg, "Verification Code: 123456")
	assert.Contains(t, gotMsg, "expire in 10 minutes")
	assert.True(t, strings.Contains(gotMsg, "\r\n\r\n"), "headers end with a blank line")
}

func TestEmailManager_SendOTPErrors(t *testing.T) {
	em := NewEmailManager(&SMTPConfig{Host: "smtp.example.com", Port: 587})
	em.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("535 auth failed") }

	err := em.SendOTP(context.Background(), "user@example.com", "123456", time.Minute)
	assert.ErrorContains(t, err, "535 auth failed")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, em.SendOTP(ctx, "user@example.com", "123456", time.Minute), context.Canceled)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := &LogMailer{Log: logging.New(&buf, "debug", false)}

	require.NoError(t, m.SendOTP(context.Background(), "user@example.com", "654321", time.Minute))
	assert.Contains(t, buf.String(), "code=654321")
}
