// Package flow sequences the email verification steps: send a code to an
// address, verify the code the user types, and report the verified session.
package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mental-health-navigator/high-tea/internals/identity"
)

// State is the single active phase of a verification.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateOTPSent   State = "otp_sent"
	StateVerifying State = "verifying"
	StateVerified  State = "verified"
	StateError     State = "error"
)

// Step is the screen the flow is on. It tells an error on the email form apart
// from an error on the code form.
type Step string

const (
	StepEmail Step = "email"
	StepCode  Step = "code"
)

const (
	msgEmailRequired  = "Email address is required"
	msgSendFallback   = "Failed to send verification code"
	msgVerifyFallback = "Invalid or expired verification code"
	msgVerified       = "Email verified successfully!"
)

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State   State
	Step    Step
	Email   string
	Error   string
	Message string
	Session *identity.Session
}

// Loading reports whether a remote call is in flight.
func (s Snapshot) Loading() bool {
	return s.State == StateSending || s.State == StateVerifying
}

// Option configures a Controller.
type Option func(*Controller)

// WithCallTimeout bounds each remote call. Zero means no bound beyond the
// caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithObserver registers fn to receive a snapshot after every transition.
// fn runs on the goroutine that caused the transition, outside the lock.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

// Controller is the verification state machine. Every failure is absorbed into
// State and Error; no method returns an error. It is safe for concurrent use.
type Controller struct {
	client    identity.SessionClient
	timeout   time.Duration
	observers []func(Snapshot)

	mu sync.Mutex
	st Snapshot
}

// NewController returns an idle controller backed by client.
func NewController(client identity.SessionClient, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		st:     Snapshot{State: StateIdle, Step: StepEmail},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// IsLoading reports whether a send or verify is in flight.
func (c *Controller) IsLoading() bool {
	return c.Snapshot().Loading()
}

// SendOTP asks the provider to email a code to email. It also serves as resend.
// An empty address fails on the email step without a remote call.
func (c *Controller) SendOTP(ctx context.Context, email string) {
	email = strings.TrimSpace(email)

	c.mu.Lock()
	if email == "" {
		c.enter(StateError)
		c.st.Step = StepEmail
		c.st.Error = msgEmailRequired
		c.st.Message = ""
		c.commit()
		return
	}
	c.enter(StateSending)
	c.st.Email = email
	c.st.Error = ""
	c.st.Message = ""
	c.st.Session = nil
	c.commit()

	res := c.call(ctx, func(ctx context.Context) identity.Result {
		return c.client.SendOTP(ctx, email)
	})

	c.mu.Lock()
	if res.OK() {
		c.enter(StateOTPSent)
		c.st.Message = res.Message
	} else {
		c.enter(StateError)
		c.st.Error = orDefault(res.Message, msgSendFallback)
	}
	c.commit()
}

// VerifyOTP checks code for the current email. Without an email it only sets
// an error message. Calls made while a verification is in flight or after
// success are dropped.
func (c *Controller) VerifyOTP(ctx context.Context, code string) {
	c.mu.Lock()
	if c.st.Email == "" {
		c.st.Error = msgEmailRequired
		c.commit()
		return
	}
	if c.st.State == StateVerifying || c.st.State == StateVerified {
		c.mu.Unlock()
		return
	}
	email := c.st.Email
	c.enter(StateVerifying)
	c.st.Error = ""
	c.st.Message = ""
	c.commit()

	res := c.call(ctx, func(ctx context.Context) identity.Result {
		return c.client.VerifyOTP(ctx, email, code)
	})

	c.mu.Lock()
	if res.OK() {
		c.enter(StateVerified)
		c.st.Message = msgVerified
		c.st.Session = res.Session
		if c.st.Session == nil {
			c.st.Session = &identity.Session{Email: email}
		}
	} else {
		c.enter(StateError)
		c.st.Error = orDefault(res.Message, msgVerifyFallback)
	}
	c.commit()
}

// GoBack returns to the email step and keeps the entered address.
func (c *Controller) GoBack() {
	c.mu.Lock()
	c.enter(StateIdle)
	c.st.Error = ""
	c.st.Message = ""
	c.st.Session = nil
	c.commit()
}

// ResetFlow returns to the email step and forgets the address.
func (c *Controller) ResetFlow() {
	c.mu.Lock()
	c.enter(StateIdle)
	c.st.Email = ""
	c.st.Error = ""
	c.st.Message = ""
	c.st.Session = nil
	c.commit()
}

// enter moves to s and updates the step with it. Must hold mu.
func (c *Controller) enter(s State) {
	c.st.State = s
	switch s {
	case StateOTPSent:
		c.st.Step = StepCode
	case StateIdle:
		c.st.Step = StepEmail
	}
}

// commit releases mu and notifies observers with the new state.
func (c *Controller) commit() {
	snap := c.st
	c.mu.Unlock()
	for _, fn := range c.observers {
		fn(snap)
	}
}

func (c *Controller) call(ctx context.Context, fn func(context.Context) identity.Result) identity.Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res := fn(ctx)
	if !res.OK() && ctx.Err() != nil && res.Message == "" {
		res.Message = identity.MsgRequestFailed
	}
	return res
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
