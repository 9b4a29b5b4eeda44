package flow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mental-health-navigator/high-tea/internals/identity"
)

// stubClient accepts one code and counts calls. gate, when set, blocks verify
// until it is closed.
type stubClient struct {
	accept   string
	sendRes  *identity.Result
	gate     chan struct{}
	sends    atomic.Int32
	verifies atomic.Int32
}

func (s *stubClient) SendOTP(ctx context.Context, email string) identity.Result {
	s.sends.Add(1)
	if s.sendRes != nil {
		return *s.sendRes
	}
	if res, ok := identity.CheckSend(email); !ok {
		return res
	}
	return identity.Success(identity.MsgCodeSent, nil)
}

func (s *stubClient) VerifyOTP(ctx context.Context, email, code string) identity.Result {
	s.verifies.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return identity.Failure(identity.StatusFailed, "")
		}
	}
	if res, ok := identity.CheckVerify(email, code); !ok {
		return res
	}
	if code != s.accept {
		return identity.Failure(identity.StatusFailed, "Token has expired or is invalid")
	}
	return identity.Success(identity.MsgVerified, &identity.Session{AccessToken: "tok", Email: email})
}

func TestController_HappyPath(t *testing.T) {
	client := &stubClient{accept: "123456"}
	c := NewController(client)
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	s := c.Snapshot()
	assert.Equal(t, StateOTPSent, s.State)
	assert.Equal(t, StepCode, s.Step)
	assert.Equal(t, identity.MsgCodeSent, s.Message)

	c.VerifyOTP(ctx, "123456")
	s = c.Snapshot()
	assert.Equal(t, StateVerified, s.State)
	assert.Equal(t, "Email verified successfully!", s.Message)
	require.NotNil(t, s.Session)
	assert.Equal(t, "tok", s.Session.AccessToken)
}

func TestController_RejectedCodeThenGoBack(t *testing.T) {
	c := NewController(&stubClient{accept: "never!"})
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	c.VerifyOTP(ctx, "000000")

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, StepCode, s.Step)
	assert.Equal(t, "Token has expired or is invalid", s.Error)
	assert.Nil(t, s.Session)

	c.GoBack()
	s = c.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, StepEmail, s.Step)
	assert.Empty(t, s.Error)
	assert.Empty(t, s.Message)
	assert.Equal(t, "user@example.com", s.Email, "goBack keeps the address")
}

func TestController_SendFailureStaysOnEmailStep(t *testing.T) {
	c := NewController(&stubClient{sendRes: &identity.Result{Status: identity.StatusFailed}})

	c.SendOTP(context.Background(), "user@example.com")

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, StepEmail, s.Step)
	assert.Equal(t, "Failed to send verification code", s.Error)
}

func TestController_InvalidEmailNeverVerifies(t *testing.T) {
	client := &stubClient{accept: "123456"}
	c := NewController(client)
	ctx := context.Background()

	c.SendOTP(ctx, "")
	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, StepEmail, s.Step)
	assert.Equal(t, "Email address is required", s.Error)
	assert.Zero(t, client.sends.Load(), "empty email makes no remote call")

	c.SendOTP(ctx, "not an email")
	s = c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, identity.MsgInvalidEmail, s.Error)
	assert.Equal(t, StepEmail, s.Step)
}

func TestController_VerifyWithoutEmail(t *testing.T) {
	client := &stubClient{accept: "123456"}
	c := NewController(client)

	c.VerifyOTP(context.Background(), "123456")

	s := c.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, "Email address is required", s.Error)
	assert.Zero(t, client.verifies.Load())
}

func TestController_MalformedCodeIsCodeStepError(t *testing.T) {
	c := NewController(&stubClient{accept: "123456"})
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	c.VerifyOTP(ctx, "12")

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, StepCode, s.Step)
	assert.Equal(t, identity.MsgCodeFormat, s.Error)
}

func TestController_RetryFromCodeError(t *testing.T) {
	c := NewController(&stubClient{accept: "123456"})
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	c.VerifyOTP(ctx, "999999")
	require.Equal(t, StateError, c.Snapshot().State)

	c.VerifyOTP(ctx, "123456")
	assert.Equal(t, StateVerified, c.Snapshot().State)
}

func TestController_ResendFailureKeepsCodeStep(t *testing.T) {
	client := &stubClient{accept: "123456"}
	c := NewController(client)
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	client.sendRes = &identity.Result{Status: identity.StatusRateLimited, Message: "Please wait 30 seconds before requesting a new code"}
	c.SendOTP(ctx, "user@example.com")

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, StepCode, s.Step)
	assert.Equal(t, "Please wait 30 seconds before requesting a new code", s.Error)
}

func TestController_ResetFlowClearsEmail(t *testing.T) {
	c := NewController(&stubClient{accept: "123456"})
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	c.VerifyOTP(ctx, "123456")
	c.ResetFlow()

	s := c.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, StepEmail, s.Step)
	assert.Empty(t, s.Email)
	assert.Nil(t, s.Session, "session only lives while verified")
}

func TestController_VerifyIsNotReentrant(t *testing.T) {
	client := &stubClient{accept: "123456", gate: make(chan struct{})}
	c := NewController(client)
	ctx := context.Background()
	c.SendOTP(ctx, "user@example.com")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.VerifyOTP(ctx, "123456")
	}()
	require.Eventually(t, c.IsLoading, time.Second, time.Millisecond)

	c.VerifyOTP(ctx, "123456")
	close(client.gate)
	wg.Wait()

	assert.Equal(t, int32(1), client.verifies.Load())
	assert.Equal(t, StateVerified, c.Snapshot().State)
}

func TestController_CallTimeout(t *testing.T) {
	client := &stubClient{accept: "123456", gate: make(chan struct{})}
	c := NewController(client, WithCallTimeout(20*time.Millisecond))
	ctx := context.Background()
	c.SendOTP(ctx, "user@example.com")

	c.VerifyOTP(ctx, "123456")

	s := c.Snapshot()
	assert.Equal(t, StateError, s.State)
	assert.Equal(t, identity.MsgRequestFailed, s.Error)
}

func TestController_ObserverSeesEveryTransition(t *testing.T) {
	var states []State
	c := NewController(&stubClient{accept: "123456"}, WithObserver(func(s Snapshot) {
		states = append(states, s.State)
	}))
	ctx := context.Background()

	c.SendOTP(ctx, "user@example.com")
	c.VerifyOTP(ctx, "123456")

	assert.Equal(t, []State{StateSending, StateOTPSent, StateVerifying, StateVerified}, states)
}
