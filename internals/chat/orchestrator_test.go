package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mental-health-navigator/high-tea/internals/apiclient"
	"github.com/mental-health-navigator/high-tea/internals/common"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

type fakeBackend struct {
	mu         sync.Mutex
	replies    []*apiclient.ChatResponse
	chatErr    error
	gate       chan struct{}
	sessionIDs []string

	ingest    *upstream.IngestResult
	ingestErr error
	forms     []upstream.ServiceForm
}

func (f *fakeBackend) Chat(ctx context.Context, message, sessionID string) (*apiclient.ChatResponse, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionIDs = append(f.sessionIDs, sessionID)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeBackend) Ingest(ctx context.Context, form upstream.ServiceForm) (*upstream.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forms = append(f.forms, form)
	return f.ingest, f.ingestErr
}

func reply(content, session string, change bool) *apiclient.ChatResponse {
	return &apiclient.ChatResponse{
		Message:              apiclient.Message{ID: "a-" + content, Role: RoleAssistant, Content: content},
		SessionID:            session,
		RequestServiceChange: change,
		ConversationLength:   2,
	}
}

func TestSendMessage_CarriesSessionID(t *testing.T) {
	b := &fakeBackend{replies: []*apiclient.ChatResponse{reply("one", "s-1", false), reply("two", "s-1", false)}}
	o := New(b, nil)
	ctx := context.Background()

	require.NoError(t, o.SendMessage(ctx, "  hi  "))
	require.NoError(t, o.SendMessage(ctx, "again"))

	assert.Equal(t, []string{"", "s-1"}, b.sessionIDs)
	s := o.State()
	require.Len(t, s.Messages, 4)
	assert.Equal(t, RoleUser, s.Messages[0].Role)
	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Equal(t, "two", s.Messages[3].Content)
	assert.Equal(t, StatusReady, s.Status)
	assert.Equal(t, PhaseChat, s.Phase)
}

func TestSendMessage_RejectsBlankAndBusy(t *testing.T) {
	b := &fakeBackend{replies: []*apiclient.ChatResponse{reply("one", "s", false)}, gate: make(chan struct{})}
	o := New(b, nil)
	ctx := context.Background()

	assert.ErrorIs(t, o.SendMessage(ctx, "   "), common.ErrEmptyMessage)

	done := make(chan error)
	go func() { done <- o.SendMessage(ctx, "first") }()
	require.Eventually(t, func() bool { return o.State().Status == StatusSubmitted }, time.Second, time.Millisecond)

	assert.ErrorIs(t, o.SendMessage(ctx, "second"), common.ErrBusy)
	close(b.gate)
	require.NoError(t, <-done)
	assert.Len(t, o.State().Messages, 2)
}

func TestSendMessage_FailureKeepsUserTurn(t *testing.T) {
	o := New(&fakeBackend{chatErr: errors.New("boom")}, nil)

	err := o.SendMessage(context.Background(), "hi")
	require.Error(t, err)

	s := o.State()
	require.Len(t, s.Messages, 1)
	assert.Equal(t, StatusReady, s.Status)
	toasts := o.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, ToastError, toasts[0].Kind)
	assert.Equal(t, MsgSendFailed, toasts[0].Text)
	assert.Empty(t, o.DrainToasts())
}

func TestServiceChangeFlow(t *testing.T) {
	b := &fakeBackend{
		replies: []*apiclient.ChatResponse{reply("let's update it", "s", true)},
		ingest:  &upstream.IngestResult{Status: "created", ReferenceID: "r-9"},
	}
	o := New(b, nil)
	ctx := context.Background()

	_, err := o.SubmitForm(ctx, upstream.ServiceForm{})
	assert.ErrorIs(t, err, common.ErrWrongPhase)

	require.NoError(t, o.SendMessage(ctx, "I want to change a service"))
	assert.Equal(t, PhaseOTP, o.State().Phase)

	require.NoError(t, o.Verified("user@example.com", &identity.Session{AccessToken: "tok"}))
	s := o.State()
	assert.Equal(t, PhaseForm, s.Phase)
	assert.Equal(t, "user@example.com", s.VerifiedEmail)

	res, err := o.SubmitForm(ctx, upstream.ServiceForm{ServiceName: "Headspace"})
	require.NoError(t, err)
	assert.True(t, res.Created())

	s = o.State()
	assert.Equal(t, PhaseChat, s.Phase)
	assert.Empty(t, s.VerifiedEmail)
	toasts := o.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, MsgServiceCreated, toasts[0].Text)
	assert.Equal(t, "Reference ID: r-9", toasts[0].Description)
}

func TestSubmitForm_NeedsSession(t *testing.T) {
	b := &fakeBackend{replies: []*apiclient.ChatResponse{reply("ok", "s", true)}}
	o := New(b, nil)
	ctx := context.Background()
	require.NoError(t, o.SendMessage(ctx, "change"))
	require.NoError(t, o.Verified("user@example.com", nil))

	_, err := o.SubmitForm(ctx, upstream.ServiceForm{})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Empty(t, b.forms)
	assert.Equal(t, PhaseForm, o.State().Phase)
}

func TestSubmitForm_FailureKeepsForm(t *testing.T) {
	b := &fakeBackend{replies: []*apiclient.ChatResponse{reply("ok", "s", true)}, ingestErr: errors.New("offline")}
	o := New(b, nil)
	ctx := context.Background()
	require.NoError(t, o.SendMessage(ctx, "change"))
	require.NoError(t, o.Verified("user@example.com", &identity.Session{}))

	_, err := o.SubmitForm(ctx, upstream.ServiceForm{})
	require.Error(t, err)
	assert.Equal(t, PhaseForm, o.State().Phase)
	assert.Equal(t, MsgSubmitFailed, o.DrainToasts()[0].Text)
}

func TestSubmitForm_RejectedByIngestion(t *testing.T) {
	b := &fakeBackend{
		replies: []*apiclient.ChatResponse{reply("ok", "s", true)},
		ingest:  &upstream.IngestResult{Status: "error", Message: "postcode invalid"},
	}
	o := New(b, nil)
	ctx := context.Background()
	require.NoError(t, o.SendMessage(ctx, "change"))
	require.NoError(t, o.Verified("user@example.com", &identity.Session{}))

	res, err := o.SubmitForm(ctx, upstream.ServiceForm{})
	require.NoError(t, err)
	assert.False(t, res.Created())
	assert.Equal(t, PhaseChat, o.State().Phase)
	toast := o.DrainToasts()[0]
	assert.Equal(t, MsgIngestFailed, toast.Text)
	assert.Equal(t, "postcode invalid", toast.Description)
}

func TestVerifiedOutsideOTPPhase(t *testing.T) {
	o := New(&fakeBackend{}, nil)
	assert.ErrorIs(t, o.Verified("user@example.com", nil), common.ErrWrongPhase)
}

func TestCancelForm(t *testing.T) {
	b := &fakeBackend{replies: []*apiclient.ChatResponse{reply("ok", "s", true)}}
	o := New(b, nil)
	require.NoError(t, o.SendMessage(context.Background(), "change"))

	o.CancelForm()
	s := o.State()
	assert.Equal(t, PhaseChat, s.Phase)
	assert.False(t, s.RequestServiceChange)
}

func TestNotifyQueuesToast(t *testing.T) {
	o := New(&fakeBackend{}, nil)
	o.Notify(Toast{Kind: ToastError, Text: "Invalid or expired verification code"})

	toasts := o.DrainToasts()
	require.Len(t, toasts, 1)
	assert.Equal(t, ToastError, toasts[0].Kind)
	assert.Empty(t, o.DrainToasts())
}
