// Package chat sequences the conversation with the navigator and the
// chat → otp → form detour taken when the user asks to change a service
// record.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mental-health-navigator/high-tea/internals/apiclient"
	"github.com/mental-health-navigator/high-tea/internals/common"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

// Phase is what the hosting UI shows under the transcript.
type Phase string

const (
	PhaseChat Phase = "chat"
	PhaseOTP  Phase = "otp"
	PhaseForm Phase = "form"
)

// Status tracks the single in-flight chat request.
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Toast kinds.
const (
	ToastSuccess = "success"
	ToastError   = "error"
)

const (
	MsgSendFailed      = "Failed to send message"
	MsgServiceCreated  = "Service submitted successfully! You can continue chatting."
	MsgIngestFailed    = "Service ingestion failed"
	MsgSubmitFailed    = "Failed to submit service data"
	MsgSessionRequired = "Please verify your email before submitting a service"
)

// Message is one transcript entry.
type Message struct {
	ID      string
	Role    string
	Content string

	// Services attached to an assistant turn
	Services []upstream.SearchHit
}

// Toast is a transient notification for the UI.
type Toast struct {
	Kind        string
	Text        string
	Description string
}

// Backend is what the orchestrator needs from the server.
type Backend interface {
	Chat(ctx context.Context, message, sessionID string) (*apiclient.ChatResponse, error)
	Ingest(ctx context.Context, form upstream.ServiceForm) (*upstream.IngestResult, error)
}

// State is a copy of the orchestrator's state for rendering.
type State struct {
	Messages             []Message
	Status               Status
	Phase                Phase
	SessionID            string
	Services             []upstream.SearchHit
	Top1Similarity       float64
	DisambiguationNeeded bool
	RequestServiceChange bool
	ConversationLength   int
	VerifiedEmail        string
}

// Orchestrator owns the transcript and the parent flow. It is safe for
// concurrent use; backend calls run without holding the lock.
type Orchestrator struct {
	backend Backend
	log     logging.Logger

	mu      sync.Mutex
	state   State
	session *identity.Session
	toasts  []Toast
}

func New(backend Backend, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	return &Orchestrator{
		backend: backend,
		log:     log,
		state:   State{Status: StatusReady, Phase: PhaseChat},
	}
}

// SendMessage appends text as a user turn and asks the navigator for a reply.
// It refuses blank text and a second message while one is in flight. A reply
// flagging a service change moves the flow to the OTP phase.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return common.ErrEmptyMessage
	}

	o.mu.Lock()
	if o.state.Status != StatusReady {
		o.mu.Unlock()
		return common.ErrBusy
	}
	o.state.Messages = append(o.state.Messages, Message{ID: uuid.New().String(), Role: RoleUser, Content: text})
	o.state.Status = StatusSubmitted
	sessionID := o.state.SessionID
	o.mu.Unlock()

	res, err := o.backend.Chat(ctx, text, sessionID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Status = StatusReady

	if err != nil {
		o.log.Error(ctx, "Chat request failed", "error", err)
		o.toasts = append(o.toasts, Toast{Kind: ToastError, Text: MsgSendFailed, Description: err.Error()})
		return fmt.Errorf("send message: %w", err)
	}

	id := res.Message.ID
	if id == "" {
		id = uuid.New().String()
	}
	o.state.Messages = append(o.state.Messages, Message{
		ID:       id,
		Role:     RoleAssistant,
		Content:  res.Message.Content,
		Services: res.Services,
	})
	o.state.SessionID = res.SessionID
	o.state.Services = res.Services
	o.state.Top1Similarity = res.Top1Similarity
	o.state.DisambiguationNeeded = res.DisambiguationNeeded
	o.state.RequestServiceChange = res.RequestServiceChange
	o.state.ConversationLength = res.ConversationLength

	if res.RequestServiceChange && o.state.Phase == PhaseChat {
		o.state.Phase = PhaseOTP
	}
	return nil
}

// Verified records a verified email and opens the service form.
func (o *Orchestrator) Verified(email string, session *identity.Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase != PhaseOTP {
		return common.ErrWrongPhase
	}
	o.state.VerifiedEmail = email
	o.session = session
	o.state.Phase = PhaseForm
	return nil
}

// SubmitForm sends the service form. It needs the form phase and a verified
// session. Once the ingestion API answers, the flow returns to chat; a
// transport failure keeps the form open so the user can retry.
func (o *Orchestrator) SubmitForm(ctx context.Context, form upstream.ServiceForm) (*upstream.IngestResult, error) {
	o.mu.Lock()
	if o.state.Phase != PhaseForm {
		o.mu.Unlock()
		return nil, common.ErrWrongPhase
	}
	if o.session == nil {
		o.toasts = append(o.toasts, Toast{Kind: ToastError, Text: MsgSessionRequired})
		o.mu.Unlock()
		return nil, common.ErrUnauthorized
	}
	o.mu.Unlock()

	res, err := o.backend.Ingest(ctx, form)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.log.Error(ctx, "Service submission failed", "email", o.state.VerifiedEmail, "error", err)
		o.toasts = append(o.toasts, Toast{Kind: ToastError, Text: MsgSubmitFailed, Description: err.Error()})
		return nil, fmt.Errorf("submit form: %w", err)
	}

	if res.Created() {
		o.log.Info(ctx, "Service submitted", "reference_id", res.ReferenceID)
		o.toasts = append(o.toasts, Toast{Kind: ToastSuccess, Text: MsgServiceCreated, Description: "Reference ID: " + res.ReferenceID})
	} else {
		o.toasts = append(o.toasts, Toast{Kind: ToastError, Text: MsgIngestFailed, Description: res.Message})
	}
	o.backToChat()
	return res, nil
}

// CancelForm abandons the OTP or form phase and returns to chat.
func (o *Orchestrator) CancelForm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backToChat()
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	s.Messages = append([]Message(nil), o.state.Messages...)
	s.Services = append([]upstream.SearchHit(nil), o.state.Services...)
	return s
}

// Notify queues a toast raised outside the orchestrator, such as an OTP
// failure, for the next DrainToasts.
func (o *Orchestrator) Notify(t Toast) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.toasts = append(o.toasts, t)
}

// DrainToasts returns pending notifications and clears them.
func (o *Orchestrator) DrainToasts() []Toast {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.toasts
	o.toasts = nil
	return t
}

func (o *Orchestrator) backToChat() {
	o.state.Phase = PhaseChat
	o.state.VerifiedEmail = ""
	o.state.RequestServiceChange = false
	o.session = nil
}
