package flow

import (
	"context"
	"sync"

	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/otp/codeinput"
)

// Screen describes what a renderer should draw for the current state.
type Screen struct {
	Step  Step
	Email string

	EmailLoading bool
	EmailError   string

	CodeLoading  bool
	CodeDisabled bool
	CodeInvalid  bool
	CodeError    string

	Message   string
	Verified  bool
	CanBack   bool
	CanResend bool
}

// ViewOption configures a View.
type ViewOption func(*View)

// OnVerified registers a callback for a successful verification.
func OnVerified(fn func(email string, session *identity.Session)) ViewOption {
	return func(v *View) { v.onVerified = fn }
}

// OnError registers a callback for every failure message.
func OnError(fn func(msg string)) ViewOption {
	return func(v *View) { v.onError = fn }
}

// WithSpawn sets how an auto-submitted code is run. The default starts a
// goroutine so key handling never blocks on the network.
func WithSpawn(fn func(task func())) ViewOption {
	return func(v *View) { v.spawn = fn }
}

// WithContext sets the parent context for auto-submitted codes.
func WithContext(ctx context.Context) ViewOption {
	return func(v *View) { v.ctx = ctx }
}

// View composes the email step and the code step over a Controller. It owns
// the code buffer and submits the code as soon as every cell is filled.
type View struct {
	ctrl *Controller
	code *codeinput.Buffer

	ctx        context.Context
	spawn      func(task func())
	onVerified func(email string, session *identity.Session)
	onError    func(msg string)

	mu            sync.Mutex
	lastSubmitted string
}

// NewView wires a code buffer of identity.CodeLength cells to ctrl.
func NewView(ctrl *Controller, opts ...ViewOption) *View {
	v := &View{
		ctrl:  ctrl,
		ctx:   context.Background(),
		spawn: func(task func()) { go task() },
	}
	for _, opt := range opts {
		opt(v)
	}
	v.code = codeinput.New(identity.CodeLength,
		codeinput.WithOnChange(v.codeChanged),
		codeinput.WithOnComplete(func(code string) {
			v.spawn(func() { v.SubmitCode(v.ctx, code) })
		}),
	)
	return v
}

// Controller returns the underlying state machine.
func (v *View) Controller() *Controller { return v.ctrl }

// Code returns the code entry buffer.
func (v *View) Code() *codeinput.Buffer { return v.code }

// SubmitEmail sends a code to email and forgets the last submitted code.
func (v *View) SubmitEmail(ctx context.Context, email string) {
	v.mu.Lock()
	v.lastSubmitted = ""
	v.mu.Unlock()

	v.ctrl.SendOTP(ctx, email)
	v.report()
}

// SubmitCode verifies code unless it repeats the last submission, or a
// verification is in flight or already succeeded. It reports whether a
// verification was started.
func (v *View) SubmitCode(ctx context.Context, code string) bool {
	v.mu.Lock()
	snap := v.ctrl.Snapshot()
	if code == v.lastSubmitted || snap.Loading() || snap.State == StateVerified {
		v.mu.Unlock()
		return false
	}
	v.lastSubmitted = code
	v.mu.Unlock()

	v.ctrl.VerifyOTP(ctx, code)
	v.report()
	return true
}

// Resend sends a fresh code to the known address. The last submitted code is
// kept, so refilling the same digits does not verify again.
func (v *View) Resend(ctx context.Context) bool {
	s := v.Screen()
	if !s.CanResend {
		return false
	}
	v.ctrl.SendOTP(ctx, s.Email)
	v.report()
	return true
}

// Back returns to the email step. It is refused while loading or verified.
func (v *View) Back() bool {
	s := v.Screen()
	if s.Step == StepCode && !s.CanBack {
		return false
	}
	v.ctrl.GoBack()
	v.code.Clear()
	return true
}

// Reset forgets the address and empties the code.
func (v *View) Reset() {
	v.ctrl.ResetFlow()
	v.code.Clear()
	v.mu.Lock()
	v.lastSubmitted = ""
	v.mu.Unlock()
}

// Screen derives the render description from the controller state.
func (v *View) Screen() Screen {
	return screenFor(v.ctrl.Snapshot())
}

// screenFor shows the email step while idle or sending, including a resend
// started from the code step. The controller keeps its own step, so a failed
// resend comes back to the code step.
func screenFor(s Snapshot) Screen {
	step := s.Step
	if s.State == StateIdle || s.State == StateSending {
		step = StepEmail
	}
	sc := Screen{Step: step, Email: s.Email, Message: s.Message}

	if step == StepEmail {
		sc.EmailLoading = s.State == StateSending
		if s.State == StateError {
			sc.EmailError = s.Error
		}
		return sc
	}

	isErr := s.State == StateError
	sc.CodeLoading = s.Loading()
	sc.Verified = s.State == StateVerified
	sc.CodeDisabled = sc.CodeLoading || sc.Verified
	sc.CodeInvalid = isErr
	if isErr {
		sc.CodeError = s.Error
	}
	sc.CanBack = !sc.CodeDisabled
	sc.CanResend = (s.State == StateOTPSent || isErr) && !sc.CodeLoading
	return sc
}

// codeChanged drops the duplicate guard once the buffer is incomplete again.
func (v *View) codeChanged(string) {
	if v.code.Complete() {
		return
	}
	v.mu.Lock()
	v.lastSubmitted = ""
	v.mu.Unlock()
}

func (v *View) report() {
	s := v.ctrl.Snapshot()
	switch {
	case s.State == StateVerified && v.onVerified != nil:
		v.onVerified(s.Email, s.Session)
	case s.Error != "" && v.onError != nil:
		v.onError(s.Error)
	}
}
