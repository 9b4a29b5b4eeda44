// Package tui is the terminal front end: a chat transcript with the service
// navigator, the email verification flow and the service intake form.
package tui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mental-health-navigator/high-tea/internals/chat"
	"github.com/mental-health-navigator/high-tea/internals/identity"
	"github.com/mental-health-navigator/high-tea/internals/logging"
	"github.com/mental-health-navigator/high-tea/internals/otp/flow"
)

const maxToasts = 3

// Config wires the model to the server.
type Config struct {
	Backend     chat.Backend
	Sessions    identity.SessionClient
	CallTimeout time.Duration
	ServerURL   string
	Log         logging.Logger
}

type chatDoneMsg struct{ err error }

type otpDoneMsg struct{}

type formDoneMsg struct{ err error }

// taskQueue collects work the OTP view wants to run off the UI goroutine,
// such as the auto-submit of a completed code.
type taskQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *taskQueue) push(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *taskQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := q.tasks
	q.tasks = nil
	return t
}

// Model is the bubbletea model of the whole client.
type Model struct {
	cfg Config
	th  theme

	width  int
	height int

	orch  *chat.Orchestrator
	otp   *flow.View
	code  CodeInput
	queue *taskQueue

	phase    chat.Phase
	input    string
	email    string
	form     serviceForm
	otpBusy  bool
	formBusy bool
	toasts   []chat.Toast
}

func NewModel(cfg Config) Model {
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	orch := chat.New(cfg.Backend, cfg.Log)
	queue := &taskQueue{}
	log := cfg.Log
	view := flow.NewView(
		flow.NewController(cfg.Sessions, flow.WithCallTimeout(cfg.CallTimeout)),
		flow.WithSpawn(queue.push),
		flow.OnVerified(func(email string, s *identity.Session) {
			if err := orch.Verified(email, s); err != nil {
				log.Warn(context.Background(), "Verified outside the otp phase", "error", err)
			}
		}),
		flow.OnError(func(msg string) {
			log.Debug(context.Background(), "otp flow error", "message", msg)
			orch.Notify(chat.Toast{Kind: chat.ToastError, Text: msg})
		}),
	)

	return Model{
		cfg:   cfg,
		th:    defaultTheme(),
		orch:  orch,
		otp:   view,
		code:  NewCodeInput(view.Code()),
		queue: queue,
		phase: chat.PhaseChat,
		form:  newServiceForm(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = t.Width
		m.height = t.Height
		return m, nil
	case chatDoneMsg:
		return m.afterAsync(), nil
	case otpDoneMsg:
		m.otpBusy = false
		prev := m.phase
		m = m.afterAsync()
		if prev != chat.PhaseForm && m.phase == chat.PhaseForm {
			m.toasts = appendToast(m.toasts, chat.Toast{Kind: chat.ToastSuccess, Text: identity.MsgVerified})
		}
		return m, nil
	case formDoneMsg:
		m.formBusy = false
		return m.afterAsync(), nil
	case tea.KeyMsg:
		if t.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		switch m.phase {
		case chat.PhaseOTP:
			m, cmd = m.updateOTP(t)
		case chat.PhaseForm:
			m, cmd = m.updateForm(t)
		default:
			m, cmd = m.updateChat(t)
		}
		return m.syncPhase(), cmd
	default:
		return m, nil
	}
}

func (m Model) updateChat(k tea.KeyMsg) (Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyEnter:
		if m.orch.State().Status != chat.StatusReady {
			return m, nil
		}
		line := m.input
		m.input = ""
		return m, m.sendCmd(line)
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(k.Runes)
	case tea.KeyEsc:
		m.input = ""
	}
	return m, nil
}

func (m Model) sendCmd(line string) tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		err := orch.SendMessage(context.Background(), line)
		return chatDoneMsg{err: err}
	}
}

func (m Model) updateOTP(k tea.KeyMsg) (Model, tea.Cmd) {
	sc := m.otp.Screen()

	if sc.Step == flow.StepEmail {
		if m.otpBusy || sc.EmailLoading {
			return m, nil
		}
		switch k.Type {
		case tea.KeyEsc:
			m.orch.CancelForm()
		case tea.KeyEnter:
			m.otpBusy = true
			view, email := m.otp, m.email
			return m, func() tea.Msg {
				view.SubmitEmail(context.Background(), email)
				return otpDoneMsg{}
			}
		case tea.KeyBackspace:
			if r := []rune(m.email); len(r) > 0 {
				m.email = string(r[:len(r)-1])
			}
		case tea.KeyRunes:
			m.email += string(k.Runes)
		}
		return m, nil
	}

	switch {
	case k.Type == tea.KeyEsc:
		if !m.otpBusy {
			m.otp.Back()
		}
		return m, nil
	case k.Type == tea.KeyCtrlR:
		if m.otpBusy || !sc.CanResend {
			return m, nil
		}
		m.otpBusy = true
		view := m.otp
		return m, func() tea.Msg {
			view.Resend(context.Background())
			return otpDoneMsg{}
		}
	case k.Type == tea.KeyEnter:
		buf := m.code.Buffer()
		if m.otpBusy || sc.CodeDisabled || !buf.Complete() {
			return m, nil
		}
		m.otpBusy = true
		view, code := m.otp, buf.Code()
		return m, func() tea.Msg {
			view.SubmitCode(context.Background(), code)
			return otpDoneMsg{}
		}
	}

	m.code.Disabled = sc.CodeDisabled || m.otpBusy
	m.code.HandleKey(k)
	return m.runQueued()
}

// runQueued turns tasks spawned by the OTP view into commands.
func (m Model) runQueued() (Model, tea.Cmd) {
	tasks := m.queue.drain()
	if len(tasks) == 0 {
		return m, nil
	}
	m.otpBusy = true
	cmds := make([]tea.Cmd, 0, len(tasks))
	for _, task := range tasks {
		cmds = append(cmds, func() tea.Msg {
			task()
			return otpDoneMsg{}
		})
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateForm(k tea.KeyMsg) (Model, tea.Cmd) {
	if m.formBusy {
		return m, nil
	}
	switch k.Type {
	case tea.KeyEsc:
		m.orch.CancelForm()
		return m, nil
	case tea.KeyCtrlS:
		m.formBusy = true
		orch, form := m.orch, m.form.form()
		return m, func() tea.Msg {
			_, err := orch.SubmitForm(context.Background(), form)
			return formDoneMsg{err: err}
		}
	}
	m.form = m.form.update(k)
	return m, nil
}

// afterAsync collects notifications and follows phase changes made by a
// finished command.
func (m Model) afterAsync() Model {
	for _, t := range m.orch.DrainToasts() {
		m.toasts = appendToast(m.toasts, t)
	}
	return m.syncPhase()
}

func (m Model) syncPhase() Model {
	p := m.orch.State().Phase
	if p == m.phase {
		return m
	}
	switch p {
	case chat.PhaseOTP:
		m.otp.Reset()
		m.email = ""
		m.otpBusy = false
	case chat.PhaseForm:
		m.form = newServiceForm()
	}
	m.phase = p
	return m
}

func appendToast(toasts []chat.Toast, t chat.Toast) []chat.Toast {
	toasts = append(toasts, t)
	if len(toasts) > maxToasts {
		toasts = toasts[len(toasts)-maxToasts:]
	}
	return toasts
}
