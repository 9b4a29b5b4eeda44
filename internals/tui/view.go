package tui

import (
	"fmt"
	"strings"

	"github.com/mental-health-navigator/high-tea/internals/chat"
	"github.com/mental-health-navigator/high-tea/internals/otp/flow"
	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

const maxServices = 3

func (m Model) View() string {
	st := m.orch.State()

	sections := []string{m.viewHeader(st)}
	if transcript := m.viewTranscript(st); transcript != "" {
		sections = append(sections, transcript)
	}
	if services := m.viewServices(st); services != "" {
		sections = append(sections, services)
	}

	switch m.phase {
	case chat.PhaseOTP:
		sections = append(sections, m.th.Panel.Render(m.viewOTP()))
	case chat.PhaseForm:
		sections = append(sections, m.th.Panel.Render(m.form.view(m.th, st.VerifiedEmail)))
	default:
		sections = append(sections, m.viewChatInput(st))
	}

	if toasts := m.viewToasts(); toasts != "" {
		sections = append(sections, toasts)
	}

	frame := m.th.Frame
	if m.width >= 4 {
		frame = frame.Width(m.width - 2)
	}
	return frame.Render(strings.Join(sections, "\n\n"))
}

func (m Model) viewHeader(st chat.State) string {
	title := m.th.Header.Render("High Tea · mental health service navigator")
	meta := []string{}
	if m.cfg.ServerURL != "" {
		meta = append(meta, m.cfg.ServerURL)
	}
	if st.SessionID != "" {
		meta = append(meta, "session "+st.SessionID)
	}
	if len(meta) == 0 {
		return title
	}
	return title + "\n" + m.th.Muted.Render(strings.Join(meta, " · "))
}

// viewTranscript renders the most recent messages that fit the terminal.
func (m Model) viewTranscript(st chat.State) string {
	if len(st.Messages) == 0 {
		return m.th.Muted.Render("Ask about mental health services near you.")
	}

	var lines []string
	for _, msg := range st.Messages {
		role := m.th.User.Render("You")
		if msg.Role == chat.RoleAssistant {
			role = m.th.Assistant.Render("Navigator")
		}
		lines = append(lines, role+": "+msg.Content)
	}
	if st.Status == chat.StatusSubmitted {
		lines = append(lines, m.th.Muted.Render("Navigator is thinking…"))
	}

	if limit := m.height - 16; limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewServices(st chat.State) string {
	if len(st.Services) == 0 {
		return ""
	}
	lines := []string{m.th.Accent.Render(fmt.Sprintf("Services (best match %.0f%%)", st.Top1Similarity*100))}
	if st.DisambiguationNeeded {
		lines = append(lines, m.th.Alert.Render("Several services could match, tell me more to narrow it down."))
	}
	for i, s := range st.Services {
		if i == maxServices {
			lines = append(lines, m.th.Muted.Render(fmt.Sprintf("…and %d more", len(st.Services)-maxServices)))
			break
		}
		lines = append(lines, "• "+serviceLine(s))
	}
	return m.th.Panel.Render(strings.Join(lines, "\n"))
}

func serviceLine(s upstream.SearchHit) string {
	parts := []string{}
	for _, p := range []*string{s.ServiceName, s.OrganisationName, s.Suburb, s.Phone} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return s.ServiceCampusKey
	}
	return strings.Join(parts, " · ")
}

func (m Model) viewChatInput(st chat.State) string {
	prompt := m.th.Input.Render("> " + m.input + "█")
	help := "[Enter] Send    [Ctrl+C] Quit"
	if st.Status == chat.StatusSubmitted {
		help = "Waiting for a reply…    [Ctrl+C] Quit"
	}
	return prompt + "\n" + m.th.Muted.Render(help)
}

func (m Model) viewOTP() string {
	sc := m.otp.Screen()

	if sc.Step == flow.StepEmail {
		lines := []string{
			m.th.Header.Render("Verify your email to update a service"),
			"",
			"Email: " + m.th.Input.Render(m.email+"█"),
		}
		if sc.EmailLoading || m.otpBusy {
			lines = append(lines, m.th.Muted.Render("Sending code…"))
		}
		if sc.EmailError != "" {
			lines = append(lines, m.th.Danger.Render(sc.EmailError))
		}
		lines = append(lines, "", m.th.Muted.Render("[Enter] Send code    [Esc] Cancel"))
		return strings.Join(lines, "\n")
	}

	code := m.code
	code.Error = sc.CodeInvalid
	code.Disabled = sc.CodeDisabled

	lines := []string{
		m.th.Header.Render("Enter the 6-digit code"),
		m.th.Muted.Render("Sent to " + sc.Email),
		"",
		code.View(m.th),
	}
	switch {
	case sc.CodeLoading:
		lines = append(lines, m.th.Muted.Render("Verifying…"))
	case sc.CodeError != "":
		lines = append(lines, m.th.Danger.Render(sc.CodeError))
	case sc.Verified:
		lines = append(lines, m.th.Success.Render(sc.Message))
	case sc.Message != "":
		lines = append(lines, m.th.Success.Render(sc.Message))
	}

	help := []string{"[0-9] Type or paste"}
	if sc.CanResend {
		help = append(help, "[Ctrl+R] Resend code")
	}
	if sc.CanBack {
		help = append(help, "[Esc] Change email")
	}
	lines = append(lines, "", m.th.Muted.Render(strings.Join(help, "    ")))
	return strings.Join(lines, "\n")
}

func (m Model) viewToasts() string {
	if len(m.toasts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		style := m.th.Success
		if t.Kind == chat.ToastError {
			style = m.th.Danger
		}
		text := t.Text
		if t.Description != "" {
			text += " " + m.th.Muted.Render(t.Description)
		}
		lines = append(lines, style.Render(text))
	}
	return strings.Join(lines, "\n")
}
