package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mental-health-navigator/high-tea/internals/upstream"
)

type formField struct {
	label string
	set   func(f *upstream.ServiceForm, v string)
}

var serviceFormFields = []formField{
	{"Organisation name", func(f *upstream.ServiceForm, v string) { f.OrganisationName = v }},
	{"Service name", func(f *upstream.ServiceForm, v string) { f.ServiceName = v }},
	{"Campus name", func(f *upstream.ServiceForm, v string) { f.CampusName = v }},
	{"Phone", func(f *upstream.ServiceForm, v string) { f.Phone = v }},
	{"Email", func(f *upstream.ServiceForm, v string) { f.Email = v }},
	{"Website", func(f *upstream.ServiceForm, v string) { f.Website = v }},
	{"Address", func(f *upstream.ServiceForm, v string) { f.Address = v }},
	{"Suburb", func(f *upstream.ServiceForm, v string) { f.Suburb = v }},
	{"State", func(f *upstream.ServiceForm, v string) { f.State = v }},
	{"Postcode", func(f *upstream.ServiceForm, v string) { f.Postcode = v }},
	{"Eligibility and description", func(f *upstream.ServiceForm, v string) { f.EligibilityAndDescription = v }},
}

// serviceForm is the editable service intake shown after verification.
type serviceForm struct {
	values []string
	focus  int
}

func newServiceForm() serviceForm {
	return serviceForm{values: make([]string, len(serviceFormFields))}
}

// update edits the focused field. Navigation wraps at both ends.
func (f serviceForm) update(k tea.KeyMsg) serviceForm {
	switch k.Type {
	case tea.KeyTab, tea.KeyDown:
		f.focus = (f.focus + 1) % len(f.values)
	case tea.KeyShiftTab, tea.KeyUp:
		f.focus = (f.focus - 1 + len(f.values)) % len(f.values)
	case tea.KeyBackspace:
		v := []rune(f.values[f.focus])
		if len(v) > 0 {
			f.values = f.with(string(v[:len(v)-1]))
		}
	case tea.KeySpace:
		f.values = f.with(f.values[f.focus] + " ")
	case tea.KeyRunes:
		f.values = f.with(f.values[f.focus] + string(k.Runes))
	}
	return f
}

func (f serviceForm) with(v string) []string {
	values := append([]string(nil), f.values...)
	values[f.focus] = v
	return values
}

func (f serviceForm) form() upstream.ServiceForm {
	var out upstream.ServiceForm
	for i, field := range serviceFormFields {
		field.set(&out, strings.TrimSpace(f.values[i]))
	}
	return out
}

func (f serviceForm) view(th theme, email string) string {
	lines := []string{
		th.Header.Render("Update a service"),
		th.Muted.Render(fmt.Sprintf("Submitting as %s", email)),
		"",
	}
	for i, field := range serviceFormFields {
		label := fmt.Sprintf("%-28s", field.label)
		value := f.values[i]
		if i == f.focus {
			lines = append(lines, th.Accent.Render("> "+label)+th.Input.Render(value+"█"))
			continue
		}
		lines = append(lines, "  "+th.Muted.Render(label)+value)
	}
	lines = append(lines, "", th.Muted.Render("[Tab/Up/Down] Field    [Ctrl+S] Submit    [Esc] Cancel"))
	return strings.Join(lines, "\n")
}
