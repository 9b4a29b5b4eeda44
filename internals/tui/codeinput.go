package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mental-health-navigator/high-tea/internals/otp/codeinput"
)

// CodeInput renders a code buffer as a row of cells and feeds it key events.
// Error and Disabled are presentational: a disabled input ignores keys.
type CodeInput struct {
	buf      *codeinput.Buffer
	Error    bool
	Disabled bool
}

func NewCodeInput(buf *codeinput.Buffer) CodeInput {
	return CodeInput{buf: buf}
}

// Buffer returns the underlying buffer.
func (c CodeInput) Buffer() *codeinput.Buffer { return c.buf }

// HandleKey applies k to the buffer and reports whether it was consumed.
func (c CodeInput) HandleKey(k tea.KeyMsg) bool {
	if c.Disabled {
		return false
	}
	switch k.Type {
	case tea.KeyBackspace, tea.KeyDelete:
		c.buf.Backspace()
	case tea.KeyLeft:
		c.buf.Left()
	case tea.KeyRight:
		c.buf.Right()
	case tea.KeyHome:
		c.buf.FocusCell(0)
	case tea.KeyEnd:
		c.buf.FocusCell(c.buf.Len() - 1)
	case tea.KeyRunes:
		// Bracketed paste arrives as a single rune batch
		if k.Paste || len(k.Runes) > 1 {
			c.buf.Paste(string(k.Runes))
			return true
		}
		for _, r := range k.Runes {
			c.buf.Type(r)
		}
	default:
		return false
	}
	return true
}

func (c CodeInput) View(th theme) string {
	cells := c.buf.Cells()
	rendered := make([]string, len(cells))
	for i, v := range cells {
		if v == "" {
			v = " "
		}
		style := th.Cell
		switch {
		case c.Error:
			style = th.CellError
		case !c.Disabled && i == c.buf.Focus():
			style = th.CellFocus
		}
		if c.Disabled {
			v = th.Muted.Render(v)
		}
		rendered[i] = style.Render(v)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// plain renders the cells without styling, for tests and narrow terminals.
func (c CodeInput) plain() string {
	var b strings.Builder
	for _, v := range c.buf.Cells() {
		if v == "" {
			v = "_"
		}
		b.WriteString(v)
	}
	return b.String()
}
