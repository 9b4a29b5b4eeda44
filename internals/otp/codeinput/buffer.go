// Package codeinput models a fixed-length verification code entry: one cell per
// digit, a focused cell, and paste splitting. It holds no rendering concerns;
// terminal or web widgets drive it with key events and read it back.
package codeinput

import (
	"strings"
	"unicode/utf8"
)

// DefaultLength is the number of cells used when no positive length is given.
const DefaultLength = 6

// Buffer is the ordered sequence of single-digit cells behind a code input.
// Each cell holds "" or one digit 0-9. A Buffer is not safe for concurrent use;
// it is owned by the widget that renders it.
type Buffer struct {
	cells    []string
	focus    int
	selected bool

	// lastCompleted remembers the code onComplete last fired for. It is cleared
	// as soon as the buffer becomes incomplete again.
	lastCompleted string

	onChange   func(code string)
	onComplete func(code string)
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithOnChange registers a callback invoked with the current code after every mutation.
func WithOnChange(fn func(code string)) Option {
	return func(b *Buffer) { b.onChange = fn }
}

// WithOnComplete registers a callback invoked once per distinct fully-filled code.
func WithOnComplete(fn func(code string)) Option {
	return func(b *Buffer) { b.onComplete = fn }
}

// New returns an empty buffer with length cells, focused on the first cell.
func New(length int, opts ...Option) *Buffer {
	if length < 1 {
		length = DefaultLength
	}
	b := &Buffer{cells: make([]string, length)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Len returns the number of cells.
func (b *Buffer) Len() int { return len(b.cells) }

// Focus returns the index of the focused cell.
func (b *Buffer) Focus() int { return b.focus }

// Selected reports whether the focused cell's content is selected, so the next
// digit overwrites it.
func (b *Buffer) Selected() bool { return b.selected }

// Cells returns a copy of the cell contents in index order.
func (b *Buffer) Cells() []string {
	out := make([]string, len(b.cells))
	copy(out, b.cells)
	return out
}

// Code returns the concatenation of all cells in index order.
func (b *Buffer) Code() string { return strings.Join(b.cells, "") }

// Complete reports whether every cell holds a digit.
func (b *Buffer) Complete() bool {
	for _, c := range b.cells {
		if c == "" {
			return false
		}
	}
	return true
}

// FocusCell moves focus to cell i and selects its content. Out of range indexes are ignored.
func (b *Buffer) FocusCell(i int) {
	if i < 0 || i >= len(b.cells) {
		return
	}
	b.focus = i
	b.selected = true
}

// Input applies a change event for cell index. Multi-character values are
// truncated to their first character before validation; an empty value clears
// the cell. It reports whether the value was accepted.
func (b *Buffer) Input(index int, value string) bool {
	if index < 0 || index >= len(b.cells) {
		return false
	}
	if value == "" {
		b.set(index, "")
		return true
	}
	r, _ := utf8.DecodeRuneInString(value)
	if !isDigit(r) {
		return false
	}
	b.set(index, string(r))
	if index < len(b.cells)-1 {
		b.FocusCell(index + 1)
	} else {
		b.focus = index
		b.selected = false
	}
	return true
}

// Type enters r into the focused cell.
func (b *Buffer) Type(r rune) bool {
	return b.Input(b.focus, string(r))
}

// Backspace clears the focused cell when it holds a digit. On an empty cell it
// moves focus to the previous cell and clears that one instead. On an empty
// first cell it does nothing.
func (b *Buffer) Backspace() {
	if b.cells[b.focus] == "" && b.focus > 0 {
		b.focus--
		b.selected = false
		b.set(b.focus, "")
		return
	}
	b.set(b.focus, "")
}

// Left moves focus one cell to the left without touching content.
func (b *Buffer) Left() {
	if b.focus > 0 {
		b.FocusCell(b.focus - 1)
	}
}

// Right moves focus one cell to the right without touching content.
func (b *Buffer) Right() {
	if b.focus < len(b.cells)-1 {
		b.FocusCell(b.focus + 1)
	}
}

// Paste fills cells from index 0 with the digits found in text, ignoring every
// other character. Cells past the pasted digits keep their content. Focus lands
// on the cell after the last pasted digit, or on the last cell when the paste
// fills the buffer. Text without digits is ignored.
func (b *Buffer) Paste(text string) {
	digits := make([]string, 0, len(b.cells))
	for _, r := range text {
		if len(digits) == len(b.cells) {
			break
		}
		if isDigit(r) {
			digits = append(digits, string(r))
		}
	}
	if len(digits) == 0 {
		return
	}

	changed := false
	for i, d := range digits {
		if b.cells[i] != d {
			b.cells[i] = d
			changed = true
		}
	}
	b.FocusCell(min(len(digits), len(b.cells)-1))
	if changed {
		b.notify()
	}
}

// Clear empties every cell and focuses the first one.
func (b *Buffer) Clear() {
	changed := false
	for i := range b.cells {
		if b.cells[i] != "" {
			b.cells[i] = ""
			changed = true
		}
	}
	b.focus = 0
	b.selected = false
	if changed {
		b.notify()
	}
}

func (b *Buffer) set(i int, v string) {
	if b.cells[i] == v {
		return
	}
	b.cells[i] = v
	b.notify()
}

func (b *Buffer) notify() {
	code := b.Code()
	if b.onChange != nil {
		b.onChange(code)
	}
	if !b.Complete() {
		b.lastCompleted = ""
		return
	}
	if code == b.lastCompleted {
		return
	}
	b.lastCompleted = code
	if b.onComplete != nil {
		b.onComplete(code)
	}
}

// IsCode reports whether s is exactly length ASCII digits.
func IsCode(s string, length int) bool {
	if length < 1 {
		length = DefaultLength
	}
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
