// Package editor holds the local text buffer shown by the shell and the
// adapter that keeps it in step with a shared document.
package editor

import (
	"strings"

	"github.com/Anshjain123/Code-N-Collab/textop"
)

// Change is emitted by a Buffer after every edit. Origin is whatever the
// caller passed to Apply; keystroke edits carry a nil Origin.
type Change struct {
	Op     textop.Op
	Origin any
}

// Buffer is the editable text of one editor widget plus its caret. It is
// not safe for concurrent use; the client drives it from one event loop.
type Buffer struct {
	text      []rune
	cursor    int
	listeners map[int]func(Change)
	nextID    int
	binding   *Adapter
}

func NewBuffer(text string) *Buffer {
	return &Buffer{
		text:      []rune(text),
		listeners: make(map[int]func(Change)),
	}
}

func (b *Buffer) Text() string { return string(b.text) }

func (b *Buffer) Len() int { return len(b.text) }

func (b *Buffer) Cursor() int { return b.cursor }

// SetCursor moves the caret, clamped to the text.
func (b *Buffer) SetCursor(i int) {
	b.cursor = min(max(i, 0), len(b.text))
}

// OnChange registers fn for every subsequent edit and returns a function
// that removes it.
func (b *Buffer) OnChange(fn func(Change)) func() {
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() { delete(b.listeners, id) }
}

// Apply performs op on the text, shifts the caret so it stays on the same
// character, and notifies listeners with origin.
func (b *Buffer) Apply(op textop.Op, origin any) error {
	if op.IsNoop() {
		return nil
	}
	next, err := textop.ApplyRunes(b.text, op)
	if err != nil {
		return err
	}
	b.text = next
	b.cursor = textop.TransformIndex(b.cursor, op)
	b.emit(Change{Op: op, Origin: origin})
	return nil
}

// SetText replaces the whole text. Listeners see a delete of the old text
// followed by an insert of the new one.
func (b *Buffer) SetText(s string, origin any) error {
	if s == string(b.text) {
		return nil
	}
	if err := b.Apply(textop.Del(0, len(b.text)), origin); err != nil {
		return err
	}
	if err := b.Apply(textop.Ins(0, s), origin); err != nil {
		return err
	}
	b.cursor = 0
	return nil
}

// Insert types s at the caret and leaves the caret after it.
func (b *Buffer) Insert(s string) error {
	pos := b.cursor
	if err := b.Apply(textop.Ins(pos, s), nil); err != nil {
		return err
	}
	b.cursor = pos + len([]rune(s))
	return nil
}

// Backspace removes the rune before the caret.
func (b *Buffer) Backspace() error {
	if b.cursor == 0 {
		return nil
	}
	return b.Apply(textop.Del(b.cursor-1, 1), nil)
}

// DeleteForward removes the rune under the caret.
func (b *Buffer) DeleteForward() error {
	if b.cursor >= len(b.text) {
		return nil
	}
	return b.Apply(textop.Del(b.cursor, 1), nil)
}

func (b *Buffer) MoveLeft()  { b.SetCursor(b.cursor - 1) }
func (b *Buffer) MoveRight() { b.SetCursor(b.cursor + 1) }

// Home moves the caret to the start of its line.
func (b *Buffer) Home() {
	for b.cursor > 0 && b.text[b.cursor-1] != '\n' {
		b.cursor--
	}
}

// End moves the caret to the end of its line.
func (b *Buffer) End() {
	for b.cursor < len(b.text) && b.text[b.cursor] != '\n' {
		b.cursor++
	}
}

// MoveUp moves the caret one line up, keeping the column where possible.
func (b *Buffer) MoveUp() {
	line, col := b.LineCol()
	if line == 0 {
		b.cursor = 0
		return
	}
	b.cursor = b.offset(line-1, col)
}

// MoveDown moves the caret one line down, keeping the column where
// possible.
func (b *Buffer) MoveDown() {
	line, col := b.LineCol()
	if line == len(b.Lines())-1 {
		b.cursor = len(b.text)
		return
	}
	b.cursor = b.offset(line+1, col)
}

// Lines splits the text on newlines. An empty buffer has one empty line.
func (b *Buffer) Lines() []string {
	return strings.Split(string(b.text), "\n")
}

// LineCol returns the zero-based line and column of the caret.
func (b *Buffer) LineCol() (int, int) {
	line, col := 0, 0
	for _, r := range b.text[:b.cursor] {
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}

func (b *Buffer) offset(line, col int) int {
	i := 0
	for l := 0; l < line && i < len(b.text); i++ {
		if b.text[i] == '\n' {
			l++
		}
	}
	for c := 0; c < col && i < len(b.text) && b.text[i] != '\n'; c++ {
		i++
	}
	return i
}

func (b *Buffer) emit(c Change) {
	for _, l := range b.listeners {
		l(c)
	}
}
