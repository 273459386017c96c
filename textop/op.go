package textop

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrOutOfRange is returned when an operation addresses text beyond the
// end of the document it is applied to.
var ErrOutOfRange = errors.New("textop: position out of range")

// Kind says what an Op does to the document.
type Kind string

const (
	Noop   Kind = "noop"
	Insert Kind = "insert"
	Delete Kind = "delete"
)

// Op is a single edit on a text document. Positions and lengths count
// runes, not bytes, so that every participant agrees on offsets no matter
// how the text is encoded on their side.
type Op struct {
	Kind Kind   `json:"kind"`
	Pos  int    `json:"pos"`
	Text string `json:"text,omitempty"` // inserted text, Insert only
	Len  int    `json:"len,omitempty"`  // runes removed, Delete only
}

// Ins builds an insert of text at pos.
func Ins(pos int, text string) Op {
	if text == "" {
		return Op{Kind: Noop}
	}
	return Op{Kind: Insert, Pos: pos, Text: text}
}

// Del builds a delete of n runes starting at pos.
func Del(pos, n int) Op {
	if n <= 0 {
		return Op{Kind: Noop}
	}
	return Op{Kind: Delete, Pos: pos, Len: n}
}

// IsNoop reports whether applying the op leaves any document unchanged.
func (op Op) IsNoop() bool {
	switch op.Kind {
	case Insert:
		return op.Text == ""
	case Delete:
		return op.Len <= 0
	default:
		return true
	}
}

// Size is the number of runes inserted (positive) or removed (negative).
func (op Op) Size() int {
	switch op.Kind {
	case Insert:
		return utf8.RuneCountInString(op.Text)
	case Delete:
		return -op.Len
	default:
		return 0
	}
}

func (op Op) String() string {
	switch op.Kind {
	case Insert:
		return fmt.Sprintf("ins(%d,%q)", op.Pos, op.Text)
	case Delete:
		return fmt.Sprintf("del(%d,%d)", op.Pos, op.Len)
	default:
		return "noop"
	}
}

// Validate checks that the op can be applied to a document of n runes.
func (op Op) Validate(n int) error {
	switch op.Kind {
	case Noop:
		return nil
	case Insert:
		if op.Pos < 0 || op.Pos > n {
			return fmt.Errorf("%w: insert at %d in %d runes", ErrOutOfRange, op.Pos, n)
		}
	case Delete:
		if op.Pos < 0 || op.Len < 0 || op.Pos+op.Len > n {
			return fmt.Errorf("%w: delete %d at %d in %d runes", ErrOutOfRange, op.Len, op.Pos, n)
		}
	default:
		return fmt.Errorf("textop: unknown kind %q", op.Kind)
	}
	return nil
}

// ApplyRunes applies op to doc and returns the resulting runes. doc is not
// modified.
func ApplyRunes(doc []rune, op Op) ([]rune, error) {
	if err := op.Validate(len(doc)); err != nil {
		return nil, err
	}
	switch op.Kind {
	case Insert:
		ins := []rune(op.Text)
		out := make([]rune, 0, len(doc)+len(ins))
		out = append(out, doc[:op.Pos]...)
		out = append(out, ins...)
		return append(out, doc[op.Pos:]...), nil
	case Delete:
		out := make([]rune, 0, len(doc)-op.Len)
		out = append(out, doc[:op.Pos]...)
		return append(out, doc[op.Pos+op.Len:]...), nil
	default:
		out := make([]rune, len(doc))
		copy(out, doc)
		return out, nil
	}
}

// Apply applies op to s.
func Apply(s string, op Op) (string, error) {
	if op.IsNoop() {
		return s, nil
	}
	out, err := ApplyRunes([]rune(s), op)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// TransformIndex moves a caret position so that it points at the same
// character after op has been applied. Carets sitting exactly on an
// insertion point stay in front of the inserted text.
func TransformIndex(i int, op Op) int {
	switch op.Kind {
	case Insert:
		if op.Pos < i {
			return i + op.Size()
		}
	case Delete:
		switch {
		case i <= op.Pos:
		case i >= op.Pos+op.Len:
			return i - op.Len
		default:
			return op.Pos
		}
	}
	return i
}
