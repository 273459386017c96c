package editor

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/Anshjain123/Code-N-Collab/textop"
)

// fakeChannel is a single-participant shared text: Apply updates the
// value, Remote simulates another participant's edit.
type fakeChannel struct {
	value    string
	applied  []textop.Op
	handlers map[int]func(textop.Op)
	next     int
}

func newFakeChannel(value string) *fakeChannel {
	return &fakeChannel{value: value, handlers: make(map[int]func(textop.Op))}
}

func (c *fakeChannel) Value() string { return c.value }

func (c *fakeChannel) Apply(op textop.Op) error {
	v, err := textop.Apply(c.value, op)
	if err != nil {
		return err
	}
	c.value = v
	c.applied = append(c.applied, op)
	return nil
}

func (c *fakeChannel) Subscribe(fn func(textop.Op)) func() {
	id := c.next
	c.next++
	c.handlers[id] = fn
	return func() { delete(c.handlers, id) }
}

func (c *fakeChannel) Remote(op textop.Op) {
	v, err := textop.Apply(c.value, op)
	if err != nil {
		panic(err)
	}
	c.value = v
	for _, h := range c.handlers {
		h(op)
	}
}

func TestBindLoadsSharedValue(t *testing.T) {
	ch := newFakeChannel("int main() {}")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)

	assert.Equal(t, nil, a.Bind())
	assert.Equal(t, "int main() {}", buf.Text())
	// Loading the initial value is not a local edit.
	assert.Equal(t, 0, len(ch.applied))
}

func TestLocalEditsReachSharedDocument(t *testing.T) {
	ch := newFakeChannel("")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)
	assert.Equal(t, nil, a.Bind())

	for _, s := range []string{"p", "r", "i", "n", "t", "(", "1", ")"} {
		assert.Equal(t, nil, buf.Insert(s))
	}
	buf.SetCursor(7)
	assert.Equal(t, nil, buf.Backspace())
	assert.Equal(t, nil, buf.Insert("42"))
	buf.Home()
	assert.Equal(t, nil, buf.DeleteForward())

	assert.Equal(t, "rint(42)", buf.Text())
	assert.Equal(t, buf.Text(), ch.Value())
}

func TestRemoteEditsAreNotEchoed(t *testing.T) {
	ch := newFakeChannel("ab")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)
	assert.Equal(t, nil, a.Bind())

	ch.Remote(textop.Ins(1, "XYZ"))
	ch.Remote(textop.Del(0, 1))

	assert.Equal(t, "XYZb", buf.Text())
	assert.Equal(t, ch.Value(), buf.Text())
	assert.Equal(t, 0, len(ch.applied))
}

func TestRemoteEditsKeepCaret(t *testing.T) {
	ch := newFakeChannel("hello")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)
	assert.Equal(t, nil, a.Bind())
	buf.SetCursor(3)

	ch.Remote(textop.Ins(0, ">>"))
	assert.Equal(t, 5, buf.Cursor())

	ch.Remote(textop.Ins(6, "!"))
	assert.Equal(t, 5, buf.Cursor())
}

func TestBindTwice(t *testing.T) {
	ch := newFakeChannel("")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)
	assert.Equal(t, nil, a.Bind())
	assert.Equal(t, ErrAlreadyBound, a.Bind())

	other := NewAdapter(buf, newFakeChannel(""))
	assert.Equal(t, ErrAlreadyBound, other.Bind())

	a.Unbind()
	a.Unbind()
	assert.Equal(t, nil, other.Bind())
}

func TestUnbindStopsForwarding(t *testing.T) {
	ch := newFakeChannel("")
	buf := NewBuffer("")
	a := NewAdapter(buf, ch)
	assert.Equal(t, nil, a.Bind())
	a.Unbind()

	assert.Equal(t, nil, buf.Insert("x"))
	assert.Equal(t, "", ch.Value())
	assert.Equal(t, 0, len(ch.handlers))
}
