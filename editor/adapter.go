package editor

import (
	"errors"

	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/textop"
)

// ErrAlreadyBound is returned when binding an adapter, or a buffer, that
// already has an active binding.
var ErrAlreadyBound = errors.New("editor: buffer already bound to a shared document")

// SharedTextChannel is a text element kept consistent across participants
// by an external synchronization engine.
type SharedTextChannel interface {
	// Value is the element's current text as seen locally.
	Value() string
	// Apply submits a change made by this participant.
	Apply(op textop.Op) error
	// Subscribe calls fn for each change made by another participant,
	// already transformed against this participant's unsent changes.
	Subscribe(fn func(textop.Op)) (cancel func())
}

// Adapter binds a Buffer to a SharedTextChannel in both directions.
// Keystrokes go out through Apply; remote changes are written into the
// buffer and are never sent back out.
type Adapter struct {
	buf     *Buffer
	channel SharedTextChannel

	bound          bool
	applyingRemote bool
	cancelLocal    func()
	cancelRemote   func()
}

func NewAdapter(buf *Buffer, channel SharedTextChannel) *Adapter {
	return &Adapter{buf: buf, channel: channel}
}

// Bind loads the shared value into the buffer and starts forwarding.
func (a *Adapter) Bind() error {
	if a.bound || (a.buf.binding != nil && a.buf.binding != a) {
		return ErrAlreadyBound
	}
	a.applyingRemote = true
	err := a.buf.SetText(a.channel.Value(), a)
	a.applyingRemote = false
	if err != nil {
		return err
	}

	a.cancelLocal = a.buf.OnChange(a.onLocalChange)
	a.cancelRemote = a.channel.Subscribe(a.onRemoteChange)
	a.buf.binding = a
	a.bound = true
	return nil
}

// Unbind stops forwarding in both directions. Safe to call more than once.
func (a *Adapter) Unbind() {
	if !a.bound {
		return
	}
	a.cancelLocal()
	a.cancelRemote()
	a.buf.binding = nil
	a.bound = false
}

func (a *Adapter) Bound() bool { return a.bound }

func (a *Adapter) onLocalChange(c Change) {
	if a.applyingRemote || c.Origin == a {
		return
	}
	if err := a.channel.Apply(c.Op); err != nil {
		glog.Warningf("[editor]could not forward %v: %v", c.Op, err)
	}
}

func (a *Adapter) onRemoteChange(op textop.Op) {
	a.applyingRemote = true
	defer func() { a.applyingRemote = false }()
	if err := a.buf.Apply(op, a); err != nil {
		glog.Errorf("[editor]remote %v does not fit local buffer: %v", op, err)
	}
}
