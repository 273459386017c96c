package collab

import (
	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/textop"
)

// RealTimeString is one shared text element of a Model.
type RealTimeString struct {
	model    *Model
	key      string
	value    []rune
	handlers map[int]func(textop.Op)
	nextID   int
}

func (s *RealTimeString) Key() string { return s.key }

// Value is the text including local edits not yet acknowledged.
func (s *RealTimeString) Value() string { return string(s.value) }

// Apply makes a local edit and submits it to the backend.
func (s *RealTimeString) Apply(op textop.Op) error {
	if s.model.domain.Disposed() {
		return ErrDisposed
	}
	if op.IsNoop() {
		return nil
	}
	next, err := textop.ApplyRunes(s.value, op)
	if err != nil {
		return err
	}
	s.value = next
	return s.model.submit(s.key, op)
}

// Insert is Apply(textop.Ins(pos, text)).
func (s *RealTimeString) Insert(pos int, text string) error {
	return s.Apply(textop.Ins(pos, text))
}

// Remove is Apply(textop.Del(pos, n)).
func (s *RealTimeString) Remove(pos, n int) error {
	return s.Apply(textop.Del(pos, n))
}

// Subscribe calls fn for every edit made by another participant.
func (s *RealTimeString) Subscribe(fn func(textop.Op)) func() {
	id := s.nextID
	s.nextID++
	s.handlers[id] = fn
	return func() { delete(s.handlers, id) }
}

func (s *RealTimeString) applyRemote(op textop.Op) {
	if op.IsNoop() {
		return
	}
	next, err := textop.ApplyRunes(s.value, op)
	if err != nil {
		glog.Errorf("[collab]%s/%s: remote %v: %v", s.model.key, s.key, op, err)
		return
	}
	s.value = next
	for _, fn := range s.handlers {
		fn(op)
	}
}
