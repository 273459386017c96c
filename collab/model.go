package collab

import (
	"fmt"
	"sort"

	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/textop"
)

// Model is an open shared document: a set of text elements plus the
// participants attached to it.
//
// Local edits are sent one at a time. While one is waiting for its ack the
// rest queue up, and every remote edit is transformed past them before it
// is applied locally.
type Model struct {
	domain *Domain
	key    protocol.ModelKey

	version  int
	elements map[string]*RealTimeString

	inflight  *pendingOp
	queued    []*pendingOp
	clientSeq int

	participants map[string]protocol.Participant
	activity     map[string]int
	presence     map[int]func(protocol.Participant, bool)
	nextID       int
	closed       bool
}

type pendingOp struct {
	element string
	op      textop.Op
	seq     int
}

func newModel(d *Domain, f protocol.Frame) *Model {
	m := &Model{
		domain:       d,
		key:          f.Model,
		version:      f.Version,
		elements:     make(map[string]*RealTimeString),
		participants: make(map[string]protocol.Participant),
		activity:     make(map[string]int),
		presence:     make(map[int]func(protocol.Participant, bool)),
	}
	for key, value := range f.Data {
		m.elements[key] = &RealTimeString{
			model:    m,
			key:      key,
			value:    []rune(value),
			handlers: make(map[int]func(textop.Op)),
		}
	}
	for _, p := range f.Participants {
		m.participants[p.SessionID] = p
	}
	return m
}

func (m *Model) Collection() string { return m.key.Collection }

func (m *Model) ID() string { return m.key.ID }

// Version is the last server version this participant has seen.
func (m *Model) Version() int { return m.version }

// ElementAt returns the text element stored under key.
func (m *Model) ElementAt(key string) (*RealTimeString, error) {
	s, ok := m.elements[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrNoSuchElement, key, m.key)
	}
	return s, nil
}

// Participants lists the sessions attached to the model, sorted by name.
func (m *Model) Participants() []protocol.Participant {
	out := make([]protocol.Participant, 0, len(m.participants))
	for _, p := range m.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// Activity returns the number of sequenced edits per session id.
func (m *Model) Activity() map[string]int {
	out := make(map[string]int, len(m.activity))
	for k, v := range m.activity {
		out[k] = v
	}
	return out
}

// OnPresence calls fn whenever a participant joins (true) or leaves
// (false).
func (m *Model) OnPresence(fn func(protocol.Participant, bool)) func() {
	id := m.nextID
	m.nextID++
	m.presence[id] = fn
	return func() { delete(m.presence, id) }
}

// Pending reports how many local edits have not been acknowledged.
func (m *Model) Pending() int {
	n := len(m.queued)
	if m.inflight != nil {
		n++
	}
	return n
}

// Close detaches from the model. The domain stays open.
func (m *Model) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.domain.forget(m.key)
	return m.domain.send(protocol.Frame{Type: protocol.TypeClose, Model: m.key})
}

func (m *Model) submit(element string, op textop.Op) error {
	m.clientSeq++
	p := &pendingOp{element: element, op: op, seq: m.clientSeq}
	if m.inflight != nil {
		m.queued = append(m.queued, p)
		return nil
	}
	return m.sendOp(p)
}

func (m *Model) sendOp(p *pendingOp) error {
	m.inflight = p
	op := p.op
	return m.domain.send(protocol.Frame{
		Type:      protocol.TypeOp,
		Model:     m.key,
		Element:   p.element,
		Version:   m.version,
		Op:        &op,
		ClientSeq: p.seq,
	})
}

func (m *Model) handle(f protocol.Frame) {
	if m.closed {
		return
	}
	switch f.Type {
	case protocol.TypeAck:
		m.handleAck(f)
	case protocol.TypeOp:
		m.handleRemote(f)
	case protocol.TypePresence:
		p := protocol.Participant{SessionID: f.SessionID, Username: f.Username}
		if f.Joined {
			m.participants[p.SessionID] = p
		} else {
			delete(m.participants, p.SessionID)
		}
		for _, fn := range m.presence {
			fn(p, f.Joined)
		}
	}
}

func (m *Model) handleAck(f protocol.Frame) {
	if m.inflight == nil || m.inflight.seq != f.ClientSeq {
		glog.Warningf("[collab]%s: unexpected ack %d", m.key, f.ClientSeq)
		return
	}
	m.version = f.Version
	m.activity[m.domain.sessionID]++
	m.inflight = nil
	if len(m.queued) == 0 {
		return
	}
	next := m.queued[0]
	m.queued = m.queued[1:]
	if err := m.sendOp(next); err != nil {
		glog.Warningf("[collab]%s: send queued op: %v", m.key, err)
	}
}

func (m *Model) handleRemote(f protocol.Frame) {
	if f.Op == nil {
		return
	}
	op := *f.Op
	if m.inflight != nil && m.inflight.element == f.Element {
		op, m.inflight.op = textop.Transform(op, m.inflight.op)
	}
	for _, p := range m.queued {
		if p.element == f.Element {
			op, p.op = textop.Transform(op, p.op)
		}
	}
	m.version = f.Version
	m.activity[f.SessionID]++

	s, ok := m.elements[f.Element]
	if !ok {
		s = &RealTimeString{model: m, key: f.Element, handlers: make(map[int]func(textop.Op))}
		m.elements[f.Element] = s
	}
	s.applyRemote(op)
}
