package backend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/store"
	"github.com/Anshjain123/Code-N-Collab/textop"
)

// MaxHistory is how many sequenced ops a document remembers for
// transforming late edits. Edits based on an older version are rejected.
const MaxHistory = 1024

var (
	ErrStaleVersion = errors.New("backend: base version no longer available")
	ErrBadVersion   = errors.New("backend: base version from the future")
)

type sequenced struct {
	element string
	op      textop.Op
}

// Document is the authoritative copy of one model. Every edit goes through
// Submit, which orders it after all edits already applied.
type Document struct {
	key       protocol.ModelKey
	ephemeral bool

	mu       sync.Mutex
	elements map[string][]rune
	version  int
	history  []sequenced // history[i] produced version base+i+1
	base     int
	clients  map[*client]bool
	opened   time.Time
}

func newDocument(key protocol.ModelKey, ephemeral bool, version int, data map[string]string) *Document {
	d := &Document{
		key:       key,
		ephemeral: ephemeral,
		elements:  make(map[string][]rune, len(data)),
		version:   version,
		base:      version,
		clients:   make(map[*client]bool),
		opened:    time.Now(),
	}
	for k, v := range data {
		d.elements[k] = []rune(v)
	}
	return d
}

// submit transforms op, made against baseVersion, past every op sequenced
// since, applies it and returns the transformed op and the new version.
// The caller must hold d.mu.
func (d *Document) submit(element string, op textop.Op, baseVersion int) (textop.Op, int, error) {
	if baseVersion > d.version {
		return op, d.version, fmt.Errorf("%w: %d > %d", ErrBadVersion, baseVersion, d.version)
	}
	if baseVersion < d.base {
		return op, d.version, fmt.Errorf("%w: %d < %d", ErrStaleVersion, baseVersion, d.base)
	}
	for _, h := range d.history[baseVersion-d.base:] {
		if h.element == element {
			_, op = textop.Transform(h.op, op)
		}
	}

	text, err := textop.ApplyRunes(d.elements[element], op)
	if err != nil {
		return op, d.version, err
	}
	d.elements[element] = text
	d.version++
	d.history = append(d.history, sequenced{element: element, op: op})
	if len(d.history) > MaxHistory {
		drop := len(d.history) - MaxHistory
		d.history = append([]sequenced(nil), d.history[drop:]...)
		d.base += drop
	}
	return op, d.version, nil
}

// Submit is the locking form of submit.
func (d *Document) Submit(element string, op textop.Op, baseVersion int) (textop.Op, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submit(element, op, baseVersion)
}

// snapshot copies the current state. The caller must hold d.mu.
func (d *Document) snapshot() store.Snapshot {
	elements := make(map[string]string, len(d.elements))
	for k, v := range d.elements {
		elements[k] = string(v)
	}
	return store.Snapshot{
		Collection: d.key.Collection,
		ID:         d.key.ID,
		Version:    d.version,
		Elements:   elements,
		UpdatedAt:  time.Now(),
	}
}

func (d *Document) Snapshot() store.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot()
}

func (d *Document) participants() []protocol.Participant {
	out := make([]protocol.Participant, 0, len(d.clients))
	for c := range d.clients {
		out = append(out, c.participant)
	}
	return out
}

// broadcast sends f to every attached client except skip. The caller must
// hold d.mu so that all clients see frames in sequence order.
func (d *Document) broadcast(f protocol.Frame, skip *client) {
	for c := range d.clients {
		if c != skip {
			c.sendFrame(f)
		}
	}
}
