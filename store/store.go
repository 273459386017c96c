// Package store persists shared models that outlive their participants
// and keeps a log of compile runs.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Anshjain123/Code-N-Collab/protocol"
)

var ErrNotFound = errors.New("store: not found")

// Snapshot is the full state of a model at some version.
type Snapshot struct {
	Collection string            `json:"collection"`
	ID         string            `json:"id"`
	Version    int               `json:"version"`
	Elements   map[string]string `json:"elements"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

func (s Snapshot) Key() protocol.ModelKey {
	return protocol.ModelKey{Collection: s.Collection, ID: s.ID}
}

// CompileRecord is one finished compile run.
type CompileRecord struct {
	JobID     string
	Room      string
	Language  string
	Succeeded bool
	Duration  time.Duration
	CreatedAt time.Time
}

// Store persists models. SaveModel never replaces a snapshot with an older
// version.
type Store interface {
	LoadModel(ctx context.Context, key protocol.ModelKey) (Snapshot, error)
	SaveModel(ctx context.Context, snap Snapshot) error
	DeleteModel(ctx context.Context, key protocol.ModelKey) error
	LogCompile(ctx context.Context, rec CompileRecord) error
	Close()
}

// Memory keeps everything in process. Used when no database is configured
// and in tests.
type Memory struct {
	mu       sync.Mutex
	models   map[protocol.ModelKey]Snapshot
	compiles []CompileRecord
}

func NewMemory() *Memory {
	return &Memory{models: make(map[protocol.ModelKey]Snapshot)}
}

func (m *Memory) LoadModel(ctx context.Context, key protocol.ModelKey) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.models[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Elements = copyElements(snap.Elements)
	return snap, nil
}

func (m *Memory) SaveModel(ctx context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.models[snap.Key()]; ok && cur.Version > snap.Version {
		return nil
	}
	snap.Elements = copyElements(snap.Elements)
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	m.models[snap.Key()] = snap
	return nil
}

func (m *Memory) DeleteModel(ctx context.Context, key protocol.ModelKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.models, key)
	return nil
}

func (m *Memory) LogCompile(ctx context.Context, rec CompileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compiles = append(m.compiles, rec)
	return nil
}

// Compiles returns the logged compile runs, oldest first.
func (m *Memory) Compiles() []CompileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompileRecord, len(m.compiles))
	copy(out, m.compiles)
	return out
}

func (m *Memory) Close() {}

func copyElements(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
