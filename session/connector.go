// Package session connects an editor buffer to the shared document of a
// room for as long as the editor is open.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/collab"
	"github.com/Anshjain123/Code-N-Collab/editor"
	"github.com/Anshjain123/Code-N-Collab/loop"
)

const (
	// Collection holds every room's document.
	Collection = "Code-n-Collab"
	// TextElement is the key of the code element inside a room's document.
	TextElement = "text"
)

var ErrStopped = errors.New("session: connector stopped")

// ConnectionError means the backend could not be reached or the room's
// document could not be opened.
type ConnectionError struct {
	Op  string // "connect" or "open"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: could not %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// State is where a Connector is in its lifecycle.
type State int

const (
	Connecting State = iota
	Connected
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "stopped"
	}
}

// Backend is an open connection to the collaboration service.
type Backend interface {
	Open(ctx context.Context, opts collab.OpenOptions) (editor.SharedTextChannel, error)
	Dispose() error
}

// Dialer connects anonymously to endpoint as name.
type Dialer func(ctx context.Context, endpoint, name string) (Backend, error)

// CollabBackend is the Backend over a collab.Domain.
type CollabBackend struct {
	Domain *collab.Domain

	mu    sync.Mutex
	model *collab.Model
}

// Model is the last model opened through Open, or nil.
func (b *CollabBackend) Model() *collab.Model {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.model
}

func (b *CollabBackend) Open(ctx context.Context, opts collab.OpenOptions) (editor.SharedTextChannel, error) {
	m, err := b.Domain.Models().OpenAutoCreate(ctx, opts)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.model = m
	b.mu.Unlock()
	return m.ElementAt(TextElement)
}

func (b *CollabBackend) Dispose() error {
	return b.Domain.Dispose()
}

// CollabDialer dials with collab.ConnectAnonymously.
func CollabDialer(opts ...collab.Option) Dialer {
	return func(ctx context.Context, endpoint, name string) (Backend, error) {
		d, err := collab.ConnectAnonymously(ctx, endpoint, name, opts...)
		if err != nil {
			return nil, err
		}
		return &CollabBackend{Domain: d}, nil
	}
}

// Config describes one session.
type Config struct {
	Endpoint string
	Params   Params
	// Initial seeds the document when the room does not exist yet.
	Initial string
	Dial    Dialer
	// Dispatcher is the event loop that owns the buffer.
	Dispatcher loop.Dispatcher
}

// Connector owns the connection for one mounted editor: Start acquires
// it, Stop releases it exactly once.
type Connector struct {
	cfg Config
	buf *editor.Buffer

	mu      sync.Mutex
	state   State
	backend Backend
	adapter *editor.Adapter

	stopOnce sync.Once
}

func NewConnector(cfg Config, buf *editor.Buffer) *Connector {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = loop.Inline
	}
	return &Connector{cfg: cfg, buf: buf}
}

func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Backend returns the live connection, or nil before Start succeeds.
func (c *Connector) Backend() Backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend
}

// Start connects, opens the room's document and binds the buffer to it.
// On failure the error is logged and returned as a *ConnectionError and
// the connector stays Connecting; nothing is retried. Start must not be
// called from the Dispatcher's own loop.
func (c *Connector) Start(ctx context.Context) error {
	b, err := c.cfg.Dial(ctx, c.cfg.Endpoint, c.cfg.Params.Name)
	if err != nil {
		return c.fail("connect", err)
	}

	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		b.Dispose()
		return ErrStopped
	}
	c.backend = b
	c.mu.Unlock()

	ch, err := b.Open(ctx, collab.OpenOptions{
		Collection: Collection,
		ID:         c.cfg.Params.Room,
		Ephemeral:  true,
		Data:       map[string]string{TextElement: c.cfg.Initial},
	})
	if err != nil {
		return c.fail("open", err)
	}

	var bindErr error
	adapter := editor.NewAdapter(c.buf, ch)
	ran := make(chan struct{})
	c.cfg.Dispatcher.Dispatch(func() {
		defer close(ran)
		if ctx.Err() != nil || c.State() == Stopped {
			bindErr = ErrStopped
			return
		}
		bindErr = adapter.Bind()
	})
	select {
	case <-ran:
	case <-ctx.Done():
		// The bind may still be queued; the loop runs this after it.
		c.cfg.Dispatcher.Dispatch(adapter.Unbind)
		return c.fail("open", ctx.Err())
	}
	if bindErr == ErrStopped {
		return ErrStopped
	}
	if bindErr != nil {
		return c.fail("open", bindErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Stopped {
		c.cfg.Dispatcher.Dispatch(adapter.Unbind)
		return ErrStopped
	}
	c.adapter = adapter
	c.state = Connected
	glog.Infof("[session]joined room %q as %q", c.cfg.Params.Room, c.cfg.Params.Name)
	return nil
}

func (c *Connector) fail(op string, err error) error {
	cerr := &ConnectionError{Op: op, Err: err}
	glog.Errorf("[session]room %q: %v", c.cfg.Params.Room, cerr)
	return cerr
}

// Stop unbinds the buffer and disposes the connection. Only the first call
// does anything; it may be made from any goroutine.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.state = Stopped
		b, adapter := c.backend, c.adapter
		c.mu.Unlock()

		if adapter != nil {
			c.cfg.Dispatcher.Dispatch(adapter.Unbind)
		}
		if b != nil {
			if err := b.Dispose(); err != nil {
				glog.Warningf("[session]dispose: %v", err)
			}
		}
		glog.Infof("[session]left room %q", c.cfg.Params.Room)
	})
}
