// Package collab is the client side of the collaboration backend. A Domain
// is one anonymous connection; through it models are opened and their
// text elements are edited as RealTimeStrings.
//
// All model state is mutated on the Dispatcher given to
// ConnectAnonymously. Callers must read and edit elements from that same
// event loop.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Anshjain123/Code-N-Collab/loop"
	"github.com/Anshjain123/Code-N-Collab/protocol"
)

var (
	ErrDisposed       = errors.New("collab: domain disposed")
	ErrConnectionLost = errors.New("collab: connection lost")
	ErrNoSuchElement  = errors.New("collab: no such element")
)

const writeWait = 10 * time.Second

type options struct {
	dispatcher loop.Dispatcher
	dialer     *websocket.Dialer
}

// Option configures ConnectAnonymously.
type Option func(*options)

// WithDispatcher sets the event loop that model updates run on. The
// default runs them on the connection's reader goroutine.
func WithDispatcher(d loop.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// Domain is one connection to the collaboration backend.
type Domain struct {
	conn       *websocket.Conn
	dispatcher loop.Dispatcher
	sessionID  string
	username   string

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan openResult
	models  map[protocol.ModelKey]*Model
	err     error

	disposed    atomic.Bool
	disposeOnce sync.Once
	done        chan struct{}
}

type openResult struct {
	model *Model
	err   error
}

// ConnectAnonymously dials endpoint (a ws:// or wss:// URL) and joins as
// displayName. No credentials are exchanged.
func ConnectAnonymously(ctx context.Context, endpoint string, displayName string, opts ...Option) (*Domain, error) {
	o := options{
		dispatcher: loop.Inline,
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("collab: bad endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("name", displayName)
	u.RawQuery = q.Encode()

	conn, _, err := o.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("collab: dial %s: %w", u.Redacted(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var hello protocol.Frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("collab: handshake: %w", err)
	}
	if hello.Type != protocol.TypeHello {
		conn.Close()
		return nil, fmt.Errorf("collab: handshake: unexpected %q frame", hello.Type)
	}
	conn.SetReadDeadline(time.Time{})

	d := &Domain{
		conn:       conn,
		dispatcher: o.dispatcher,
		sessionID:  hello.SessionID,
		username:   hello.Username,
		pending:    make(map[string]chan openResult),
		models:     make(map[protocol.ModelKey]*Model),
		done:       make(chan struct{}),
	}
	go d.readLoop()
	glog.Infof("[collab]connected to %s as %s (%s)", u.Host, d.username, d.sessionID)
	return d, nil
}

func (d *Domain) SessionID() string { return d.sessionID }

func (d *Domain) Username() string { return d.username }

// Done is closed when the connection ends, by Dispose or by a network
// failure.
func (d *Domain) Done() <-chan struct{} { return d.done }

// Err reports why the connection ended, or nil while it is open.
func (d *Domain) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Domain) Disposed() bool { return d.disposed.Load() }

// Dispose closes the connection. Only the first call has any effect; every
// later operation on the domain or its models fails with ErrDisposed.
func (d *Domain) Dispose() error {
	var err error
	d.disposeOnce.Do(func() {
		d.disposed.Store(true)
		d.writeMu.Lock()
		d.conn.SetWriteDeadline(time.Now().Add(writeWait))
		d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		d.writeMu.Unlock()
		err = d.conn.Close()
		d.shutdown(ErrDisposed)
		glog.Infof("[collab]disposed session %s", d.sessionID)
	})
	return err
}

// Models returns the model service of this domain.
func (d *Domain) Models() *ModelService {
	return &ModelService{domain: d}
}

func (d *Domain) send(f protocol.Frame) error {
	if d.disposed.Load() {
		return ErrDisposed
	}
	select {
	case <-d.done:
		return d.Err()
	default:
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return d.conn.WriteJSON(f)
}

func (d *Domain) shutdown(cause error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return
	}
	d.err = cause
	close(d.done)
	for id, ch := range d.pending {
		ch <- openResult{err: cause}
		delete(d.pending, id)
	}
}

func (d *Domain) readLoop() {
	for {
		var f protocol.Frame
		if err := d.conn.ReadJSON(&f); err != nil {
			if !d.disposed.Load() {
				glog.Warningf("[collab]connection lost: %v", err)
				d.conn.Close()
				d.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			}
			return
		}
		d.route(f)
	}
}

func (d *Domain) route(f protocol.Frame) {
	switch f.Type {
	case protocol.TypeOpened:
		m := newModel(d, f)
		d.mu.Lock()
		d.models[m.key] = m
		d.mu.Unlock()
		d.resolve(f.ReqID, openResult{model: m})
	case protocol.TypeError:
		if f.ReqID != "" {
			d.resolve(f.ReqID, openResult{err: fmt.Errorf("collab: %s", f.Message)})
		} else {
			glog.Warningf("[collab]server error: %s", f.Message)
		}
	case protocol.TypeOp, protocol.TypeAck, protocol.TypePresence:
		d.mu.Lock()
		m := d.models[f.Model]
		d.mu.Unlock()
		if m == nil {
			glog.V(1).Infof("[collab]%s for unknown model %s", f.Type, f.Model)
			return
		}
		d.dispatcher.Dispatch(func() { m.handle(f) })
	default:
		glog.V(1).Infof("[collab]ignoring %q frame", f.Type)
	}
}

func (d *Domain) resolve(reqID string, r openResult) {
	d.mu.Lock()
	ch, ok := d.pending[reqID]
	delete(d.pending, reqID)
	d.mu.Unlock()
	if ok {
		ch <- r
	}
}

func (d *Domain) forget(key protocol.ModelKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.models, key)
}

// OpenOptions describes a model to open or create.
type OpenOptions struct {
	Collection string
	ID         string
	// Ephemeral models are deleted by the backend once nobody is attached.
	Ephemeral bool
	// Data is the initial value of each text element, used only when the
	// model does not exist yet.
	Data map[string]string
}

// ModelService opens models on a Domain.
type ModelService struct {
	domain *Domain
}

// OpenAutoCreate opens the model addressed by opts, creating it with
// opts.Data when it does not exist.
func (s *ModelService) OpenAutoCreate(ctx context.Context, opts OpenOptions) (*Model, error) {
	d := s.domain
	if d.disposed.Load() {
		return nil, ErrDisposed
	}
	reqID := uuid.NewString()
	ch := make(chan openResult, 1)
	d.mu.Lock()
	if d.err != nil {
		d.mu.Unlock()
		return nil, d.err
	}
	d.pending[reqID] = ch
	d.mu.Unlock()

	err := d.send(protocol.Frame{
		Type:      protocol.TypeOpen,
		ReqID:     reqID,
		Model:     protocol.ModelKey{Collection: opts.Collection, ID: opts.ID},
		Ephemeral: opts.Ephemeral,
		Data:      opts.Data,
	})
	if err != nil {
		d.mu.Lock()
		delete(d.pending, reqID)
		d.mu.Unlock()
		return nil, err
	}

	select {
	case r := <-ch:
		return r.model, r.err
	case <-ctx.Done():
		d.mu.Lock()
		delete(d.pending, reqID)
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}
