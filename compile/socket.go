package compile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/Anshjain123/Code-N-Collab/loop"
	"github.com/Anshjain123/Code-N-Collab/protocol"
)

const writeWait = 10 * time.Second

var ErrClosed = errors.New("compile: socket closed")

var _ Transport = (*Socket)(nil)

// Socket is a Transport over the compile websocket. Inbound events are
// handed to the Dispatcher in arrival order.
type Socket struct {
	conn       *websocket.Conn
	dispatcher loop.Dispatcher

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]map[int]func(json.RawMessage)
	nextID   int

	done      chan struct{}
	closeOnce sync.Once
}

// DialSocket joins room on the compile socket at endpoint, for example
// "ws://localhost:8080/socket".
func DialSocket(ctx context.Context, endpoint, room string, d loop.Dispatcher) (*Socket, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("compile: bad endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("room", room)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("compile: dial %s: %w", u.Redacted(), err)
	}
	if d == nil {
		d = loop.Inline
	}
	s := &Socket{
		conn:       conn,
		dispatcher: d,
		handlers:   make(map[string]map[int]func(json.RawMessage)),
		done:       make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Emit sends one event.
func (s *Socket) Emit(event string, data any) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}

// On registers fn for event and returns a function that removes it.
func (s *Socket) On(event string, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]func(json.RawMessage))
	}
	s.handlers[event][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers[event], id)
	}
}

// Done is closed once the socket stops reading.
func (s *Socket) Done() <-chan struct{} { return s.done }

// Close closes the socket. It is safe to call more than once.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Socket) readLoop() {
	defer close(s.done)
	defer s.Close()
	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("[compile]read: %v", err)
			}
			return
		}
		s.mu.Lock()
		fns := make([]func(json.RawMessage), 0, len(s.handlers[env.Event]))
		for _, fn := range s.handlers[env.Event] {
			fns = append(fns, fn)
		}
		s.mu.Unlock()
		if len(fns) == 0 {
			glog.V(2).Infof("[compile]no handler for %q", env.Event)
			continue
		}
		data := env.Data
		s.dispatcher.Dispatch(func() {
			for _, fn := range fns {
				fn(data)
			}
		})
	}
}
