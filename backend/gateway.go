package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/runner"
	"github.com/Anshjain123/Code-N-Collab/store"
)

// Gateway serves the compile socket. Sockets join the room named in their
// URL; a compile request from one socket is announced to the rest of the
// room, run by the executor, and the response goes to the whole room.
type Gateway struct {
	exec    runner.Executor
	store   store.Store
	timeout time.Duration

	mu    sync.RWMutex
	rooms map[string]map[*socket]bool
}

type socket struct {
	conn *websocket.Conn
	room string
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewGateway builds a gateway that gives each run at most timeout.
func NewGateway(exec runner.Executor, st store.Store, timeout time.Duration) *Gateway {
	return &Gateway{
		exec:    exec,
		store:   st,
		timeout: timeout,
		rooms:   make(map[string]map[*socket]bool),
	}
}

// ServeSocket upgrades the request and joins the socket to ?room=.
func (g *Gateway) ServeSocket(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[gateway]upgrade: %v", err)
		return
	}
	s := &socket{conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	g.join(s)
	go s.writePump()
	go g.readPump(s)
}

// RoomSize reports how many sockets are in room.
func (g *Gateway) RoomSize(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

func (g *Gateway) join(s *socket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.rooms[s.room]
	if !ok {
		members = make(map[*socket]bool)
		g.rooms[s.room] = members
	}
	members[s] = true
}

func (g *Gateway) leave(s *socket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms[s.room], s)
	if len(g.rooms[s.room]) == 0 {
		delete(g.rooms, s.room)
	}
}

func (g *Gateway) emit(room string, skip *socket, event string, data any) {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		glog.Errorf("[gateway]encode %s: %v", event, err)
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		glog.Errorf("[gateway]encode %s: %v", event, err)
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for s := range g.rooms[room] {
		if s != skip {
			s.enqueue(payload)
		}
	}
}

func (g *Gateway) compile(s *socket, req protocol.CompileRequest) {
	jobID := ulid.Make().String()
	glog.Infof("[gateway]room %q job %s: %s, %d bytes", s.room, jobID, req.Language, len(req.Code))
	g.emit(s.room, s, protocol.EventCompileStarted, struct{}{})

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	started := time.Now()
	resp := g.exec.Execute(ctx, req)
	elapsed := time.Since(started)

	g.emit(s.room, nil, protocol.EventCompileResponse, resp)

	rec := store.CompileRecord{
		JobID:     jobID,
		Room:      s.room,
		Language:  req.Language,
		Succeeded: resp.Succeeded(),
		Duration:  elapsed,
		CreatedAt: started,
	}
	// The run's context may already be past its deadline.
	logCtx, logCancel := context.WithTimeout(context.Background(), storeTimeout)
	defer logCancel()
	if err := g.store.LogCompile(logCtx, rec); err != nil {
		glog.Warningf("[gateway]log job %s: %v", jobID, err)
	}
}

func (g *Gateway) readPump(s *socket) {
	defer func() {
		g.leave(s)
		s.close()
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("[gateway]read: %v", err)
			}
			return
		}
		switch env.Event {
		case protocol.EventCompileRequest:
			var req protocol.CompileRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				glog.Warningf("[gateway]bad compile request: %v", err)
				g.emit(s.room, nil, protocol.EventCompileResponse, protocol.CompileResponse{Error: "malformed request"})
				continue
			}
			go g.compile(s, req)
		default:
			glog.V(1).Infof("[gateway]ignoring event %q", env.Event)
		}
	}
}

func (s *socket) enqueue(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- payload:
	default:
		s.closed = true
		close(s.send)
	}
}

func (s *socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
