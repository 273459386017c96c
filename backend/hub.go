// Package backend is the server side of Code-N-Collab: the collaboration
// hub that sequences edits on shared models, and the compile gateway that
// relays compile requests to the execution service.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
	storeTimeout   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub holds the open documents and the clients attached to them.
type Hub struct {
	store store.Store

	mu   sync.RWMutex
	docs map[protocol.ModelKey]*Document
}

func NewHub(st store.Store) *Hub {
	return &Hub{
		store: st,
		docs:  make(map[protocol.ModelKey]*Document),
	}
}

// client is one collab websocket.
type client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	participant protocol.Participant

	mu     sync.Mutex
	docs   map[protocol.ModelKey]*Document
	closed bool
}

// ServeCollab upgrades the request and serves the collab protocol on it.
func (h *Hub) ServeCollab(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[hub]upgrade: %v", err)
		return
	}
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		participant: protocol.Participant{
			SessionID: uuid.NewString(),
			Username:  name,
		},
		docs: make(map[protocol.ModelKey]*Document),
	}
	glog.Infof("[hub]session %s connected as %q", c.participant.SessionID, name)
	c.sendFrame(protocol.Frame{
		Type:      protocol.TypeHello,
		SessionID: c.participant.SessionID,
		Username:  name,
	})
	go c.writePump()
	go c.readPump()
}

// Document returns the open document for key, if any.
func (h *Hub) Document(key protocol.ModelKey) (*Document, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.docs[key]
	return d, ok
}

// ServeSnapshot answers GET /models/{collection}/{id} with the model's
// current content, from memory or from the store.
func (h *Hub) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := protocol.ModelKey{Collection: vars["collection"], ID: vars["id"]}

	var snap store.Snapshot
	if d, ok := h.Document(key); ok {
		snap = d.Snapshot()
	} else {
		var err error
		snap, err = h.store.LoadModel(r.Context(), key)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		if err != nil {
			glog.Errorf("[hub]load %s: %v", key, err)
			http.Error(w, "could not load model", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// ServeDelete answers DELETE /models/{collection}/{id} by dropping the
// stored copy of a model nobody has open.
func (h *Hub) ServeDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := protocol.ModelKey{Collection: vars["collection"], ID: vars["id"]}
	if _, ok := h.Document(key); ok {
		http.Error(w, "model is open", http.StatusConflict)
		return
	}
	if err := h.store.DeleteModel(r.Context(), key); err != nil {
		glog.Errorf("[hub]delete %s: %v", key, err)
		http.Error(w, "could not delete model", http.StatusInternalServerError)
		return
	}
	glog.Infof("[hub]%s deleted from store", key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) open(ctx context.Context, c *client, f protocol.Frame) {
	if f.Model.Collection == "" || f.Model.ID == "" {
		c.sendFrame(protocol.Frame{Type: protocol.TypeError, ReqID: f.ReqID, Message: "collection and id are required"})
		return
	}

	h.mu.Lock()
	d, ok := h.docs[f.Model]
	if !ok {
		d = h.load(ctx, f)
		h.docs[f.Model] = d
	}
	d.mu.Lock()
	h.mu.Unlock()
	defer d.mu.Unlock()

	if d.clients[c] {
		c.sendFrame(protocol.Frame{Type: protocol.TypeError, ReqID: f.ReqID, Message: "model already open"})
		return
	}
	d.broadcast(protocol.Frame{
		Type:      protocol.TypePresence,
		Model:     d.key,
		SessionID: c.participant.SessionID,
		Username:  c.participant.Username,
		Joined:    true,
	}, nil)
	d.clients[c] = true
	c.attach(d)

	snap := d.snapshot()
	c.sendFrame(protocol.Frame{
		Type:         protocol.TypeOpened,
		ReqID:        f.ReqID,
		Model:        d.key,
		Version:      snap.Version,
		Data:         snap.Elements,
		Ephemeral:    d.ephemeral,
		Participants: d.participants(),
	})
	glog.Infof("[hub]%s opened %s (%d attached)", c.participant.SessionID, d.key, len(d.clients))
}

// load builds the document for an open request: persisted content when
// the model is durable and known, otherwise the request's initial data.
// The caller must hold h.mu.
func (h *Hub) load(ctx context.Context, f protocol.Frame) *Document {
	if !f.Ephemeral {
		snap, err := h.store.LoadModel(ctx, f.Model)
		if err == nil {
			return newDocument(f.Model, false, snap.Version, snap.Elements)
		}
		if !errors.Is(err, store.ErrNotFound) {
			glog.Errorf("[hub]load %s: %v", f.Model, err)
		}
	}
	glog.Infof("[hub]creating %s (ephemeral=%t)", f.Model, f.Ephemeral)
	return newDocument(f.Model, f.Ephemeral, 0, f.Data)
}

// detach removes c from the document. The last participant to leave an
// ephemeral model deletes it; a durable model is saved and then unloaded,
// unless someone reopened it during the save.
func (h *Hub) detach(c *client, d *Document) {
	h.mu.Lock()
	d.mu.Lock()
	if !d.clients[c] {
		d.mu.Unlock()
		h.mu.Unlock()
		return
	}
	delete(d.clients, c)
	d.broadcast(protocol.Frame{
		Type:      protocol.TypePresence,
		Model:     d.key,
		SessionID: c.participant.SessionID,
		Username:  c.participant.Username,
		Joined:    false,
	}, nil)
	if len(d.clients) > 0 {
		d.mu.Unlock()
		h.mu.Unlock()
		return
	}
	if d.ephemeral {
		delete(h.docs, d.key)
		d.mu.Unlock()
		h.mu.Unlock()
		glog.Infof("[hub]%s deleted, no participants left", d.key)
		return
	}
	snap := d.snapshot()
	d.mu.Unlock()
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SaveModel(ctx, snap); err != nil {
		// Stays loaded so the content is not lost.
		glog.Errorf("[hub]save %s: %v", d.key, err)
		return
	}
	glog.Infof("[hub]%s saved at version %d", d.key, snap.Version)

	h.mu.Lock()
	defer h.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 && h.docs[d.key] == d {
		delete(h.docs, d.key)
	}
}

func (h *Hub) submit(c *client, f protocol.Frame) {
	d := c.doc(f.Model)
	if d == nil || f.Op == nil {
		c.sendFrame(protocol.Frame{Type: protocol.TypeError, Model: f.Model, Message: "model not open"})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	op, version, err := d.submit(f.Element, *f.Op, f.Version)
	if err != nil {
		glog.Warningf("[hub]%s rejected op from %s: %v", d.key, c.participant.SessionID, err)
		c.sendFrame(protocol.Frame{Type: protocol.TypeError, Model: d.key, Message: err.Error()})
		return
	}
	d.broadcast(protocol.Frame{
		Type:      protocol.TypeOp,
		Model:     d.key,
		Element:   f.Element,
		Version:   version,
		Op:        &op,
		SessionID: c.participant.SessionID,
		Username:  c.participant.Username,
	}, c)
	c.sendFrame(protocol.Frame{
		Type:      protocol.TypeAck,
		Model:     d.key,
		Element:   f.Element,
		Version:   version,
		ClientSeq: f.ClientSeq,
	})
	glog.V(1).Infof("[hub]%s v%d %v by %s", d.key, version, op, c.participant.SessionID)
}

func (c *client) attach(d *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[d.key] = d
}

func (c *client) doc(key protocol.ModelKey) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docs[key]
}

func (c *client) release(key protocol.ModelKey) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.docs[key]
	delete(c.docs, key)
	return d
}

// sendFrame queues f for the write pump. A client whose buffer is full is
// too slow to keep up and gets disconnected.
func (c *client) sendFrame(f protocol.Frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		glog.Errorf("[hub]encode %s frame: %v", f.Type, err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		glog.Warningf("[hub]session %s too slow, disconnecting", c.participant.SessionID)
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer func() {
		c.mu.Lock()
		docs := make([]*Document, 0, len(c.docs))
		for _, d := range c.docs {
			docs = append(docs, d)
		}
		c.docs = make(map[protocol.ModelKey]*Document)
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
		for _, d := range docs {
			c.hub.detach(c, d)
		}
		c.conn.Close()
		glog.Infof("[hub]session %s disconnected", c.participant.SessionID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var f protocol.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("[hub]session %s read: %v", c.participant.SessionID, err)
			}
			return
		}
		switch f.Type {
		case protocol.TypeOpen:
			c.hub.open(context.Background(), c, f)
		case protocol.TypeOp:
			c.hub.submit(c, f)
		case protocol.TypeClose:
			if d := c.release(f.Model); d != nil {
				c.hub.detach(c, d)
			}
		default:
			c.sendFrame(protocol.Frame{Type: protocol.TypeError, Message: "unknown frame type " + f.Type})
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
