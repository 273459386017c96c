package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/Anshjain123/Code-N-Collab/backend"
	"github.com/Anshjain123/Code-N-Collab/collab"
	"github.com/Anshjain123/Code-N-Collab/editor"
	"github.com/Anshjain123/Code-N-Collab/loop"
	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/runner"
	"github.com/Anshjain123/Code-N-Collab/store"
	"github.com/Anshjain123/Code-N-Collab/textop"
)

type fakeChannel struct {
	value string
}

func (c *fakeChannel) Value() string { return c.value }

func (c *fakeChannel) Apply(op textop.Op) error {
	v, err := textop.Apply(c.value, op)
	c.value = v
	return err
}

func (c *fakeChannel) Subscribe(fn func(textop.Op)) func() { return func() {} }

type fakeBackend struct {
	opened   []collab.OpenOptions
	openErr  error
	disposed int
	channel  *fakeChannel
}

func (b *fakeBackend) Open(ctx context.Context, opts collab.OpenOptions) (editor.SharedTextChannel, error) {
	b.opened = append(b.opened, opts)
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.channel = &fakeChannel{value: opts.Data[TextElement]}
	return b.channel, nil
}

func (b *fakeBackend) Dispose() error {
	b.disposed++
	return nil
}

type dialRecord struct {
	endpoint, name string
}

func fakeDialer(b *fakeBackend, err error, rec *dialRecord) Dialer {
	return func(ctx context.Context, endpoint, name string) (Backend, error) {
		rec.endpoint, rec.name = endpoint, name
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func TestParseParams(t *testing.T) {
	p, err := ParseAddress("https://codencollab.dev/editor?room=%20abc123%20&name=alice%20")
	assert.Equal(t, nil, err)
	assert.Equal(t, Params{Room: "abc123", Name: "alice"}, p)

	u, _ := url.Parse("/editor")
	assert.Equal(t, Params{}, ParseParams(u))
}

func TestStartOpensRoomDocument(t *testing.T) {
	b := &fakeBackend{}
	var rec dialRecord
	p, _ := ParseAddress("/editor?room=abc123&name=alice")
	c := NewConnector(Config{
		Endpoint: "ws://collab.local/collab",
		Params:   p,
		Initial:  "// hi",
		Dial:     fakeDialer(b, nil, &rec),
	}, editor.NewBuffer(""))

	assert.Equal(t, nil, c.Start(context.Background()))
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, "alice", rec.name)
	assert.Equal(t, "ws://collab.local/collab", rec.endpoint)

	assert.Equal(t, 1, len(b.opened))
	assert.Equal(t, "Code-n-Collab", b.opened[0].Collection)
	assert.Equal(t, "abc123", b.opened[0].ID)
	assert.Equal(t, true, b.opened[0].Ephemeral)
	assert.Equal(t, "// hi", b.opened[0].Data["text"])
}

func TestStopDisposesOnce(t *testing.T) {
	b := &fakeBackend{}
	buf := editor.NewBuffer("")
	c := NewConnector(Config{Params: Params{Room: "abc123", Name: "alice"}, Dial: fakeDialer(b, nil, &dialRecord{})}, buf)
	assert.Equal(t, nil, c.Start(context.Background()))

	c.Stop()
	c.Stop()
	assert.Equal(t, 1, b.disposed)
	assert.Equal(t, Stopped, c.State())

	// The buffer is free again and no longer forwards.
	assert.Equal(t, nil, buf.Insert("x"))
	assert.Equal(t, "", b.channel.value)
}

func TestConnectFailureStaysConnecting(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewConnector(Config{Dial: fakeDialer(nil, boom, &dialRecord{})}, editor.NewBuffer(""))

	err := c.Start(context.Background())
	var cerr *ConnectionError
	assert.Equal(t, true, errors.As(err, &cerr))
	assert.Equal(t, "connect", cerr.Op)
	assert.Equal(t, true, errors.Is(err, boom))
	assert.Equal(t, Connecting, c.State())

	c.Stop()
}

func TestOpenFailureStaysConnecting(t *testing.T) {
	b := &fakeBackend{openErr: errors.New("no such collection")}
	c := NewConnector(Config{Params: Params{Room: "r"}, Dial: fakeDialer(b, nil, &dialRecord{})}, editor.NewBuffer(""))

	err := c.Start(context.Background())
	var cerr *ConnectionError
	assert.Equal(t, true, errors.As(err, &cerr))
	assert.Equal(t, "open", cerr.Op)
	assert.Equal(t, Connecting, c.State())

	c.Stop()
	assert.Equal(t, 1, b.disposed)
}

func TestStartAfterStop(t *testing.T) {
	b := &fakeBackend{}
	c := NewConnector(Config{Dial: fakeDialer(b, nil, &dialRecord{})}, editor.NewBuffer(""))
	c.Stop()
	assert.Equal(t, ErrStopped, c.Start(context.Background()))
	assert.Equal(t, 1, b.disposed)
}

// heldDispatcher queues work until run is called.
type heldDispatcher struct {
	work []func()
}

func (d *heldDispatcher) Dispatch(fn func()) { d.work = append(d.work, fn) }

func (d *heldDispatcher) run() {
	work := d.work
	d.work = nil
	for _, fn := range work {
		fn()
	}
}

func TestTimedOutStartLeavesBufferUnbound(t *testing.T) {
	b := &fakeBackend{}
	buf := editor.NewBuffer("")
	held := &heldDispatcher{}
	c := NewConnector(Config{
		Params:     Params{Room: "abc123", Name: "alice"},
		Initial:    "// hi",
		Dial:       fakeDialer(b, nil, &dialRecord{}),
		Dispatcher: held,
	}, buf)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Start(ctx)
	var cerr *ConnectionError
	assert.Equal(t, true, errors.As(err, &cerr))
	assert.Equal(t, true, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, Connecting, c.State())

	// The loop gets around to the queued work only now.
	held.run()
	assert.Equal(t, "", buf.Text())
	assert.Equal(t, nil, buf.Insert("x"))
	assert.Equal(t, "// hi", b.channel.value)

	c.Stop()
	assert.Equal(t, 1, b.disposed)
}

func TestTwoEditorsShareRoom(t *testing.T) {
	st := store.NewMemory()
	hub := backend.NewHub(st)
	srv := httptest.NewServer(backend.NewRouter(hub, backend.NewGateway(runner.NewLocal(), st, time.Second)))
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/collab"

	type editorSide struct {
		queue *loop.Queue
		buf   *editor.Buffer
		conn  *Connector
	}
	open := func(name string) editorSide {
		q := loop.NewQueue(64)
		buf := editor.NewBuffer("")
		c := NewConnector(Config{
			Endpoint:   endpoint,
			Params:     Params{Room: "abc123", Name: name},
			Dial:       CollabDialer(collab.WithDispatcher(q)),
			Dispatcher: q,
		}, buf)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.Equal(t, nil, c.Start(ctx))
		return editorSide{queue: q, buf: buf, conn: c}
	}
	alice := open("alice")
	bob := open("bob")
	defer alice.queue.Close()
	defer bob.queue.Close()

	alice.queue.Sync(func() {
		alice.buf.Insert("print(2+2)")
	})

	text := func(s editorSide) string {
		var v string
		s.queue.Sync(func() { v = s.buf.Text() })
		return v
	}
	deadline := time.Now().Add(5 * time.Second)
	for text(bob) != "print(2+2)" {
		if time.Now().After(deadline) {
			t.Fatalf("bob sees %q", text(bob))
		}
		time.Sleep(10 * time.Millisecond)
	}

	alice.conn.Stop()
	bob.conn.Stop()
	deadline = time.Now().Add(5 * time.Second)
	for {
		if _, ok := hub.Document(protocol.ModelKey{Collection: Collection, ID: "abc123"}); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("ephemeral document survived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
