package compile

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/Anshjain123/Code-N-Collab/backend"
	"github.com/Anshjain123/Code-N-Collab/loop"
	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/runner"
	"github.com/Anshjain123/Code-N-Collab/state"
	"github.com/Anshjain123/Code-N-Collab/store"
)

type emitted struct {
	event string
	data  any
}

type fakeTransport struct {
	emits    []emitted
	emitErr  error
	handlers map[string][]func(json.RawMessage)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeTransport) Emit(event string, data any) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emits = append(f.emits, emitted{event, data})
	return nil
}

func (f *fakeTransport) On(event string, fn func(json.RawMessage)) func() {
	f.handlers[event] = append(f.handlers[event], fn)
	return func() { delete(f.handlers, event) }
}

func (f *fakeTransport) deliver(event, raw string) {
	for _, fn := range f.handlers[event] {
		fn(json.RawMessage(raw))
	}
}

func newCycle(tr Transport, code string) (*Cycle, *state.Store) {
	st := state.NewStore(state.Initial())
	c := NewCycle(Config{
		Store:     st,
		Transport: tr,
		Code:      func() string { return code },
		Timeout:   time.Hour,
	})
	c.Start()
	return c, st
}

func TestTriggerSendsRequest(t *testing.T) {
	tr := newFakeTransport()
	c, st := newCycle(tr, "print(2+2)")
	defer c.Stop()
	st.Dispatch(state.Action{Kind: state.SetLanguage, Value: "python"})
	st.Dispatch(state.Action{Kind: state.SetInput, Value: "7"})
	st.Dispatch(state.Action{Kind: state.SetOutput, Value: "stale"})

	assert.Equal(t, nil, c.Trigger())
	assert.Equal(t, Compiling, c.Phase())
	assert.Equal(t, 1, len(tr.emits))
	assert.Equal(t, protocol.EventCompileRequest, tr.emits[0].event)
	assert.Equal(t, protocol.CompileRequest{Language: "python", Code: "print(2+2)", Input: "7"}, tr.emits[0].data)

	tools := st.Tools()
	assert.Equal(t, true, tools.IsLoading)
	assert.Equal(t, true, tools.NowCompile)
	assert.Equal(t, "", tools.Output)
}

func TestSingleRequestInFlight(t *testing.T) {
	tr := newFakeTransport()
	c, _ := newCycle(tr, "x")
	defer c.Stop()

	assert.Equal(t, nil, c.Trigger())
	assert.Equal(t, ErrBusy, c.Trigger())
	assert.Equal(t, ErrBusy, c.Trigger())
	assert.Equal(t, 1, len(tr.emits))
}

func TestResponseWithOutput(t *testing.T) {
	tr := newFakeTransport()
	c, st := newCycle(tr, "print(2+2)")
	defer c.Stop()

	c.Trigger()
	tr.deliver(protocol.EventCompileResponse, `{"output":"4"}`)

	tools := st.Tools()
	assert.Equal(t, Idle, c.Phase())
	assert.Equal(t, "4", tools.Output)
	assert.Equal(t, false, tools.IsLoading)
	assert.Equal(t, false, tools.NowCompile)
	assert.Equal(t, state.ToastSuccess, tools.Notification)

	// Idle again, so the next trigger goes out.
	assert.Equal(t, nil, c.Trigger())
	assert.Equal(t, 2, len(tr.emits))
}

func TestResponseWithEmptyOutputSucceeds(t *testing.T) {
	tr := newFakeTransport()
	c, st := newCycle(tr, "")
	defer c.Stop()

	c.Trigger()
	tr.deliver(protocol.EventCompileResponse, `{"output":""}`)
	assert.Equal(t, "", st.Tools().Output)
	assert.Equal(t, state.ToastSuccess, st.Tools().Notification)
}

func TestResponseWithoutOutputFails(t *testing.T) {
	for _, raw := range []string{`{}`, `{"error":"compilation failed"}`, `null`, `"garbage"`} {
		tr := newFakeTransport()
		c, st := newCycle(tr, "x")
		c.Trigger()
		tr.deliver(protocol.EventCompileResponse, raw)

		tools := st.Tools()
		assert.Equal(t, FailureMessage, tools.Output)
		assert.Equal(t, state.ToastError, tools.Notification)
		assert.Equal(t, false, tools.IsLoading)
		assert.Equal(t, Idle, c.Phase())
		c.Stop()
	}
}

func TestStartedFromPeerBlocksTrigger(t *testing.T) {
	tr := newFakeTransport()
	c, st := newCycle(tr, "x")
	defer c.Stop()

	tr.deliver(protocol.EventCompileStarted, `{}`)
	assert.Equal(t, true, st.Tools().IsLoading)
	assert.Equal(t, ErrBusy, c.Trigger())
	assert.Equal(t, 0, len(tr.emits))

	tr.deliver(protocol.EventCompileResponse, `{"output":"hi"}`)
	assert.Equal(t, "hi", st.Tools().Output)
	assert.Equal(t, false, st.Tools().NowCompile)
	assert.Equal(t, nil, c.Trigger())
}

func TestEmitFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.emitErr = errors.New("socket closed")
	c, st := newCycle(tr, "x")
	defer c.Stop()

	assert.Equal(t, tr.emitErr, c.Trigger())
	assert.Equal(t, Idle, c.Phase())
	assert.Equal(t, false, st.Tools().IsLoading)
	assert.Equal(t, state.ToastError, st.Tools().Notification)
}

func TestTimeout(t *testing.T) {
	q := loop.NewQueue(16)
	defer q.Close()

	tr := newFakeTransport()
	st := state.NewStore(state.Initial())
	c := NewCycle(Config{
		Store:      st,
		Transport:  tr,
		Code:       func() string { return "for(;;);" },
		Dispatcher: q,
		Timeout:    20 * time.Millisecond,
	})
	defer c.Stop()
	q.Sync(func() {
		c.Start()
		assert.Equal(t, nil, c.Trigger())
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		var phase Phase
		q.Sync(func() { phase = c.Phase() })
		if phase == Idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cycle never timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tools := st.Tools()
	assert.Equal(t, TimeoutMessage, tools.Output)
	assert.Equal(t, false, tools.IsLoading)
	assert.Equal(t, false, tools.NowCompile)
	assert.Equal(t, state.ToastError, tools.Notification)

	// A late response is still applied to an idle cycle.
	q.Sync(func() { tr.deliver(protocol.EventCompileResponse, `{"output":"late"}`) })
	assert.Equal(t, "late", st.Tools().Output)
}

func TestSocketRoundTrip(t *testing.T) {
	exec := runner.NewLocal()
	exec.Languages = map[string]runner.Language{
		"cpp": {File: "main.cpp", Run: []string{"cat", "{file}"}},
	}
	st := store.NewMemory()
	gw := backend.NewGateway(exec, st, 5*time.Second)
	srv := httptest.NewServer(backend.NewRouter(backend.NewHub(st), gw))
	defer srv.Close()
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"

	q := loop.NewQueue(16)
	defer q.Close()
	sock, err := DialSocket(t.Context(), endpoint, "abc123", q)
	if err != nil {
		t.Fatal(err)
	}
	defer sock.Close()

	tools := state.NewStore(state.Initial())
	c := NewCycle(Config{
		Store:      tools,
		Transport:  sock,
		Code:       func() string { return "hello" },
		Dispatcher: q,
		Timeout:    5 * time.Second,
	})
	defer c.Stop()
	q.Sync(c.Start)

	deadline := time.Now().Add(5 * time.Second)
	for gw.RoomSize("abc123") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("socket never joined")
		}
		time.Sleep(5 * time.Millisecond)
	}

	q.Sync(func() { assert.Equal(t, nil, c.Trigger()) })
	for {
		var phase Phase
		q.Sync(func() { phase = c.Phase() })
		if phase == Idle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no response")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, false, tools.Tools().IsLoading)
	assert.Equal(t, "hello", tools.Tools().Output)
	assert.Equal(t, state.ToastSuccess, tools.Tools().Notification)
	for len(st.Compiles()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("run was not logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
