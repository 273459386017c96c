// Package compile drives the compile request/response cycle between the
// editor and the execution service.
package compile

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/loop"
	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/state"
)

const (
	// FailureMessage is shown for any response without an output.
	FailureMessage = "Oops something went wrong"
	// TimeoutMessage is shown when no response arrives in time.
	TimeoutMessage = "Compilation timed out"

	DefaultTimeout = 30 * time.Second
)

// ErrBusy is returned by Trigger while a compile is outstanding.
var ErrBusy = errors.New("compile: already compiling")

// Phase is the state of the cycle.
type Phase int

const (
	Idle Phase = iota
	Compiling
)

func (p Phase) String() string {
	if p == Compiling {
		return "compiling"
	}
	return "idle"
}

// Transport carries compile events to and from the execution service.
type Transport interface {
	Emit(event string, data any) error
	On(event string, fn func(json.RawMessage)) (cancel func())
}

type Config struct {
	Store     *state.Store
	Transport Transport
	// Code returns the text to compile. It is called on the event loop.
	Code func() string
	// Dispatcher is the event loop inbound events and timeouts run on.
	Dispatcher loop.Dispatcher
	// Timeout bounds how long the cycle stays Compiling. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

// Cycle is the Idle/Compiling state machine. Only one request is ever
// outstanding. All methods except Stop must run on the Dispatcher's loop.
type Cycle struct {
	cfg Config

	phase      Phase
	generation int
	timer      *time.Timer

	mu      sync.Mutex
	cancels []func()
}

func NewCycle(cfg Config) *Cycle {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = loop.Inline
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Cycle{cfg: cfg}
}

// Start subscribes to the transport's inbound events.
func (c *Cycle) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels = append(c.cancels,
		c.cfg.Transport.On(protocol.EventCompileStarted, func(json.RawMessage) { c.onStarted() }),
		c.cfg.Transport.On(protocol.EventCompileResponse, c.onResponse),
	)
}

// Stop unsubscribes and disarms the timeout. A pending request is
// abandoned.
func (c *Cycle) Stop() {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	c.cfg.Dispatcher.Dispatch(func() {
		c.disarm()
		c.generation++
	})
}

func (c *Cycle) Phase() Phase { return c.phase }

// Trigger raises the compile flag and, when nothing is in flight, sends
// the current code, language and stdin. While a compile is running
// (locally or announced by another participant) it returns ErrBusy and
// sends nothing.
func (c *Cycle) Trigger() error {
	tools := c.cfg.Store.Dispatch(state.Action{Kind: state.SetCompileOn}).Tools
	if c.phase == Compiling || tools.IsLoading {
		return ErrBusy
	}

	store := c.cfg.Store
	store.Dispatch(state.Action{Kind: state.SetOutput, Value: ""})
	store.Dispatch(state.Action{Kind: state.ClearNotification})
	store.Dispatch(state.Action{Kind: state.SetLoading})

	req := protocol.CompileRequest{
		Language: tools.Language,
		Code:     c.cfg.Code(),
		Input:    tools.Input,
	}
	c.phase = Compiling
	c.generation++
	c.arm(c.generation)

	if err := c.cfg.Transport.Emit(protocol.EventCompileRequest, req); err != nil {
		glog.Warningf("[compile]send request: %v", err)
		c.finish(protocol.CompileResponse{Error: err.Error()})
		return err
	}
	glog.V(1).Infof("[compile]requested %s, %d bytes", req.Language, len(req.Code))
	return nil
}

func (c *Cycle) arm(gen int) {
	c.disarm()
	c.timer = time.AfterFunc(c.cfg.Timeout, func() {
		c.cfg.Dispatcher.Dispatch(func() { c.onTimeout(gen) })
	})
}

func (c *Cycle) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cycle) onStarted() {
	c.cfg.Store.Dispatch(state.Action{Kind: state.SetLoading})
}

func (c *Cycle) onResponse(raw json.RawMessage) {
	var resp protocol.CompileResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		glog.Warningf("[compile]undecodable response: %v", err)
		resp = protocol.CompileResponse{}
	}
	c.finish(resp)
}

func (c *Cycle) finish(resp protocol.CompileResponse) {
	c.disarm()
	c.phase = Idle

	store := c.cfg.Store
	store.Dispatch(state.Action{Kind: state.SetCompileOff})
	store.Dispatch(state.Action{Kind: state.ResetLoading})
	if resp.Succeeded() {
		store.Dispatch(state.Action{Kind: state.SetOutput, Value: *resp.Output})
		store.Dispatch(state.Action{Kind: state.NotifyOutputSuccess})
		return
	}
	store.Dispatch(state.Action{Kind: state.SetOutput, Value: FailureMessage})
	store.Dispatch(state.Action{Kind: state.NotifyOutputError})
}

func (c *Cycle) onTimeout(gen int) {
	if c.phase != Compiling || gen != c.generation {
		return
	}
	glog.Warningf("[compile]no response after %s", c.cfg.Timeout)
	c.timer = nil
	c.phase = Idle

	store := c.cfg.Store
	store.Dispatch(state.Action{Kind: state.SetCompileOff})
	store.Dispatch(state.Action{Kind: state.ResetLoading})
	store.Dispatch(state.Action{Kind: state.SetOutput, Value: TimeoutMessage})
	store.Dispatch(state.Action{Kind: state.NotifyOutputError})
}
