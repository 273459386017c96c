package main

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// drainMsg asks the shell to run the work queued on its uiLoop.
type drainMsg struct{}

// uiLoop is a loop.Dispatcher whose work runs inside the bubbletea update
// loop, so network events and key presses are handled on one goroutine.
// Dispatch never blocks and is safe to call from Update itself.
type uiLoop struct {
	mu      sync.Mutex
	pending []func()
	woken   bool
	send    func(tea.Msg)
}

func newUILoop() *uiLoop {
	return &uiLoop{}
}

// attach starts delivering wake-ups through send.
func (l *uiLoop) attach(send func(tea.Msg)) {
	l.mu.Lock()
	l.send = send
	wake := len(l.pending) > 0 && !l.woken
	if wake {
		l.woken = true
	}
	l.mu.Unlock()
	if wake {
		go send(drainMsg{})
	}
}

func (l *uiLoop) Dispatch(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	send := l.send
	wake := send != nil && !l.woken
	if wake {
		l.woken = true
	}
	l.mu.Unlock()
	if wake {
		go send(drainMsg{})
	}
}

// drain runs everything queued so far, in order. Work queued while
// draining waits for the next wake-up.
func (l *uiLoop) drain() {
	l.mu.Lock()
	work := l.pending
	l.pending = nil
	l.woken = false
	l.mu.Unlock()
	for _, fn := range work {
		fn()
	}
}
