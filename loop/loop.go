// Package loop serializes event handling for the editor client. Network
// readers, timers and UI callbacks hand their work to a Dispatcher so that
// buffer, document and compile state are only ever touched from one
// goroutine.
package loop

import (
	"sync"
)

// Dispatcher runs fn on the owner's event loop.
type Dispatcher interface {
	Dispatch(fn func())
}

// Func adapts a function to a Dispatcher.
type Func func(fn func())

func (f Func) Dispatch(fn func()) { f(fn) }

// Inline runs work on the caller's goroutine. Only for callers that are
// already serialized, such as tests driving a fake transport.
var Inline Dispatcher = Func(func(fn func()) { fn() })

// Queue is a Dispatcher backed by its own goroutine.
type Queue struct {
	work chan func()
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewQueue starts a queue that buffers up to size pending jobs before
// Dispatch blocks.
func NewQueue(size int) *Queue {
	q := &Queue{
		work: make(chan func(), size),
		done: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case fn := <-q.work:
			fn()
		case <-q.done:
			return
		}
	}
}

// Dispatch enqueues fn. Work dispatched after Close is dropped.
func (q *Queue) Dispatch(fn func()) {
	select {
	case <-q.done:
		return
	default:
	}
	select {
	case q.work <- fn:
	case <-q.done:
	}
}

// Sync runs fn on the queue and waits for it to finish.
func (q *Queue) Sync(fn func()) {
	ran := make(chan struct{})
	q.Dispatch(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
	case <-q.done:
	}
}

// Close stops the queue. Pending work that has not started is discarded.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
	q.wg.Wait()
}
