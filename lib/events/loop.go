package events

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var ErrCanceled = errors.New("operation canceled")

// EventLoop is a single threaded reactor.
// Every callback it runs is executed on the goroutine that called Run.
// Blocking work is started with Async, which runs it elsewhere and
// delivers the completion back to the loop.
type EventLoop struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []func()
	pending int
	stopped bool

	clock clock.Clock
}

func NewEventLoop(clock clock.Clock) *EventLoop {
	l := &EventLoop{clock: clock}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *EventLoop) Clock() clock.Clock { return l.clock }

// Post schedules fn to run on a future turn of the loop.
// It is safe to call from any goroutine.
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
}

// Async runs work on a new goroutine. The function returned by work is
// posted to the loop as the completion. Until then the operation counts
// as outstanding, so Run does not return while it is in flight.
func (l *EventLoop) Async(work func() func()) {
	l.begin()
	go func() {
		completion := work()
		l.complete(completion)
	}()
}

func (l *EventLoop) begin() {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
}

// complete queues fn and releases one outstanding operation in one step,
// so Run never observes an empty loop in between.
func (l *EventLoop) complete(fn func()) {
	l.mu.Lock()
	l.pending--
	if fn != nil {
		l.queue = append(l.queue, fn)
	}
	l.mu.Unlock()
	l.cond.Signal()
}

// Run processes callbacks until Stop is called or there is no work left.
func (l *EventLoop) Run() {
	l.mu.Lock()
	l.stopped = false
	l.mu.Unlock()

	for {
		fn, ok := l.next()
		if !ok {
			return
		}
		fn()
	}
}

func (l *EventLoop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.queue) == 0 && l.pending > 0 && !l.stopped {
		l.cond.Wait()
	}

	if l.stopped {
		l.stopped = false
		return nil, false
	}
	if len(l.queue) == 0 {
		return nil, false
	}

	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Stop makes Run return once the running callback finishes.
// Queued work is kept and runs on the next call to Run.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}
