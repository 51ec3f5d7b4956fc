package events

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

type Timer struct {
	loop *EventLoop

	t    *clock.Timer
	wait *timerWait
}

type timerWait struct {
	handler   func(err error)
	fired     atomic.Bool
	cancelled atomic.Bool
}

func NewTimer(loop *EventLoop) *Timer {
	return &Timer{loop: loop}
}

// AsyncWait calls handler on the loop once d has elapsed.
// A wait that is still pending is cancelled first.
func (t *Timer) AsyncWait(d time.Duration, handler func(err error)) {
	t.Cancel()

	w := &timerWait{handler: handler}
	t.wait = w

	t.loop.begin()
	t.t = t.loop.clock.AfterFunc(d, func() {
		if !w.fired.CompareAndSwap(false, true) {
			return
		}
		t.loop.complete(func() {
			if w.cancelled.Load() {
				w.handler(ErrCanceled)
				return
			}
			w.handler(nil)
		})
	})
}

// Cancel completes a pending wait with ErrCanceled.
// Owners must call it when they are torn down.
func (t *Timer) Cancel() {
	w := t.wait
	if w == nil {
		return
	}
	t.wait = nil

	w.cancelled.Store(true)
	if !w.fired.CompareAndSwap(false, true) {
		// The clock callback won and will report the cancellation itself.
		return
	}

	t.t.Stop()
	t.loop.complete(func() { w.handler(ErrCanceled) })
}
