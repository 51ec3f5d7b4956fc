package events

import "sync/atomic"

// Token tells a completion whether the operation that issued it is still
// wanted. Owners hand out a fresh Token per transaction and cancel it on
// teardown, so late completions can bail out before touching state.
type Token struct {
	cancelled atomic.Bool
}

func NewToken() *Token { return &Token{} }

// CancelledToken returns a token that is already cancelled.
func CancelledToken() *Token {
	t := &Token{}
	t.cancelled.Store(true)
	return t
}

func (t *Token) Cancel() { t.cancelled.Store(true) }

func (t *Token) Cancelled() bool { return t.cancelled.Load() }
