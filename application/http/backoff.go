package http

import (
	"time"

	"github.com/pkg/errors"
)

const DefaultSmallestInterval = time.Minute

// ExponentialBackoff hands out retry intervals. Each interval is used
// three times before it doubles, and it never grows past the maximum.
type ExponentialBackoff struct {
	smallestInterval time.Duration
	maxInterval      time.Duration
	tryCount         int
	iteration        int
}

// NewExponentialBackoff creates a backoff capped at maxInterval.
// A tryCount of zero or less means the number of tries is only bounded
// by reaching the cap.
func NewExponentialBackoff(maxInterval time.Duration, tryCount int) *ExponentialBackoff {
	b := &ExponentialBackoff{
		smallestInterval: DefaultSmallestInterval,
		tryCount:         tryCount,
	}
	b.SetMaxInterval(maxInterval)
	return b
}

func (b *ExponentialBackoff) SetSmallestInterval(d time.Duration) {
	b.smallestInterval = d
	if b.maxInterval < d {
		b.maxInterval = d
	}
}

func (b *ExponentialBackoff) SetMaxInterval(d time.Duration) {
	b.maxInterval = max(d, b.smallestInterval)
}

func (b *ExponentialBackoff) SetTryCount(count int) { b.tryCount = count }

func (b *ExponentialBackoff) SetIteration(iteration int) { b.iteration = iteration }

func (b *ExponentialBackoff) SmallestInterval() time.Duration { return b.smallestInterval }
func (b *ExponentialBackoff) MaxInterval() time.Duration      { return b.maxInterval }
func (b *ExponentialBackoff) TryCount() int                   { return b.tryCount }
func (b *ExponentialBackoff) Iteration() int                  { return b.iteration }

func (b *ExponentialBackoff) Reset() { b.iteration = 0 }

// NextInterval returns how long to wait before the next try.
// ErrMaxRetry is returned once the tries are used up.
func (b *ExponentialBackoff) NextInterval() (time.Duration, error) {
	b.iteration++

	if b.tryCount > 0 && b.iteration > b.tryCount {
		return 0, errors.Wrapf(ErrMaxRetry, "exceeded %d tries", b.tryCount)
	}

	current := b.smallestInterval
	for count := 3; count < b.iteration; count += 3 {
		next := min(current*2, b.maxInterval)
		if b.tryCount <= 0 && next == current {
			return 0, errors.Wrapf(ErrMaxRetry, "exceeded maximum interval %s", b.maxInterval)
		}
		current = next
	}

	return current, nil
}
