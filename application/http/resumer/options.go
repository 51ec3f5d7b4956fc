package resumer

import (
	"time"
	"update-transport/application/http/actor/client"
)

type Options struct {
	Client client.Options

	// MaxInterval and TryCount bound the backoff between resume attempts.
	MaxInterval time.Duration
	TryCount    int

	// SmallestInterval replaces the one minute floor of the backoff when
	// set. Meant for tests.
	SmallestInterval time.Duration
}

var DefaultOptions = Options{
	Client:      client.DefaultOptions,
	MaxInterval: time.Minute,
	TryCount:    10,
}
