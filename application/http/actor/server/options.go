package server

import (
	"context"
	"net"
	"update-transport/transport"
)

type Options struct {
	// Listen opens the listening socket. Defaults to [transport.Listen].
	Listen func(ctx context.Context, address string) (net.Listener, error)

	// FillReasonPhrase sets the default reason phrase of the status code
	// on responses that have none.
	FillReasonPhrase bool
}

var DefaultOptions = Options{
	Listen:           transport.Listen,
	FillReasonPhrase: true,
}

func (o Options) withDefaults() Options {
	if o.Listen == nil {
		o.Listen = transport.Listen
	}
	return o
}
