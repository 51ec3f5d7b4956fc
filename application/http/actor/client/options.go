package client

import (
	"update-transport/application/http"
	"update-transport/transport"
)

type Options struct {
	Send    SendOptions
	Receive ReceiveOptions

	// Resolver and Dialer default to the net package when nil.
	Resolver transport.Resolver
	Dialer   transport.Dialer
}

type SendOptions struct {
	Encode http.EncodeOptions
}

type ReceiveOptions struct {
	Decode http.DecodeOptions

	// UseReceivedReasonPhrase uses reason phrase from response.
	// If false, the reason phrase will instead be filled with default value for the status code.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4-9
	UseReceivedReasonPhrase bool
}

var DefaultOptions = Options{
	Send:    SendOptions{Encode: http.DefaultEncodeOptions},
	Receive: ReceiveOptions{Decode: http.DefaultDecodeOptions, UseReceivedReasonPhrase: true},
}

func (o Options) withDefaults() Options {
	if o.Resolver == nil {
		o.Resolver = transport.DefaultResolver()
	}
	if o.Dialer == nil {
		o.Dialer = transport.DefaultDialer()
	}
	return o
}
