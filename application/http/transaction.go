package http

import (
	"io"
	"log/slog"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
)

type (
	// ResponseHandler receives the outcome of a client side milestone.
	// The response is nil only if the exchange failed before headers arrived.
	ResponseHandler func(resp *IncomingResponse, err error)

	// RequestHandler receives the outcome of a server side milestone.
	// The request is passed even on error, to identify the exchange.
	RequestHandler func(req *IncomingRequest, err error)

	ReplyFinishedHandler  func(err error)
	SwitchProtocolHandler func(rw iolib.AsyncReadWriter, err error)
)

// ClientInterface is implemented by the client and by wrappers around it.
type ClientInterface interface {
	AsyncCall(req *OutgoingRequest, headerHandler, bodyHandler ResponseHandler) error
	MakeBodyAsyncReader(resp *IncomingResponse) (iolib.AsyncReader, error)
	Cancel()
}

type protocolSwitcher interface {
	SwitchProtocol(resp *IncomingResponse) (iolib.AsyncReadWriter, error)
}

// aborter ends an exchange with a given error instead of a cancellation.
type aborter interface {
	Abort(err error)
}

func abort(owner iolib.Canceller, err error) {
	if a, ok := owner.(aborter); ok {
		a.Abort(err)
		return
	}
	owner.Cancel()
}

// StreamInterface is the server side owner of one exchange.
type StreamInterface interface {
	MakeBodyAsyncReader(req *IncomingRequest) (iolib.AsyncReader, error)
	MakeResponse(req *IncomingRequest) (*OutgoingResponse, error)
	AsyncReply(resp *OutgoingResponse, handler ReplyFinishedHandler) error
	AsyncSwitchProtocol(resp *OutgoingResponse, handler SwitchProtocolHandler) error
	Cancel()
}

type transaction struct {
	headers Headers
}

// GetHeader returns ErrNoSuchHeader when name is absent.
func (t *transaction) GetHeader(name string) (string, error) {
	v, ok := t.headers.Get(name)
	if !ok {
		return "", errors.Wrap(ErrNoSuchHeader, name)
	}
	return v, nil
}

func (t *transaction) Header(name string) (string, bool) { return t.headers.Get(name) }

func (t *transaction) Headers() map[string]string { return t.headers.All() }

// BodySource is where an outgoing request takes its body from.
// It is either a [BodyGenerator] or an [AsyncBodyGenerator].
type BodySource interface{ isBodySource() }

// BodyGenerator produces a fresh reader of the body each time it is called,
// so a request can be sent more than once.
type BodyGenerator func() (io.Reader, error)

type AsyncBodyGenerator func() (iolib.AsyncReader, error)

func (BodyGenerator) isBodySource()      {}
func (AsyncBodyGenerator) isBodySource() {}

type OutgoingRequest struct {
	transaction

	method  Method
	address BrokenDownURL
	parsed  bool
	body    BodySource
}

func NewOutgoingRequest() *OutgoingRequest {
	return &OutgoingRequest{}
}

func (r *OutgoingRequest) SetMethod(m Method) { r.method = m }
func (r *OutgoingRequest) Method() Method     { return r.method }

func (r *OutgoingRequest) SetAddress(url string) error {
	address, err := BreakDownURL(url)
	if err != nil {
		r.parsed = false
		return errors.Wrap(err, "setting address")
	}
	r.address, r.parsed = address, true
	return nil
}

func (r *OutgoingRequest) Address() BrokenDownURL { return r.address }
func (r *OutgoingRequest) Protocol() string       { return r.address.Protocol }
func (r *OutgoingRequest) Host() string           { return r.address.Host }
func (r *OutgoingRequest) Port() int              { return r.address.Port }
func (r *OutgoingRequest) Path() string           { return r.address.Path }
func (r *OutgoingRequest) URL() string            { return r.address.String() }

// Ready reports whether the request can be sent.
func (r *OutgoingRequest) Ready() error {
	if r.method == "" {
		return errors.Wrap(ErrRequestNotReady, "method is not set")
	}
	if !r.parsed || r.address.Protocol == "" || r.address.Host == "" || r.address.Port <= 0 {
		return errors.Wrap(ErrRequestNotReady, "address is not set")
	}
	return nil
}

func (r *OutgoingRequest) SetHeader(name, value string) { r.headers.Set(name, value) }
func (r *OutgoingRequest) DelHeader(name string)        { r.headers.Del(name) }

// HeaderFields returns the headers as field lines for encoding.
func (r *OutgoingRequest) HeaderFields() []Field { return r.headers.Fields() }

func (r *OutgoingRequest) SetBodyGenerator(gen BodyGenerator)           { r.body = gen }
func (r *OutgoingRequest) SetAsyncBodyGenerator(gen AsyncBodyGenerator) { r.body = gen }
func (r *OutgoingRequest) ClearBody()                                   { r.body = nil }

// Body returns the body source, or nil when the request has no body.
func (r *OutgoingRequest) Body() BodySource { return r.body }

// Clone returns a copy sharing the body source.
func (r *OutgoingRequest) Clone() *OutgoingRequest {
	clone := *r
	clone.headers = r.headers.clone()
	return &clone
}

type IncomingResponse struct {
	transaction

	statusCode    int
	statusMessage string

	client ClientInterface
	tok    *events.Token
	logger *slog.Logger
}

// NewIncomingResponse is called by client implementations. tok must be
// the token of the exchange the response belongs to.
func NewIncomingResponse(
	client ClientInterface,
	tok *events.Token,
	logger *slog.Logger,
	statusCode int,
	statusMessage string,
	headers Headers,
) *IncomingResponse {
	return &IncomingResponse{
		transaction:   transaction{headers: headers},
		statusCode:    statusCode,
		statusMessage: statusMessage,
		client:        client,
		tok:           tok,
		logger:        logger,
	}
}

func (r *IncomingResponse) StatusCode() int       { return r.statusCode }
func (r *IncomingResponse) StatusMessage() string { return r.statusMessage }

// MakeBodyAsyncReader hands the body over to the caller.
// It is only valid from within the header handler.
func (r *IncomingResponse) MakeBodyAsyncReader() (iolib.AsyncReader, error) {
	if r.tok.Cancelled() {
		return nil, errors.Wrap(ErrStreamCancelled, "making reader for a response that doesn't exist anymore")
	}
	return r.client.MakeBodyAsyncReader(r)
}

// SetBodyWriter copies the body into w. A failed copy aborts the exchange
// with the copy error.
func (r *IncomingResponse) SetBodyWriter(w io.Writer) {
	reader, err := r.MakeBodyAsyncReader()
	if err != nil {
		if !errors.Is(err, ErrBodyMissing) {
			r.logger.Error("could not make body reader", "error", err)
		}
		return
	}

	tok := r.tok
	iolib.AsyncCopy(w, reader, func(err error) {
		if err != nil && !errors.Is(err, events.ErrCanceled) && !tok.Cancelled() {
			r.logger.Error("could not copy HTTP stream", "error", err)
			abort(r.client, errors.Wrap(err, "copying HTTP stream"))
		}
	})
}

// SwitchProtocol detaches the connection after a 101 response.
func (r *IncomingResponse) SwitchProtocol() (iolib.AsyncReadWriter, error) {
	if r.tok.Cancelled() {
		return nil, errors.Wrap(ErrStreamCancelled, "switching protocol when the stream doesn't exist anymore")
	}
	switcher, ok := r.client.(protocolSwitcher)
	if !ok {
		return nil, errors.New("client does not support switching protocol")
	}
	return switcher.SwitchProtocol(r)
}

func (r *IncomingResponse) Cancel() {
	if !r.tok.Cancelled() {
		r.client.Cancel()
	}
}

type IncomingRequest struct {
	transaction

	method     Method
	path       string
	remoteAddr string

	stream StreamInterface
	tok    *events.Token
	logger *slog.Logger
}

// NewIncomingRequest is called by server implementations.
func NewIncomingRequest(
	stream StreamInterface,
	tok *events.Token,
	logger *slog.Logger,
	remoteAddr string,
) *IncomingRequest {
	return &IncomingRequest{stream: stream, tok: tok, logger: logger, remoteAddr: remoteAddr}
}

// SetHead fills in what was decoded from the request head.
func (r *IncomingRequest) SetHead(method Method, path string, headers Headers) {
	r.method, r.path, r.headers = method, path, headers
}

func (r *IncomingRequest) Method() Method     { return r.method }
func (r *IncomingRequest) Path() string       { return r.path }
func (r *IncomingRequest) RemoteAddr() string { return r.remoteAddr }

func (r *IncomingRequest) MakeBodyAsyncReader() (iolib.AsyncReader, error) {
	if r.tok.Cancelled() {
		return nil, errors.Wrap(ErrStreamCancelled, "making reader for a request that doesn't exist anymore")
	}
	return r.stream.MakeBodyAsyncReader(r)
}

// SetBodyWriter copies the body into w. A failed copy aborts the exchange
// with the copy error.
func (r *IncomingRequest) SetBodyWriter(w io.Writer) {
	reader, err := r.MakeBodyAsyncReader()
	if err != nil {
		if !errors.Is(err, ErrBodyMissing) {
			r.logger.Error("could not make body reader", "error", err)
		}
		return
	}

	tok := r.tok
	iolib.AsyncCopy(w, reader, func(err error) {
		if err != nil && !errors.Is(err, events.ErrCanceled) && !tok.Cancelled() {
			r.logger.Error("could not copy HTTP stream", "error", err)
			abort(r.stream, errors.Wrap(err, "copying HTTP stream"))
		}
	})
}

// MakeResponse is valid once per request, from within the body handler.
// A response dropped without a reply aborts the exchange only when the
// garbage collector reclaims it. Call [OutgoingResponse.Cancel] to abort
// right away.
func (r *IncomingRequest) MakeResponse() (*OutgoingResponse, error) {
	if r.tok.Cancelled() {
		return nil, errors.Wrap(ErrStreamCancelled, "making response for a request that doesn't exist anymore")
	}
	return r.stream.MakeResponse(r)
}

func (r *IncomingRequest) Cancel() {
	if !r.tok.Cancelled() {
		r.stream.Cancel()
	}
}

// ReplyBody is where an outgoing response takes its body from.
type ReplyBody interface{ isReplyBody() }

type SyncReplyBody struct{ io.Reader }
type AsyncReplyBody struct{ iolib.AsyncReader }

func (SyncReplyBody) isReplyBody()  {}
func (AsyncReplyBody) isReplyBody() {}

type OutgoingResponse struct {
	transaction

	statusCode    int
	statusMessage string
	body          ReplyBody

	stream StreamInterface
	tok    *events.Token
}

func NewOutgoingResponse(stream StreamInterface, tok *events.Token) *OutgoingResponse {
	return &OutgoingResponse{stream: stream, tok: tok, statusCode: 200, statusMessage: "OK"}
}

func (r *OutgoingResponse) SetStatusCodeAndMessage(code int, message string) {
	r.statusCode, r.statusMessage = code, message
}

func (r *OutgoingResponse) StatusCode() int       { return r.statusCode }
func (r *OutgoingResponse) StatusMessage() string { return r.statusMessage }

func (r *OutgoingResponse) SetHeader(name, value string) { r.headers.Set(name, value) }
func (r *OutgoingResponse) DelHeader(name string)        { r.headers.Del(name) }
func (r *OutgoingResponse) HeaderFields() []Field        { return r.headers.Fields() }

func (r *OutgoingResponse) SetBodyReader(body io.Reader) { r.body = SyncReplyBody{body} }

func (r *OutgoingResponse) SetAsyncBodyReader(body iolib.AsyncReader) {
	r.body = AsyncReplyBody{body}
}

// Body returns the body, or nil when none was set.
func (r *OutgoingResponse) Body() ReplyBody { return r.body }

// AsyncReply sends the response. handler is called once the whole
// response is written or the reply failed.
func (r *OutgoingResponse) AsyncReply(handler ReplyFinishedHandler) error {
	if r.tok.Cancelled() {
		return errors.Wrap(ErrStreamCancelled, "replying to a request that doesn't exist anymore")
	}
	return r.stream.AsyncReply(r, handler)
}

// AsyncSwitchProtocol sends the response and hands the raw connection
// to handler once it is written.
func (r *OutgoingResponse) AsyncSwitchProtocol(handler SwitchProtocolHandler) error {
	if r.tok.Cancelled() {
		return errors.Wrap(ErrStreamCancelled, "switching protocol on a stream that doesn't exist anymore")
	}
	return r.stream.AsyncSwitchProtocol(r, handler)
}

// Cancel aborts the exchange without replying.
func (r *OutgoingResponse) Cancel() {
	if !r.tok.Cancelled() {
		r.stream.Cancel()
	}
}
