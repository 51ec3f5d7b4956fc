// Package resumer keeps a download going across broken connections by
// asking the server for the missing part of the body with range requests.
package resumer

import (
	"fmt"
	"log/slog"
	"strconv"
	"update-transport/application/http"
	"update-transport/application/http/actor/client"
	"update-transport/application/http/status"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
)

type handlersStatus int

const (
	handlersNone handlersStatus = iota
	headerHandlerCalled
	bodyHandlerCalled
)

// Client wraps a [client.Client]. To the application it behaves like a
// single exchange: the header handler sees the first response, the body
// reader delivers the whole body, and the body handler reports the
// outcome once no more resuming is possible. Every method must be called
// from the loop goroutine.
type Client struct {
	loop    *events.EventLoop
	logger  *slog.Logger
	client  *client.Client
	backoff *http.ExponentialBackoff
	timer   *events.Timer

	// tok belongs to the current call, attempt to the current request
	// of the wrapped client.
	tok      *events.Token
	attempt  *events.Token
	log      *slog.Logger
	handlers handlersStatus

	resuming bool
	resumed  bool
	offset   uint64
	length   uint64

	req           *http.OutgoingRequest
	headerHandler http.ResponseHandler
	bodyHandler   http.ResponseHandler

	// resp is what the application got in its header handler, inner the
	// response of the current attempt.
	resp   *http.IncomingResponse
	inner  *http.IncomingResponse
	reader *bodyReader
}

var _ http.ClientInterface = (*Client)(nil)

func New(config http.ClientConfig, loop *events.EventLoop, logger *slog.Logger, opts Options) *Client {
	backoff := http.NewExponentialBackoff(opts.MaxInterval, opts.TryCount)
	if opts.SmallestInterval > 0 {
		backoff.SetSmallestInterval(opts.SmallestInterval)
	}

	return &Client{
		loop:    loop,
		logger:  logger,
		client:  client.New(config, loop, logger, opts.Client),
		backoff: backoff,
		timer:   events.NewTimer(loop),
		tok:     events.CancelledToken(),
		attempt: events.CancelledToken(),
		log:     logger,
	}
}

// AsyncCall starts a download. The handlers follow the contract of
// [client.Client.AsyncCall].
func (r *Client) AsyncCall(req *http.OutgoingRequest, headerHandler, bodyHandler http.ResponseHandler) error {
	if !r.tok.Cancelled() {
		return errors.Wrap(http.ErrOperationInProgress, "HTTP resumer call already ongoing")
	}
	if headerHandler == nil || bodyHandler == nil {
		return errors.Wrap(http.ErrRequestNotReady, "header handler and body handler must not be nil")
	}

	r.tok = events.NewToken()
	r.log = r.logger.With("url", req.URL())
	r.handlers = handlersNone
	r.resuming, r.resumed, r.offset, r.length = false, false, 0, 0
	r.req, r.headerHandler, r.bodyHandler = req, headerHandler, bodyHandler
	r.resp, r.inner, r.reader = nil, nil, nil
	r.backoff.Reset()

	if err := r.call(req); err != nil {
		r.tok.Cancel()
		return err
	}
	return nil
}

func (r *Client) call(req *http.OutgoingRequest) error {
	attempt := events.NewToken()
	err := r.client.AsyncCall(req,
		func(resp *http.IncomingResponse, err error) {
			if !attempt.Cancelled() {
				r.handleHeader(resp, err)
			}
		},
		func(resp *http.IncomingResponse, err error) {
			if !attempt.Cancelled() {
				r.handleBody(resp, err)
			}
		},
	)
	if err != nil {
		return err
	}
	r.attempt = attempt
	return nil
}

func (r *Client) handleHeader(resp *http.IncomingResponse, err error) {
	if err != nil {
		if errors.Is(err, events.ErrCanceled) {
			r.callUserHandler(nil, err)
			return
		}
		r.log.Warn("request failed", "error", err)
		r.retry()
		return
	}

	if r.resuming {
		r.handleNextResponse(resp)
	} else {
		r.handleFirstResponse(resp)
	}
}

// handleFirstResponse passes anything that can't be resumed straight
// through. Otherwise the application gets a response of its own, which
// stays valid across attempts.
func (r *Client) handleFirstResponse(resp *http.IncomingResponse) {
	if resp.StatusCode() != status.OK.Code {
		r.resp = resp
		r.callUserHandler(resp, nil)
		return
	}

	cl, ok := resp.Header("Content-Length")
	if !ok || cl == "0" {
		r.log.Warn("response does not contain a Content-Length header, it can't be resumed")
		r.resp = resp
		r.callUserHandler(resp, nil)
		return
	}
	length, err := strconv.ParseUint(cl, 10, 64)
	if err != nil {
		r.log.Warn("Content-Length contains an invalid number, the response can't be resumed", "content_length", cl)
		r.resp = resp
		r.callUserHandler(resp, nil)
		return
	}

	r.resuming, r.offset, r.length = true, 0, length
	r.inner = resp
	r.resp = r.wrap(resp)
	r.callUserHandler(r.resp, nil)
}

func (r *Client) wrap(resp *http.IncomingResponse) *http.IncomingResponse {
	return http.NewIncomingResponse(r, r.tok, r.log,
		resp.StatusCode(), resp.StatusMessage(), http.NewHeaders(resp.Headers()))
}

func (r *Client) handleNextResponse(resp *http.IncomingResponse) {
	header, _ := resp.Header("Content-Range")
	cr, err := parseContentRange(header)
	if err != nil {
		r.log.Warn("could not resume download", "error", err)
		r.abandonAttempt()
		r.retry()
		return
	}

	if cr.size != 0 && cr.size != r.length {
		r.callUserHandler(nil, errors.Wrapf(http.ErrDownloadResumer,
			"size of artifact changed after download was resumed (expected %d, got %d)", r.length, cr.size))
		return
	}
	if cr.start != r.offset || cr.end != r.length-1 {
		r.callUserHandler(nil, errors.Wrapf(http.ErrDownloadResumer,
			"HTTP server returned a different range than requested (requested %d-%d, got %d-%d)",
			r.offset, r.length-1, cr.start, cr.end))
		return
	}

	inner, err := r.client.MakeBodyAsyncReader(resp)
	if err != nil {
		r.callUserHandler(nil, errors.Wrap(err, "cannot get the reader after resume"))
		return
	}

	r.inner, r.resumed = resp, true
	r.reader.inner = inner
	if err := r.reader.resume(); err != nil {
		r.callUserHandler(nil, errors.Wrap(err, "reading after resume"))
	}
}

func (r *Client) handleBody(resp *http.IncomingResponse, err error) {
	if !r.resuming || r.reader == nil {
		// Nothing to resume into.
		r.callUserHandler(resp, err)
		return
	}

	missing := r.offset < r.length
	if err == nil && !(resp.StatusCode() == status.PartialContent.Code && missing) {
		r.log.Debug("download finished", "resumed", r.resumed)
		final := r.resp
		if r.resumed {
			// The application sees the last response from the server.
			final = r.wrap(resp)
		}
		r.callUserHandler(final, nil)
		return
	}

	if err != nil {
		if errors.Is(err, events.ErrCanceled) {
			r.callUserHandler(r.resp, err)
			return
		}
		r.log.Info("will try to resume after error", "error", err, "offset", r.offset)
	}
	r.reader.inner = nil
	r.retry()
}

// abandonAttempt drops the wrapped exchange without hearing back from it.
func (r *Client) abandonAttempt() {
	r.attempt.Cancel()
	r.client.Cancel()
}

func (r *Client) retry() {
	if err := r.scheduleNext(); err != nil {
		r.callUserHandler(nil, err)
	}
}

func (r *Client) scheduleNext() error {
	interval, err := r.backoff.NextInterval()
	if err != nil {
		return errors.Wrap(err, "giving up on resuming the download")
	}

	r.log.Info("resuming download", "after", interval, "offset", r.offset)

	tok := r.tok
	r.timer.AsyncWait(interval, func(err error) {
		if tok.Cancelled() {
			return
		}
		if err != nil {
			r.callUserHandler(nil, errors.Wrapf(http.ErrDownloadResumer, "unexpected error in wait timer: %v", err))
			return
		}

		if err := r.call(r.nextRequest()); err != nil {
			r.log.Warn("could not start resume request", "error", err)
			r.retry()
		}
	})
	return nil
}

// nextRequest asks for what is still missing, or repeats the original
// request when nothing was received yet.
func (r *Client) nextRequest() *http.OutgoingRequest {
	if !r.resuming {
		return r.req
	}
	req := r.req.Clone()
	req.SetHeader("Range", fmt.Sprintf("bytes=%d-%d", r.offset, r.length-1))
	return req
}

// callUserHandler calls each application handler at most once. An error
// ends the call.
func (r *Client) callUserHandler(resp *http.IncomingResponse, err error) {
	switch r.handlers {
	case handlersNone:
		r.handlers = headerHandlerCalled
		if err != nil {
			r.finish()
		}
		r.headerHandler(resp, err)
	case headerHandlerCalled:
		r.handlers = bodyHandlerCalled
		r.finish()
		r.bodyHandler(resp, err)
	default:
		r.log.Warn("cannot call any user handler", "response", resp != nil, "error", err)
	}
}

func (r *Client) finish() {
	r.tok.Cancel()
	r.attempt.Cancel()
	r.timer.Cancel()
	r.client.Cancel()
	if r.reader != nil {
		r.reader.abort()
	}
	r.log = r.logger
}

// MakeBodyAsyncReader returns a reader that spans all attempts.
func (r *Client) MakeBodyAsyncReader(resp *http.IncomingResponse) (iolib.AsyncReader, error) {
	if r.tok.Cancelled() || resp != r.resp || r.inner == nil {
		return nil, errors.Wrap(http.ErrStreamCancelled, "making reader for a response that doesn't exist anymore")
	}
	if r.reader != nil {
		return nil, errors.Wrap(http.ErrOperationInProgress, "body reader already made")
	}

	inner, err := r.client.MakeBodyAsyncReader(r.inner)
	if err != nil {
		return nil, err
	}
	r.reader = &bodyReader{resumer: r, tok: r.tok, inner: inner}
	return r.reader, nil
}

// Cancel aborts the download. The handler the application is waiting on
// receives a cancellation error.
func (r *Client) Cancel() {
	r.Abort(errors.Wrap(events.ErrCanceled, "HTTP request cancelled"))
}

// Abort ends the download with err. It is not resumed.
func (r *Client) Abort(err error) {
	if r.tok.Cancelled() {
		return
	}
	r.callUserHandler(r.resp, err)
}

// bodyReader keeps the application's read pending while a broken
// download is resumed, then finishes it from the new response.
type bodyReader struct {
	resumer *Client
	tok     *events.Token
	inner   iolib.AsyncReader
	eof     bool

	// The read the application is waiting on, if any.
	buf      []byte
	handler  iolib.AsyncIoHandler
	inFlight bool
}

var _ iolib.AsyncReader = (*bodyReader)(nil)

func (b *bodyReader) AsyncRead(p []byte, handler iolib.AsyncIoHandler) error {
	if b.eof {
		b.resumer.loop.Post(func() { handler(0, nil) })
		return nil
	}
	if b.tok.Cancelled() {
		return errors.Wrap(http.ErrStreamCancelled, "reading a download that doesn't exist anymore")
	}
	if b.handler != nil {
		return errors.Wrap(http.ErrOperationInProgress, "body read already in progress")
	}

	b.buf, b.handler = p, handler
	if err := b.resume(); err != nil {
		b.buf, b.handler = nil, nil
		return err
	}
	return nil
}

// resume issues the pending read on the current response. Between
// attempts there is none, and the read waits for the next one.
func (b *bodyReader) resume() error {
	if b.handler == nil || b.inner == nil {
		return nil
	}

	err := b.inner.AsyncRead(b.buf, func(n int, err error) {
		b.inFlight = false
		if err != nil {
			if b.tok.Cancelled() {
				b.complete(0, err)
				return
			}
			b.resumer.log.Warn("reading error, a new request will be scheduled", "error", err)
			return
		}

		if n == 0 {
			b.eof = true
		}
		b.resumer.offset += uint64(n)
		b.complete(n, nil)
	})
	if err != nil {
		return err
	}
	b.inFlight = true
	return nil
}

func (b *bodyReader) complete(n int, err error) {
	handler := b.handler
	b.buf, b.handler = nil, nil
	handler(n, err)
}

// abort fails a read left waiting for an attempt that will not come.
func (b *bodyReader) abort() {
	if b.handler == nil || b.inFlight {
		return
	}
	handler := b.handler
	b.buf, b.handler = nil, nil
	b.resumer.loop.Post(func() { handler(0, errors.Wrap(events.ErrCanceled, "download stopped")) })
}

func (b *bodyReader) Cancel() {
	if !b.tok.Cancelled() {
		b.resumer.Cancel()
	}
}
