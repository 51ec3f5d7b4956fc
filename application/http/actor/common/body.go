// Package common holds the parts of an exchange the client and the server
// share: streaming an incoming body framed by Content-Length.
package common

import (
	"io"
	"update-transport/application/http"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
)

// BodyHooks connect a body to the exchange owning it. They are only
// called while the exchange is still live.
type BodyHooks struct {
	// Fail ends the exchange with err.
	Fail func(err error)
	// Finish ends the exchange successfully, after the end of the body
	// was delivered.
	Finish func()
	// Cancel aborts the exchange on behalf of the reader.
	Cancel func()
}

// Body is the incoming body of one exchange.
type Body struct {
	loop   *events.EventLoop
	tok    *events.Token
	r      *iolib.LimitedReader
	length uint64
	status *http.TransactionStatus
	hooks  BodyHooks
}

// NewBody frames length bytes of br as a body. status is the transaction
// status of the owner and is advanced as the body is read.
func NewBody(
	loop *events.EventLoop,
	tok *events.Token,
	r io.Reader,
	length uint64,
	status *http.TransactionStatus,
	hooks BodyHooks,
) *Body {
	return &Body{
		loop:   loop,
		tok:    tok,
		r:      iolib.LimitReader(r, length),
		length: length,
		status: status,
		hooks:  hooks,
	}
}

func (b *Body) Length() uint64 { return b.length }

func (b *Body) partialError() error {
	return errors.Wrapf(http.ErrPartialMessage, "received %d of %d bytes", b.length-b.r.N, b.length)
}

// Reader hands the body over to the application.
func (b *Body) Reader() iolib.AsyncReader {
	*b.status = http.StatusReaderCreated
	return &bodyReader{body: b}
}

// Discard reads the body to its end and throws it away. The exchange
// finishes, or fails if the peer sent less than announced.
func (b *Body) Discard() {
	*b.status = http.StatusBodyReadingInProgress
	tok, r := b.tok, b.r

	b.loop.Async(func() func() {
		err := iolib.Copy(io.Discard, r)
		return func() {
			if tok.Cancelled() {
				return
			}
			switch {
			case err != nil:
				b.hooks.Fail(errors.Wrap(err, "discarding body"))
			case r.N > 0:
				b.hooks.Fail(b.partialError())
			default:
				*b.status = http.StatusBodyReadingFinished
				b.hooks.Finish()
			}
		}
	})
}

// bodyReader reports the end of the body as a zero byte read, after which
// the exchange finishes.
type bodyReader struct {
	body    *Body
	reading bool
}

var _ iolib.AsyncReader = (*bodyReader)(nil)

func (r *bodyReader) AsyncRead(p []byte, handler iolib.AsyncIoHandler) error {
	b, tok := r.body, r.body.tok
	if tok.Cancelled() {
		return errors.Wrap(http.ErrStreamCancelled, "reading body of an exchange that doesn't exist anymore")
	}
	if r.reading {
		return errors.Wrap(http.ErrOperationInProgress, "body read already in progress")
	}

	if *b.status == http.StatusReaderCreated {
		*b.status = http.StatusBodyReadingInProgress
	}

	if *b.status == http.StatusBodyReadingFinished {
		r.reading = true
		b.loop.Post(func() {
			r.reading = false
			handler(0, nil)
			if !tok.Cancelled() && *b.status == http.StatusBodyReadingFinished {
				b.hooks.Finish()
			}
		})
		return nil
	}

	if len(p) == 0 {
		return errors.New("empty read buffer")
	}

	r.reading = true
	body := b.r
	b.loop.Async(func() func() {
		n, err := body.Read(p)
		return func() {
			r.reading = false
			if tok.Cancelled() {
				handler(0, errors.Wrap(events.ErrCanceled, "reading body"))
				return
			}

			if err == io.EOF {
				err = nil
			}
			switch {
			case err != nil:
				err = errors.Wrap(err, "reading body")
			case n == 0:
				err = b.partialError()
			}
			if err != nil {
				// The exchange fails first, so a reader giving up on this
				// error can't turn it into a cancellation.
				b.hooks.Fail(err)
				handler(n, err)
				return
			}

			if body.N == 0 {
				*b.status = http.StatusBodyReadingFinished
			}
			handler(n, nil)
		}
	})
	return nil
}

func (r *bodyReader) Cancel() {
	if !r.body.tok.Cancelled() {
		r.body.hooks.Cancel()
	}
}
