package events

import (
	"io"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
)

// AsyncReader turns a blocking reader into an [iolib.AsyncReader].
// Every read runs on a helper goroutine and completes on the loop.
type AsyncReader struct {
	loop *EventLoop
	r    io.Reader
	tok  *Token
}

var _ iolib.AsyncReader = (*AsyncReader)(nil)

func NewAsyncReader(loop *EventLoop, r io.Reader) *AsyncReader {
	return &AsyncReader{loop: loop, r: r, tok: NewToken()}
}

func (a *AsyncReader) AsyncRead(p []byte, handler iolib.AsyncIoHandler) error {
	tok := a.tok
	if tok.Cancelled() {
		return errors.Wrap(ErrCanceled, "reading from source")
	}

	a.loop.Async(func() func() {
		n, err := a.r.Read(p)
		return func() {
			if tok.Cancelled() {
				handler(0, errors.Wrap(ErrCanceled, "reading from source"))
				return
			}
			if err == io.EOF {
				err = nil
			}
			handler(n, err)
		}
	})
	return nil
}

// Cancel makes outstanding and future reads fail. A read already blocked
// in the underlying reader is left to finish on its own.
func (a *AsyncReader) Cancel() { a.tok.Cancel() }
