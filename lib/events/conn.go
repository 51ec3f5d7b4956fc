package events

import (
	"io"
	"net"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
)

// AsyncConn exposes a connection as an [iolib.AsyncReadWriter] whose
// completions run on the loop.
type AsyncConn struct {
	loop *EventLoop
	conn net.Conn
	r    io.Reader
	tok  *Token
}

var _ iolib.AsyncReadWriter = (*AsyncConn)(nil)

// NewAsyncConn wraps conn. If r is not nil reads go through it, which
// lets bytes buffered before the hand over be delivered first.
func NewAsyncConn(loop *EventLoop, conn net.Conn, r io.Reader) *AsyncConn {
	if r == nil {
		r = conn
	}
	return &AsyncConn{loop: loop, conn: conn, r: r, tok: NewToken()}
}

func (c *AsyncConn) AsyncRead(p []byte, handler iolib.AsyncIoHandler) error {
	tok := c.tok
	if tok.Cancelled() {
		return errors.Wrap(ErrCanceled, "reading from connection")
	}

	c.loop.Async(func() func() {
		n, err := c.r.Read(p)
		return func() {
			if tok.Cancelled() {
				handler(0, errors.Wrap(ErrCanceled, "reading from connection"))
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

func (c *AsyncConn) AsyncWrite(p []byte, handler iolib.AsyncIoHandler) error {
	tok := c.tok
	if tok.Cancelled() {
		return errors.Wrap(ErrCanceled, "writing to connection")
	}

	c.loop.Async(func() func() {
		n, err := iolib.WriteFull(c.conn, p)
		return func() {
			if tok.Cancelled() {
				handler(n, errors.Wrap(ErrCanceled, "writing to connection"))
				return
			}
			handler(n, err)
		}
	})
	return nil
}

// Cancel closes the connection. Outstanding operations complete with
// ErrCanceled.
func (c *AsyncConn) Cancel() {
	if c.tok.Cancelled() {
		return
	}
	c.tok.Cancel()
	c.conn.Close()
}
