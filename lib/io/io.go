package iolib

import "io"

// AsyncIoHandler receives the result of one asynchronous operation.
// A read of zero bytes with a nil error means end of stream.
type AsyncIoHandler func(n int, err error)

type Canceller interface {
	// Cancel aborts outstanding operations. It is idempotent, and
	// handlers of aborted operations may still be called afterwards.
	Cancel()
}

// AsyncReader starts a read into p and returns immediately.
// A non-nil return means the read was never started and handler
// will not be called. Otherwise handler is called exactly once,
// and p must not be touched until then.
type AsyncReader interface {
	Canceller
	AsyncRead(p []byte, handler AsyncIoHandler) error
}

type AsyncWriter interface {
	Canceller
	AsyncWrite(p []byte, handler AsyncIoHandler) error
}

type AsyncReadWriter interface {
	Canceller
	AsyncRead(p []byte, handler AsyncIoHandler) error
	AsyncWrite(p []byte, handler AsyncIoHandler) error
}

func WriteFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, ErrZeroWrite
		}
	}
	return total, nil
}
