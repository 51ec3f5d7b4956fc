package iolib

import (
	"io"

	"github.com/pkg/errors"
)

const BufferSize = 16 * 1024

var (
	ErrZeroWrite      = errors.New("zero write when copying data")
	ErrShortWrite     = errors.New("short write when copying data")
	ErrBufferOverflow = errors.New("read reported more bytes than the buffer holds")
)

// Copy streams src into dst until src reports EOF.
// Unlike [io.Copy], a writer accepting fewer bytes than offered is an error.
func Copy(dst io.Writer, src io.Reader) error {
	buf := make([]byte, BufferSize)
	for {
		n, err := src.Read(buf)
		if n > len(buf) {
			return ErrBufferOverflow
		}
		if n > 0 {
			if werr := writeChunk(dst, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading from source")
		}
		if n == 0 {
			// Readers may signal end of stream with an empty read.
			return nil
		}
	}
}

func writeChunk(dst io.Writer, p []byte) error {
	n, err := dst.Write(p)
	if err != nil {
		return errors.Wrap(err, "writing to destination")
	}
	switch {
	case n == 0:
		return ErrZeroWrite
	case n < len(p):
		return ErrShortWrite
	}
	return nil
}

// AsyncCopy reads src asynchronously and writes every chunk into dst.
// done is called once, with nil when src reached end of stream.
func AsyncCopy(dst io.Writer, src AsyncReader, done func(err error)) {
	c := &asyncCopier{dst: dst, src: src, buf: make([]byte, BufferSize), done: done}
	c.next()
}

type asyncCopier struct {
	dst  io.Writer
	src  AsyncReader
	buf  []byte
	done func(err error)
}

func (c *asyncCopier) next() {
	err := c.src.AsyncRead(c.buf, func(n int, err error) {
		if err != nil {
			c.done(errors.Wrap(err, "reading from source"))
			return
		}
		if n > len(c.buf) {
			c.done(ErrBufferOverflow)
			return
		}
		if n == 0 {
			c.done(nil)
			return
		}
		if err := writeChunk(c.dst, c.buf[:n]); err != nil {
			c.done(err)
			return
		}
		c.next()
	})
	if err != nil {
		c.done(errors.Wrap(err, "starting read"))
	}
}

// AsyncCopyN copies exactly n bytes from src into dst, alternating one
// read and one write of at most BufferSize bytes. A source that ends
// early fails with io.ErrUnexpectedEOF.
func AsyncCopyN(dst AsyncWriter, src AsyncReader, n uint64, done func(err error)) {
	c := &asyncCopierN{
		dst:       dst,
		src:       src,
		buf:       make([]byte, min(BufferSize, n)),
		remaining: n,
		done:      done,
	}
	c.next()
}

type asyncCopierN struct {
	dst       AsyncWriter
	src       AsyncReader
	buf       []byte
	remaining uint64
	done      func(err error)
}

func (c *asyncCopierN) next() {
	if c.remaining == 0 {
		c.done(nil)
		return
	}

	buf := c.buf
	if uint64(len(buf)) > c.remaining {
		buf = buf[:c.remaining]
	}

	err := c.src.AsyncRead(buf, func(n int, err error) {
		switch {
		case err != nil:
			c.done(errors.Wrap(err, "reading from source"))
		case n > len(buf):
			c.done(ErrBufferOverflow)
		case n == 0:
			c.done(errors.Wrapf(io.ErrUnexpectedEOF, "source ended %d bytes short", c.remaining))
		default:
			c.write(buf[:n])
		}
	})
	if err != nil {
		c.done(errors.Wrap(err, "starting read"))
	}
}

func (c *asyncCopierN) write(p []byte) {
	err := c.dst.AsyncWrite(p, func(n int, err error) {
		switch {
		case err != nil:
			c.done(errors.Wrap(err, "writing to destination"))
			return
		case n == 0:
			c.done(ErrZeroWrite)
			return
		case n < len(p):
			c.done(ErrShortWrite)
			return
		}
		c.remaining -= uint64(n)
		c.next()
	})
	if err != nil {
		c.done(errors.Wrap(err, "starting write"))
	}
}
