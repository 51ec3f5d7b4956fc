package http

import (
	"bufio"
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

type EncodeOptions struct {
	// UseSoleLF specifies wheter a single LF character should be used as a line terminator.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	UseSoleLF bool
}

var DefaultEncodeOptions = EncodeOptions{
	UseSoleLF: false,
}

var (
	ErrInvalidField     = errors.New("field is not valid")
	ErrInvalidStartLine = errors.New("start line is not valid")
)

// MessageEncoder serializes message heads. Bodies are streamed separately
// by the caller, so the encoder only ever produces the head bytes.
type MessageEncoder struct {
	buf  *bytes.Buffer
	bw   *bufio.Writer
	opts EncodeOptions
}

func newMessageEncoder(opts EncodeOptions) MessageEncoder {
	buf := bytes.NewBuffer(nil)
	return MessageEncoder{buf: buf, bw: bufio.NewWriter(buf), opts: opts}
}

func (me *MessageEncoder) writeLine(line []byte) error {
	if _, err := me.bw.Write(line); err != nil {
		return errors.Wrap(err, "writing line")
	}

	term := crlf
	if me.opts.UseSoleLF {
		term = term[1:]
	}

	if _, err := me.bw.Write(term); err != nil {
		return errors.Wrap(err, "writing line terminator")
	}

	return nil
}

func (me *MessageEncoder) encodeHeaders(headers []Field) error {
	for _, field := range headers {
		if !validFieldName(string(field.Name)) || !validFieldValue(string(field.Value)) {
			return errors.Wrapf(ErrInvalidField, "encoding %q", field.Name)
		}
		if err := me.writeLine(field.Text()); err != nil {
			return errors.Wrap(err, "writing field")
		}
	}

	// Write a empty line as all the headers are written.
	if err := me.writeLine(nil); err != nil {
		return errors.Wrap(err, "writing line terminator")
	}

	return nil
}

func (me *MessageEncoder) bytes() ([]byte, error) {
	if err := me.bw.Flush(); err != nil {
		return nil, errors.Wrap(err, "flushing head")
	}
	return me.buf.Bytes(), nil
}

// EncodeRequestHead returns the wire form of a request line and its headers.
func EncodeRequestHead(head RequestHead, opts EncodeOptions) ([]byte, error) {
	me := newMessageEncoder(opts)

	if len(head.Method) == 0 || len(head.Target) == 0 {
		return nil, errors.New("request line is incomplete")
	}
	if !validFieldName(head.Method) {
		return nil, errors.Wrapf(ErrInvalidStartLine, "method %q", head.Method)
	}
	if !validTarget(head.Target) {
		return nil, errors.Wrapf(ErrInvalidStartLine, "target %q", head.Target)
	}

	line := bytes.NewBuffer(nil)
	line.WriteString(head.Method)
	line.WriteByte(SP)
	line.WriteString(head.Target)
	line.WriteByte(SP)
	line.Write(head.Version.Text())

	if err := me.writeLine(line.Bytes()); err != nil {
		return nil, errors.Wrap(err, "encoding request line")
	}

	if err := me.encodeHeaders(head.Fields); err != nil {
		return nil, errors.Wrap(err, "encoding headers")
	}

	return me.bytes()
}

// EncodeResponseHead returns the wire form of a status line and its headers.
func EncodeResponseHead(head ResponseHead, opts EncodeOptions) ([]byte, error) {
	me := newMessageEncoder(opts)

	if head.StatusCode < 100 || head.StatusCode > 999 {
		return nil, errors.Errorf("status code out of range: %d", head.StatusCode)
	}
	// Reason phrases allow the same octets as field values.
	if !validFieldValue(head.ReasonPhrase) {
		return nil, errors.Wrapf(ErrInvalidStartLine, "reason phrase %q", head.ReasonPhrase)
	}

	line := bytes.NewBuffer(nil)
	line.Write(head.Version.Text())
	line.WriteByte(SP)
	line.WriteString(strconv.Itoa(head.StatusCode))
	line.WriteByte(SP)
	line.WriteString(head.ReasonPhrase)

	if err := me.writeLine(line.Bytes()); err != nil {
		return nil, errors.Wrap(err, "encoding status line")
	}

	if err := me.encodeHeaders(head.Fields); err != nil {
		return nil, errors.Wrap(err, "encoding headers")
	}

	return me.bytes()
}
