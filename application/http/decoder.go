package http

import (
	"bufio"
	"bytes"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// AllowSoleLF specifies wheter a single LF character should be recognized as a valid line terminator.
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-3
	AllowSoleLF bool

	// MaxFieldLineLength sets the limit of field line length on headers.
	MaxFieldLineLength uint

	// MaxFieldLines sets the limit of the number of field lines.
	MaxFieldLines uint

	// MaxStartLineLength sets the limit of request line and status line length.
	// Recommended: >= 8000
	//
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3-5
	MaxStartLineLength uint
}

var DefaultDecodeOptions = DecodeOptions{
	AllowSoleLF:        false,
	MaxFieldLineLength: 8192,
	MaxFieldLines:      100,
	MaxStartLineLength: 8192,
}

// MessageDecoder reads message heads from a buffered reader.
// The body is left in the reader, so the caller keeps reading
// from the same reader to get it.
type MessageDecoder struct {
	br   *bufio.Reader
	opts DecodeOptions
}

var (
	errLineTooLong       = errors.New("line length exceeeds limit")
	ErrMissingCRBeforeLF = errors.New("missing CR before LF")
)

func (md *MessageDecoder) readLine(limit uint) ([]byte, error) {
	var line []byte
	for {
		chunk, err := md.br.ReadSlice(LF)
		line = append(line, chunk...)
		if limit > 0 && uint(len(line)) > limit {
			return nil, errLineTooLong
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	line = line[:len(line)-1] // Remove LF.

	if !md.opts.AllowSoleLF {
		if len(line) == 0 || line[len(line)-1] != CR {
			return nil, ErrMissingCRBeforeLF
		}
	}
	line = bytes.TrimSuffix(line, []byte{CR})

	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-4
	line = bytes.ReplaceAll(line, []byte{CR}, []byte{SP})

	return line, nil
}

var (
	ErrFieldLineTooLong   = errors.New("field line length exceeds limit")
	ErrTooManyFieldLines  = errors.New("too many field lines")
	ErrMalformedFieldLine = errors.New("field line is malformed")
)

func (md *MessageDecoder) decodeHeaders(headers *[]Field) error {
	tmpHeaders := make([]Field, 0)
	for {
		fieldLine, err := md.readLine(md.opts.MaxFieldLineLength)
		if err != nil {
			if errors.Is(err, errLineTooLong) {
				return ErrFieldLineTooLong
			}
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return errors.Wrap(err, "reading line")
		}

		if len(fieldLine) == 0 {
			// An empty line. This means that there are no more headers.
			break
		}

		if md.opts.MaxFieldLines > 0 && uint(len(tmpHeaders)) >= md.opts.MaxFieldLines {
			return ErrTooManyFieldLines
		}

		field, err := ParseField(fieldLine)
		if err != nil {
			return errors.Wrap(ErrMalformedFieldLine, err.Error())
		}

		tmpHeaders = append(tmpHeaders, field)
	}

	*headers = tmpHeaders

	return nil
}

func (md *MessageDecoder) decodeStartLine() ([]byte, error) {
	for {
		b, err := md.readLine(md.opts.MaxStartLineLength)
		if err != nil {
			return nil, err
		}

		// An empty line can be received before message.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
		if len(b) > 0 {
			return b, nil
		}
	}
}

var (
	ErrRequestLineTooLong   = errors.New("request line length exceeds limit")
	ErrMalformedRequestLine = errors.New("request line is malformed")
)

type RequestDecoder struct{ MessageDecoder }

func NewRequestDecoder(br *bufio.Reader, opts DecodeOptions) *RequestDecoder {
	return &RequestDecoder{MessageDecoder{br: br, opts: opts}}
}

// DecodeHead reads a request line and its headers.
// io.EOF is returned as is when the peer closed before sending anything.
func (rd *RequestDecoder) DecodeHead(h *RequestHead) error {
	line, err := rd.decodeStartLine()
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return ErrRequestLineTooLong
		}
		if err == io.EOF {
			return err
		}
		return errors.Wrap(err, "reading request line")
	}

	if err := parseRequestLine(line, h); err != nil {
		return errors.Wrap(ErrMalformedRequestLine, err.Error())
	}

	if err := rd.decodeHeaders(&h.Fields); err != nil {
		return errors.Wrap(err, "parsing headers")
	}

	return nil
}

func parseRequestLine(line []byte, h *RequestHead) error {
	parts := bytes.Split(line, []byte{SP})
	if len(parts) != 3 {
		return errors.New("request line is malformed")
	}

	method := string(parts[0])
	if !validFieldName(method) {
		return errors.New("method is not a valid token")
	}

	target := string(parts[1])
	if len(target) == 0 {
		return errors.New("request target should not be empty")
	}

	ver, err := ParseVersion(parts[2])
	if err != nil {
		return errors.Wrap(err, "parsing version")
	}

	h.Method, h.Target, h.Version = method, target, ver
	return nil
}

var (
	ErrStatusLineTooLong   = errors.New("status line length exceeds limit")
	ErrMalformedStatusLine = errors.New("status line is malformed")
)

type ResponseDecoder struct{ MessageDecoder }

func NewResponseDecoder(br *bufio.Reader, opts DecodeOptions) *ResponseDecoder {
	return &ResponseDecoder{MessageDecoder{br: br, opts: opts}}
}

// DecodeHead reads a status line and its headers.
func (rd *ResponseDecoder) DecodeHead(h *ResponseHead) error {
	line, err := rd.decodeStartLine()
	if err != nil {
		if errors.Is(err, errLineTooLong) {
			return ErrStatusLineTooLong
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrap(err, "reading status line")
	}

	if err := parseStatusLine(line, h); err != nil {
		return errors.Wrap(ErrMalformedStatusLine, err.Error())
	}

	if err := rd.decodeHeaders(&h.Fields); err != nil {
		return errors.Wrap(err, "parsing headers")
	}

	return nil
}

func parseStatusLine(line []byte, h *ResponseHead) error {
	parts := bytes.SplitN(line, []byte{SP}, 3)
	if len(parts) < 2 {
		return errors.New("status line is malformed")
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return errors.Wrap(err, "parsing version")
	}

	statusCodeStr := string(parts[1])
	statusCode, err := strconv.ParseUint(statusCodeStr, 10, 64)
	if err != nil || len(statusCodeStr) != 3 {
		return errors.Errorf("status code is malformed: %q", statusCodeStr)
	}

	// reason-phrase is optional.
	reasonPhrase := ""
	if len(parts) == 3 {
		reasonPhrase = string(parts[2])
	}

	h.Version, h.StatusCode, h.ReasonPhrase = ver, int(statusCode), reasonPhrase
	return nil
}
