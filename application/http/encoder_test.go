package http

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type MessageEncoderTestSuite struct {
	suite.Suite
}

func TestMessageEncoderTestSuite(t *testing.T) {
	suite.Run(t, new(MessageEncoderTestSuite))
}

func (s *MessageEncoderTestSuite) TestWriteLine() {
	testcases := []struct {
		desc     string
		input    []byte
		opts     EncodeOptions
		expected string
	}{
		{
			desc:     "simple line with CRLF",
			input:    []byte("Hello"),
			expected: "Hello\r\n",
		},
		{
			desc:     "simple line with LF",
			input:    []byte("Hello"),
			opts:     EncodeOptions{UseSoleLF: true},
			expected: "Hello\n",
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			me := newMessageEncoder(tc.opts)

			s.NoError(me.writeLine(tc.input))

			b, err := me.bytes()
			s.NoError(err)
			s.Equal(tc.expected, string(b))
		})
	}
}

func (s *MessageEncoderTestSuite) TestEncodeHeaders() {
	testcases := []struct {
		desc     string
		headers  []Field
		expected string
		wantErr  error
	}{
		{
			desc:     "simple headers with CRLF",
			headers:  []Field{{[]byte("Host"), []byte("example.com")}},
			expected: "Host: example.com\r\n\r\n",
		},
		{
			desc:     "empty headers",
			headers:  nil,
			expected: "\r\n",
		},
		{
			desc:    "invalid name",
			headers: []Field{{[]byte("Bad Name"), []byte("x")}},
			wantErr: ErrInvalidField,
		},
		{
			desc:    "value with newline",
			headers: []Field{{[]byte("X-Injected"), []byte("a\r\nHost: evil")}},
			wantErr: ErrInvalidField,
		},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			me := newMessageEncoder(DefaultEncodeOptions)

			err := me.encodeHeaders(tc.headers)
			if tc.wantErr != nil {
				s.ErrorIs(err, tc.wantErr)
				return
			}
			s.NoError(err)

			b, err := me.bytes()
			s.NoError(err)
			s.Equal(tc.expected, string(b))
		})
	}
}

func (s *MessageEncoderTestSuite) TestEncodeRequestHead() {
	h := NewHeaders(map[string]string{"host": "example.com", "content-length": "4"})

	b, err := EncodeRequestHead(RequestHead{
		Method:  "POST",
		Target:  "/api/devices/v1/inventory",
		Version: Version11,
		Fields:  h.Fields(),
	}, DefaultEncodeOptions)
	s.Require().NoError(err)

	s.Equal(""+
		"POST /api/devices/v1/inventory HTTP/1.1\r\n"+
		"Content-Length: 4\r\n"+
		"Host: example.com\r\n"+
		"\r\n", string(b))

	_, err = EncodeRequestHead(RequestHead{Target: "/"}, DefaultEncodeOptions)
	s.Error(err)
}

func (s *MessageEncoderTestSuite) TestEncodeRequestHeadRejectsInvalidLine() {
	testcases := []struct {
		desc   string
		method string
		target string
	}{
		{desc: "target with line break", method: "GET", target: "/a\r\nX-Injected: yes"},
		{desc: "target with space", method: "GET", target: "/a HTTP/1.0"},
		{desc: "target with tab", method: "GET", target: "/a\tb"},
		{desc: "method with space", method: "GET /", target: "/"},
		{desc: "method with line break", method: "GET\r\n", target: "/"},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			_, err := EncodeRequestHead(RequestHead{
				Method:  tc.method,
				Target:  tc.target,
				Version: Version11,
			}, DefaultEncodeOptions)
			s.ErrorIs(err, ErrInvalidStartLine)
		})
	}
}

func (s *MessageEncoderTestSuite) TestEncodeResponseHead() {
	b, err := EncodeResponseHead(ResponseHead{
		Version:      Version11,
		StatusCode:   206,
		ReasonPhrase: "Partial Content",
		Fields:       []Field{{[]byte("Content-Range"), []byte("bytes 10-19/20")}},
	}, DefaultEncodeOptions)
	s.Require().NoError(err)

	s.Equal(""+
		"HTTP/1.1 206 Partial Content\r\n"+
		"Content-Range: bytes 10-19/20\r\n"+
		"\r\n", string(b))

	_, err = EncodeResponseHead(ResponseHead{Version: Version11, StatusCode: 42}, DefaultEncodeOptions)
	s.Error(err)
}

func (s *MessageEncoderTestSuite) TestEncodeResponseHeadReasonPhrase() {
	testcases := []struct {
		desc    string
		reason  string
		wantErr bool
	}{
		{desc: "empty", reason: ""},
		{desc: "with spaces and tab", reason: "Not\tVery Good"},
		{desc: "obsolete text", reason: "Caf\xe9"},
		{desc: "line break", reason: "OK\r\nSet-Cookie: a=b", wantErr: true},
		{desc: "sole LF", reason: "OK\nX: y", wantErr: true},
		{desc: "NUL", reason: "O\x00K", wantErr: true},
	}

	for _, tc := range testcases {
		s.Run(tc.desc, func() {
			_, err := EncodeResponseHead(ResponseHead{
				Version:      Version11,
				StatusCode:   200,
				ReasonPhrase: tc.reason,
			}, DefaultEncodeOptions)
			if tc.wantErr {
				s.ErrorIs(err, ErrInvalidStartLine)
				return
			}
			s.NoError(err)
		})
	}
}
