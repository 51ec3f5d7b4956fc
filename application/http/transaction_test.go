package http

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutgoingRequestBodyIsExclusive(t *testing.T) {
	req := NewOutgoingRequest()
	assert.Nil(t, req.Body())

	req.SetBodyGenerator(func() (io.Reader, error) { return bytes.NewReader(nil), nil })
	_, ok := req.Body().(BodyGenerator)
	assert.True(t, ok)

	req.SetAsyncBodyGenerator(func() (iolib.AsyncReader, error) { return nil, nil })
	_, ok = req.Body().(AsyncBodyGenerator)
	assert.True(t, ok)

	req.ClearBody()
	assert.Nil(t, req.Body())
}

func TestOutgoingRequestReady(t *testing.T) {
	req := NewOutgoingRequest()
	assert.ErrorIs(t, req.Ready(), ErrRequestNotReady)

	req.SetMethod(MethodGet)
	assert.ErrorIs(t, req.Ready(), ErrRequestNotReady)

	assert.Error(t, req.SetAddress("not a url"))
	assert.ErrorIs(t, req.Ready(), ErrRequestNotReady)

	require.NoError(t, req.SetAddress("http://127.0.0.1:8001/endpoint"))
	assert.NoError(t, req.Ready())
	assert.Equal(t, "/endpoint", req.Path())
	assert.Equal(t, 8001, req.Port())
}

func TestOutgoingRequestHeaders(t *testing.T) {
	req := NewOutgoingRequest()
	req.SetHeader("range", "bytes=0-9")

	v, err := req.GetHeader("Range")
	assert.NoError(t, err)
	assert.Equal(t, "bytes=0-9", v)

	_, err = req.GetHeader("Content-Length")
	assert.ErrorIs(t, err, ErrNoSuchHeader)

	clone := req.Clone()
	clone.SetHeader("Range", "bytes=5-9")
	v, _ = req.GetHeader("Range")
	assert.Equal(t, "bytes=0-9", v)
}

func TestBodyLength(t *testing.T) {
	testcases := []struct {
		desc     string
		headers  map[string]string
		expected uint64
		wantErr  error
	}{
		{desc: "no framing", expected: 0},
		{desc: "content length", headers: map[string]string{"Content-Length": "42"}, expected: 42},
		{desc: "negative", headers: map[string]string{"Content-Length": "-1"}, wantErr: ErrInvalidLength},
		{desc: "garbage", headers: map[string]string{"Content-Length": "a lot"}, wantErr: ErrInvalidLength},
		{desc: "chunked", headers: map[string]string{"Transfer-Encoding": "chunked"}, wantErr: ErrUnsupportedBodyType},
		{desc: "gzip", headers: map[string]string{"Transfer-Encoding": "gzip"}, wantErr: ErrUnsupportedBodyType},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			h := NewHeaders(tc.headers)
			n, err := BodyLength(&h)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, n)
		})
	}
}

type stubClient struct {
	cancelled int
}

func (c *stubClient) AsyncCall(*OutgoingRequest, ResponseHandler, ResponseHandler) error { return nil }
func (c *stubClient) MakeBodyAsyncReader(*IncomingResponse) (iolib.AsyncReader, error) {
	return nil, ErrBodyMissing
}
func (c *stubClient) Cancel() { c.cancelled++ }

func TestIncomingResponseAfterCancel(t *testing.T) {
	client := &stubClient{}
	tok := events.NewToken()
	resp := NewIncomingResponse(client, tok, slog.New(slog.DiscardHandler), 200, "OK", Headers{})

	_, err := resp.MakeBodyAsyncReader()
	assert.ErrorIs(t, err, ErrBodyMissing)

	resp.Cancel()
	assert.Equal(t, 1, client.cancelled)

	tok.Cancel()
	resp.Cancel()
	assert.Equal(t, 1, client.cancelled)

	_, err = resp.MakeBodyAsyncReader()
	assert.ErrorIs(t, err, ErrStreamCancelled)
	_, err = resp.SwitchProtocol()
	assert.ErrorIs(t, err, ErrStreamCancelled)
}
