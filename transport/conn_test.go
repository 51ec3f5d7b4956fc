package transport

import (
	"context"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDialer struct {
	tried []string
	ok    string
}

func (d *stubDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.tried = append(d.tried, address)
	if address == d.ok {
		left, right := net.Pipe()
		right.Close()
		return left, nil
	}
	return nil, errors.New("refused")
}

func TestDialFirst(t *testing.T) {
	d := &stubDialer{ok: "127.0.0.2:80"}

	conn, err := DialFirst(context.Background(), d, []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"}, "80")
	require.NoError(t, err)
	conn.Close()

	assert.Equal(t, []string{"127.0.0.1:80", "127.0.0.2:80"}, d.tried)
}

func TestDialFirstAllFail(t *testing.T) {
	d := &stubDialer{}

	_, err := DialFirst(context.Background(), d, []string{"::1", "127.0.0.1"}, "443")
	assert.Error(t, err)
	assert.Equal(t, []string{"[::1]:443", "127.0.0.1:443"}, d.tried)

	_, err = DialFirst(context.Background(), d, nil, "443")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestListenAndClose(t *testing.T) {
	l, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, l.Close())
	_, err = l.Accept()
	assert.True(t, IsClosed(err))
}
