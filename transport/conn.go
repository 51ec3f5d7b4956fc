package transport

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

var ErrNoAddress = errors.New("no address to connect to")

// Resolver looks up the addresses of a host. [net.Resolver] satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens connections. [net.Dialer] satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

var (
	_ Resolver = (*net.Resolver)(nil)
	_ Dialer   = (*net.Dialer)(nil)
)

func DefaultResolver() Resolver { return net.DefaultResolver }

func DefaultDialer() Dialer { return &net.Dialer{} }

// DialFirst tries addrs in order and returns the first connection that
// succeeds. The error of the last attempt is returned when all fail.
func DialFirst(ctx context.Context, d Dialer, addrs []string, port string) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, ErrNoAddress
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, errors.Wrap(lastErr, "connecting")
}

// Listen opens a TCP listener on address.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	return l, nil
}

// IsClosed reports whether err comes from using a closed connection.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
