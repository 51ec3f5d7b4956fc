package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"update-transport/application/http"
	iolib "update-transport/lib/io"
	"update-transport/transport"

	"github.com/pkg/errors"
)

// dial connects to the origin of r, through the proxy if there is one,
// and performs every TLS handshake on the way. It blocks, so it runs off
// the loop. Cancelling ctx aborts it at any stage.
func (c *Client) dial(ctx context.Context, r route, tlsConfig *tls.Config) (net.Conn, *bufio.Reader, error) {
	hop := r.firstHop()

	addrs := []string{hop.Host}
	if net.ParseIP(hop.Host) == nil {
		var err error
		addrs, err = c.opts.Resolver.LookupHost(ctx, hop.Host)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "resolving host %s", hop.Host)
		}
	}

	conn, err := transport.DialFirst(ctx, c.opts.Dialer, addrs, strconv.Itoa(hop.Port))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "dialing %s", hop.HostPort())
	}

	// Blocking calls below don't all take a context; closing the
	// connection is what unblocks them.
	raw := conn
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	defer stop()

	if hop.Protocol == "https" {
		if conn, err = handshake(ctx, conn, tlsConfig, hop.Host); err != nil {
			return nil, nil, err
		}
	}

	br := bufio.NewReaderSize(conn, iolib.BufferSize)

	if r.tunnel != "" {
		if err := openTunnel(conn, br, r.tunnel, c.opts); err != nil {
			conn.Close()
			return nil, nil, err
		}
		if conn, err = handshake(ctx, conn, tlsConfig, r.origin.Host); err != nil {
			return nil, nil, err
		}
		br = bufio.NewReaderSize(conn, iolib.BufferSize)
	}

	if ctx.Err() != nil {
		conn.Close()
		return nil, nil, errors.Wrap(ctx.Err(), "connecting")
	}
	return conn, br, nil
}

func handshake(ctx context.Context, conn net.Conn, base *tls.Config, host string) (net.Conn, error) {
	config := base.Clone()
	config.ServerName = host

	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "TLS handshake with %s", host)
	}
	return tlsConn, nil
}

// hostHeader is the value of the Host field for u.
func hostHeader(u http.BrokenDownURL) string {
	if port, ok := http.DefaultPort(u.Protocol); ok && port == u.Port {
		if net.ParseIP(u.Host) != nil && net.ParseIP(u.Host).To4() == nil {
			return "[" + u.Host + "]"
		}
		return u.Host
	}
	return u.HostPort()
}
