package client

import (
	"bufio"
	"net"
	"net/url"
	"update-transport/application/http"

	"github.com/pkg/errors"
)

// route describes how to reach the origin of a request.
type route struct {
	origin http.BrokenDownURL
	// proxy is nil when connecting to the origin directly.
	proxy *http.BrokenDownURL
	// target is the request-target put on the request line.
	target string
	// tunnel is the authority to CONNECT to, empty when not tunnelling.
	tunnel string
}

// firstHop is where the TCP connection goes.
func (r route) firstHop() http.BrokenDownURL {
	if r.proxy != nil {
		return *r.proxy
	}
	return r.origin
}

func (c *Client) route(req *http.OutgoingRequest) (route, error) {
	origin := req.Address()
	r := route{origin: origin, target: origin.Path}

	proxyURL, err := c.proxyFunc(&url.URL{Scheme: origin.Protocol, Host: origin.HostPort()})
	if err != nil {
		return route{}, errors.Wrapf(http.ErrInvalidURL, "proxy configuration: %s", err)
	}
	if proxyURL == nil {
		return r, nil
	}

	if proxyURL.Path != "" && proxyURL.Path != "/" {
		return route{}, errors.Wrap(http.ErrInvalidURL, "a URL with a path is not legal for a proxy address")
	}
	proxy, err := http.BreakDownURL(proxyURL.Scheme + "://" + proxyURL.Host)
	if err != nil {
		return route{}, errors.Wrap(err, "parsing proxy URL")
	}
	if proxy.Protocol != "http" && proxy.Protocol != "https" {
		return route{}, errors.Wrapf(http.ErrUnsupportedProtocol, "proxy protocol %s", proxy.Protocol)
	}
	r.proxy = &proxy

	switch origin.Protocol {
	case "http":
		// Plain requests are forwarded by the proxy in absolute form.
		r.target = origin.String()
	case "https":
		r.tunnel = origin.HostPort()
	}
	return r, nil
}

// openTunnel asks the proxy on conn to connect to authority.
func openTunnel(conn net.Conn, br *bufio.Reader, authority string, opts Options) error {
	head, err := http.EncodeRequestHead(http.RequestHead{
		Method:  string(http.MethodConnect),
		Target:  authority,
		Version: http.Version11,
		Fields:  []http.Field{{Name: []byte("Host"), Value: []byte(authority)}},
	}, opts.Send.Encode)
	if err != nil {
		return errors.Wrap(err, "encoding CONNECT request")
	}
	if _, err := conn.Write(head); err != nil {
		return errors.Wrap(err, "writing CONNECT request")
	}

	var resp http.ResponseHead
	if err := http.NewResponseDecoder(br, opts.Receive.Decode).DecodeHead(&resp); err != nil {
		return errors.Wrap(err, "reading proxy response")
	}
	if resp.StatusCode != 200 {
		return errors.Wrapf(http.ErrProxy, "proxy returned unexpected response: %d %s", resp.StatusCode, resp.ReasonPhrase)
	}

	headers := http.HeadersFrom(resp.Fields)
	if n, err := http.BodyLength(&headers); err != nil || n != 0 {
		return errors.Wrap(http.ErrProxy, "body not allowed in proxy response")
	}
	if br.Buffered() > 0 {
		return errors.Wrap(http.ErrProxy, "proxy sent data before the TLS handshake")
	}
	return nil
}
