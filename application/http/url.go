package http

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

type BrokenDownURL struct {
	Protocol string
	Host     string
	Port     int
	Path     string
}

// BreakDownURL splits url into protocol, host, port and path.
// The port defaults to the well known port of the protocol.
func BreakDownURL(url string) (BrokenDownURL, error) {
	const sep = "://"

	protocol, rest, found := strings.Cut(url, sep)
	if !found {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s is not a valid URL", url)
	}
	if protocol == "" {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s: missing hostname", url)
	}

	address := BrokenDownURL{Protocol: protocol, Path: "/"}

	hostPort := rest
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		hostPort, address.Path = rest[:idx], rest[idx:]
	}
	if !validTarget(address.Path) {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%q: path contains control characters or spaces", url)
	}

	if strings.Contains(hostPort, "@") {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s: username and password are not supported", url)
	}

	host, portStr, hasPort, err := splitHostPort(hostPort)
	if err != nil {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s: %s", url, err)
	}
	if host == "" {
		return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s: missing hostname", url)
	}

	if net.ParseIP(host) == nil {
		host, err = idna.Lookup.ToASCII(host)
		if err != nil {
			return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s: invalid host: %s", url, err)
		}
	}
	address.Host = host

	if hasPort {
		port, err := strconv.Atoi(portStr)
		// Port 0 is kept for listening on any free port.
		if err != nil || port < 0 || port > 65535 {
			return BrokenDownURL{}, errors.Wrapf(ErrInvalidURL, "%s contains invalid port number", url)
		}
		address.Port = port
		return address, nil
	}

	port, ok := DefaultPort(protocol)
	if !ok {
		return BrokenDownURL{}, errors.Wrapf(
			ErrUnsupportedProtocol, "cannot deduce port number from protocol %s", protocol,
		)
	}
	address.Port = port

	return address, nil
}

// validTarget reports whether s can be put on a request line as is.
func validTarget(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}

func DefaultPort(protocol string) (int, bool) {
	switch protocol {
	case "http":
		return 80, true
	case "https":
		return 443, true
	}
	return 0, false
}

func splitHostPort(s string) (host, port string, hasPort bool, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", "", false, errors.New("missing ']' in host")
		}
		host, rest := s[1:end], s[end+1:]
		if rest == "" {
			return host, "", false, nil
		}
		if rest[0] != ':' {
			return "", "", false, errors.New("unexpected characters after host")
		}
		return host, rest[1:], true, nil
	}

	host, port, hasPort = strings.Cut(s, ":")
	return host, port, hasPort, nil
}

// HostPort returns the address to dial.
func (u BrokenDownURL) HostPort() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

func (u BrokenDownURL) String() string {
	return u.Protocol + "://" + u.HostPort() + u.Path
}

// URLEncode percent-encodes everything except alphanumerics and "-_.~".
func URLEncode(s string) string {
	const hexSet = "0123456789ABCDEF"

	b := new(strings.Builder)
	b.Grow(len(s))

	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.Write([]byte{'%', hexSet[c>>4], hexSet[c&0xF]})
	}

	return b.String()
}

// Reference: https://datatracker.ietf.org/doc/html/rfc3986#section-2.3
func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '.', '_', '~':
		return true
	}
	return false
}

// JoinOneURL joins prefix and suffix with exactly one slash between them.
func JoinOneURL(prefix, suffix string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(suffix, "/")
}

func JoinURL(prefix string, parts ...string) string {
	for _, p := range parts {
		prefix = JoinOneURL(prefix, p)
	}
	return prefix
}
