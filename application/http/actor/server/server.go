package server

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"update-transport/application/http"
	"update-transport/lib/events"
	"update-transport/transport"

	"github.com/pkg/errors"
)

// Server accepts connections on one address and runs one exchange per
// connection as a [Stream]. Every method must be called from the loop
// goroutine.
type Server struct {
	config http.ServerConfig
	loop   *events.EventLoop
	logger *slog.Logger
	opts   Options

	listener net.Listener
	address  http.BrokenDownURL
	tok      *events.Token

	headerHandler http.RequestHandler
	bodyHandler   http.RequestHandler

	streams map[*Stream]struct{}
}

func New(config http.ServerConfig, loop *events.EventLoop, logger *slog.Logger, opts Options) *Server {
	return &Server{
		config:  config,
		loop:    loop,
		logger:  logger,
		opts:    opts.withDefaults(),
		tok:     events.CancelledToken(),
		streams: make(map[*Stream]struct{}),
	}
}

// AsyncServeURL starts listening on url, which must be a plain http URL
// without a path. Port 0 picks a free port, see [Server.Port].
//
// headerHandler is called for every request once its head is read, and
// bodyHandler once its body was consumed. bodyHandler is expected to call
// MakeResponse on the request.
func (s *Server) AsyncServeURL(url string, headerHandler, bodyHandler http.RequestHandler) error {
	address, err := http.BreakDownURL(url)
	if err != nil {
		return errors.Wrapf(err, "could not parse URL %s", url)
	}
	if address.Protocol != "http" {
		return errors.Wrap(http.ErrUnsupportedProtocol, address.Protocol)
	}
	if address.Path != "" && address.Path != "/" {
		return errors.Wrap(http.ErrInvalidURL, "URLs with paths are not supported when listening")
	}
	if headerHandler == nil || bodyHandler == nil {
		return errors.New("header handler and body handler must not be nil")
	}
	if !s.tok.Cancelled() {
		return errors.Wrap(http.ErrOperationInProgress, "server is already serving")
	}

	l, err := s.opts.Listen(context.Background(), address.HostPort())
	if err != nil {
		return err
	}

	s.listener, s.address = l, address
	s.headerHandler, s.bodyHandler = headerHandler, bodyHandler
	s.tok = events.NewToken()

	s.logger.Debug("serving", "address", l.Addr().String())
	s.accept(s.tok)
	return nil
}

func (s *Server) accept(tok *events.Token) {
	l := s.listener
	s.loop.Async(func() func() {
		conn, err := l.Accept()
		return func() {
			if tok.Cancelled() {
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				if !transport.IsClosed(err) {
					s.logger.Error("could not accept connection", "error", err)
				}
				return
			}

			s.newStream(conn)
			s.accept(tok)
		}
	})
}

func (s *Server) newStream(conn net.Conn) {
	stream := newStream(s, conn)
	s.streams[stream] = struct{}{}
	stream.log.Debug("accepted connection")
	stream.readHead()
}

// removeStream drops stream from the live set. It is called exactly once
// per stream, when its exchange ends.
func (s *Server) removeStream(stream *Stream) {
	if _, ok := s.streams[stream]; !ok {
		stream.log.Warn("removing a stream that is not live")
		return
	}
	delete(s.streams, stream)
}

// Cancel stops listening and cancels every live stream.
func (s *Server) Cancel() {
	if !s.tok.Cancelled() {
		s.tok.Cancel()
		s.listener.Close()
	}

	for stream := range s.streams {
		stream.Cancel()
	}
}

// Streams returns the number of live streams.
func (s *Server) Streams() int { return len(s.streams) }

// Port returns the port the server listens on, or 0 when not serving.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	addr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return addr.Port
}

// URL returns the address to reach the server at.
func (s *Server) URL() string {
	host := s.address.Host
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port()))
}
