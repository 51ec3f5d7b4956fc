package server

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"runtime"
	"update-transport/application/http"
	"update-transport/application/http/actor/common"
	"update-transport/application/http/status"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"
	"weak"

	"github.com/pkg/errors"
)

// replySlot tracks who owns the response of a stream.
type replySlot interface{ isReplySlot() }

// pendingReply is a response handed to the application that has not been
// sent yet. The stream does not keep it alive: dropping it aborts the
// exchange.
type pendingReply struct {
	resp weak.Pointer[http.OutgoingResponse]
}

// replying is a response being written. The stream owns it until the
// reply handler was called.
type replying struct {
	resp *http.OutgoingResponse
}

func (pendingReply) isReplySlot() {}
func (replying) isReplySlot()     {}

// Stream runs the single exchange of one accepted connection.
type Stream struct {
	server *Server
	loop   *events.EventLoop
	log    *slog.Logger

	conn *events.AsyncConn
	br   *bufio.Reader
	tok  *events.Token

	status http.TransactionStatus
	req    *http.IncomingRequest

	// body is nil when the request has none.
	body       *common.Body
	framingErr error

	slot          replySlot
	bodySrc       iolib.AsyncReader
	replyHandler  http.ReplyFinishedHandler
	switchHandler http.SwitchProtocolHandler
}

var _ http.StreamInterface = (*Stream)(nil)

func newStream(server *Server, conn net.Conn) *Stream {
	br := bufio.NewReaderSize(conn, iolib.BufferSize)
	peer := conn.RemoteAddr().String()

	s := &Stream{
		server: server,
		loop:   server.loop,
		log:    server.logger.With("peer", peer),
		conn:   events.NewAsyncConn(server.loop, conn, br),
		br:     br,
		tok:    events.NewToken(),
		status: http.StatusNone,
	}
	s.req = http.NewIncomingRequest(s, s.tok, s.log, peer)
	return s
}

func (s *Stream) readHead() {
	tok := s.tok
	dec := http.NewRequestDecoder(s.br, s.server.config.Decode)

	s.loop.Async(func() func() {
		var head http.RequestHead
		err := dec.DecodeHead(&head)
		return func() {
			if tok.Cancelled() {
				return
			}
			if err == io.EOF {
				s.log.Debug("connection closed before a request was sent")
				s.end()
				return
			}
			if err != nil {
				s.fail(s.server.headerHandler, errors.Wrap(err, "reading request head"))
				return
			}
			s.handleHead(tok, head)
		}
	})
}

func (s *Stream) handleHead(tok *events.Token, head http.RequestHead) {
	headers := http.HeadersFrom(head.Fields)

	method, err := http.ParseMethod(head.Method)
	if err != nil {
		s.req.SetHead("", head.Target, headers)
		s.fail(s.server.headerHandler, err)
		return
	}
	s.req.SetHead(method, head.Target, headers)
	s.log.Debug("received request", "method", method, "path", head.Target)

	var length uint64
	length, s.framingErr = http.BodyLength(&headers)
	if s.framingErr == nil && length > 0 {
		s.body = common.NewBody(s.loop, tok, s.br, length, &s.status, common.BodyHooks{
			Fail:   func(err error) { s.fail(s.server.bodyHandler, err) },
			Finish: s.callBodyHandler,
			Cancel: s.Cancel,
		})
	}

	s.status = http.StatusHeaderHandlerCalled
	s.server.headerHandler(s.req, nil)
	if tok.Cancelled() {
		return
	}

	switch {
	case s.framingErr != nil:
		s.fail(s.server.bodyHandler, errors.Wrap(s.framingErr, "reading request body"))
	case s.body == nil:
		s.status = http.StatusBodyReadingFinished
		s.callBodyHandler()
	case s.status == http.StatusHeaderHandlerCalled:
		s.log.Warn("discarding request body", "error", http.ErrBodyIgnored)
		s.body.Discard()
	}
}

func (s *Stream) callBodyHandler() {
	tok := s.tok
	s.status = http.StatusBodyHandlerCalled
	s.server.bodyHandler(s.req, nil)
	if tok.Cancelled() {
		return
	}

	if s.status == http.StatusBodyHandlerCalled && s.slot == nil {
		s.log.Error("handler produced no response")
		s.end()
	}
}

// MakeBodyAsyncReader hands the request body to the caller. It is only
// valid from within the header handler, and only once.
func (s *Stream) MakeBodyAsyncReader(req *http.IncomingRequest) (iolib.AsyncReader, error) {
	if s.tok.Cancelled() || req != s.req {
		return nil, errors.Wrap(http.ErrStreamCancelled, "making reader for a request that doesn't exist anymore")
	}
	if s.status != http.StatusHeaderHandlerCalled {
		return nil, errors.Wrap(http.ErrOperationInProgress, "MakeBodyAsyncReader called while reading is in progress")
	}
	if s.framingErr != nil {
		return nil, s.framingErr
	}
	if s.body == nil {
		return nil, errors.Wrap(http.ErrBodyMissing, "request does not contain a body")
	}

	return s.body.Reader(), nil
}

// MakeResponse creates the response of req. It is only valid from within
// the body handler, and only once.
//
// The stream holds the response weakly until AsyncReply. Dropping it aborts
// the exchange after a garbage collection cycle, so the timing is up to the
// runtime. OutgoingResponse.Cancel aborts deterministically.
func (s *Stream) MakeResponse(req *http.IncomingRequest) (*http.OutgoingResponse, error) {
	if s.tok.Cancelled() || req != s.req {
		return nil, errors.Wrap(http.ErrStreamCancelled, "making response for a request that doesn't exist anymore")
	}
	if s.status != http.StatusBodyHandlerCalled {
		return nil, errors.Wrapf(http.ErrOperationInProgress, "MakeResponse called in state %s", s.status)
	}
	if s.slot != nil {
		return nil, errors.Wrap(http.ErrOperationInProgress, "response already made")
	}

	resp := http.NewOutgoingResponse(s, s.tok)
	s.slot = pendingReply{resp: weak.Make(resp)}

	loop := s.loop
	runtime.AddCleanup(resp, func(tok *events.Token) {
		loop.Post(func() { s.responseDropped(tok) })
	}, s.tok)

	return resp, nil
}

// responseDropped runs once a response became unreachable. It only matters
// when the application never replied with it.
func (s *Stream) responseDropped(tok *events.Token) {
	if tok.Cancelled() {
		return
	}
	if _, ok := s.slot.(pendingReply); !ok {
		return
	}
	s.log.Debug("response dropped without a reply")
	s.end()
}

// own moves resp from pending to replying.
func (s *Stream) own(resp *http.OutgoingResponse) error {
	if s.tok.Cancelled() {
		return errors.Wrap(http.ErrStreamCancelled, "replying to a request that doesn't exist anymore")
	}
	switch slot := s.slot.(type) {
	case pendingReply:
		if slot.resp.Value() != resp {
			return errors.New("response was not made by this stream")
		}
	case replying:
		return errors.Wrap(http.ErrOperationInProgress, "reply already in progress")
	default:
		return errors.New("response was not made by this stream")
	}
	s.slot = replying{resp: resp}
	return nil
}

func (s *Stream) encodeHead(resp *http.OutgoingResponse) ([]byte, error) {
	message := resp.StatusMessage()
	if message == "" && s.server.opts.FillReasonPhrase {
		message = status.Text(resp.StatusCode())
	}
	if _, ok := resp.Header("Connection"); !ok {
		resp.SetHeader("Connection", "close")
	}

	head, err := http.EncodeResponseHead(http.ResponseHead{
		Version:      http.Version11,
		StatusCode:   resp.StatusCode(),
		ReasonPhrase: message,
		Fields:       resp.HeaderFields(),
	}, s.server.config.Encode)
	if err != nil {
		return nil, errors.Wrap(err, "encoding response head")
	}
	return head, nil
}

// AsyncReply writes resp. The head always goes out first; a body framed
// with Transfer-Encoding then fails the reply with ErrUnsupportedBodyType.
// handler is called once, after which the stream is closed.
func (s *Stream) AsyncReply(resp *http.OutgoingResponse, handler http.ReplyFinishedHandler) error {
	if handler == nil {
		return errors.New("reply handler must not be nil")
	}

	length, framingErr := resp.BodyLength()
	if framingErr != nil && !errors.Is(framingErr, http.ErrUnsupportedBodyType) {
		return errors.Wrap(framingErr, "validating response body")
	}
	if framingErr == nil {
		_, hasLength := resp.Header("Content-Length")
		switch {
		case resp.Body() == nil && length > 0:
			return errors.Wrapf(http.ErrBodyMissing, "Content-Length is %d but the response has no body", length)
		case resp.Body() != nil && !hasLength:
			return errors.Wrap(http.ErrUnsupportedBodyType, "a response body needs a Content-Length")
		}
	}

	if err := s.own(resp); err != nil {
		return err
	}
	head, err := s.encodeHead(resp)
	if err != nil {
		s.slot = pendingReply{resp: weak.Make(resp)}
		return err
	}

	s.status = http.StatusReplying
	s.replyHandler = handler

	tok := s.tok
	err = s.conn.AsyncWrite(head, func(_ int, err error) {
		if tok.Cancelled() {
			return
		}
		switch {
		case err != nil:
			s.failReply(errors.Wrap(err, "writing response head"))
		case framingErr != nil:
			s.failReply(errors.Wrap(framingErr, "writing response body"))
		case length == 0:
			s.finishReply()
		default:
			s.writeBody(tok, resp, length)
		}
	})
	if err != nil {
		s.failReply(errors.Wrap(err, "writing response head"))
	}
	return nil
}

func (s *Stream) writeBody(tok *events.Token, resp *http.OutgoingResponse, length uint64) {
	var src iolib.AsyncReader
	switch body := resp.Body().(type) {
	case http.SyncReplyBody:
		src = events.NewAsyncReader(s.loop, body.Reader)
	case http.AsyncReplyBody:
		src = body.AsyncReader
	}
	s.bodySrc = src

	iolib.AsyncCopyN(s.conn, src, length, func(err error) {
		if tok.Cancelled() {
			return
		}
		if err != nil {
			s.failReply(errors.Wrap(err, "writing response body"))
			return
		}
		s.finishReply()
	})
}

func (s *Stream) finishReply() {
	handler := s.replyHandler
	s.log.Debug("reply finished")
	s.end()
	handler(nil)
}

func (s *Stream) failReply(err error) {
	handler := s.replyHandler
	s.log.Debug("reply failed", "error", err)
	s.end()
	handler(err)
}

// AsyncSwitchProtocol writes resp, which is expected to carry status 101,
// and hands the connection to handler. Bytes the peer sent after the
// request head are delivered by the first reads.
func (s *Stream) AsyncSwitchProtocol(resp *http.OutgoingResponse, handler http.SwitchProtocolHandler) error {
	if handler == nil {
		return errors.New("switch protocol handler must not be nil")
	}
	if resp.Body() != nil {
		return errors.New("a protocol switch response cannot carry a body")
	}

	if err := s.own(resp); err != nil {
		return err
	}
	head, err := http.EncodeResponseHead(http.ResponseHead{
		Version:      http.Version11,
		StatusCode:   resp.StatusCode(),
		ReasonPhrase: resp.StatusMessage(),
		Fields:       resp.HeaderFields(),
	}, s.server.config.Encode)
	if err != nil {
		s.slot = pendingReply{resp: weak.Make(resp)}
		return errors.Wrap(err, "encoding response head")
	}

	s.status = http.StatusSwitchingProtocol
	s.switchHandler = handler

	tok := s.tok
	err = s.conn.AsyncWrite(head, func(_ int, err error) {
		if tok.Cancelled() {
			return
		}
		if err != nil {
			s.end()
			handler(nil, errors.Wrap(err, "writing response head"))
			return
		}

		conn := s.conn
		// No longer ours to close.
		s.conn = nil
		s.log.Debug("switched protocol")
		s.end()
		handler(conn, nil)
	})
	if err != nil {
		s.end()
		handler(nil, errors.Wrap(err, "writing response head"))
	}
	return nil
}

// Cancel aborts the exchange. The handler the stream is waiting on
// receives a cancellation error. Calling it again does nothing.
func (s *Stream) Cancel() {
	s.Abort(errors.Wrap(events.ErrCanceled, "HTTP response cancelled"))
}

// Abort ends the stream like Cancel, with err in place of the
// cancellation error.
func (s *Stream) Abort(err error) {
	if s.tok.Cancelled() {
		return
	}

	state, req := s.status, s.req
	replyHandler, switchHandler := s.replyHandler, s.switchHandler

	s.end()

	switch state {
	case http.StatusNone:
		s.server.headerHandler(req, err)
	case http.StatusHeaderHandlerCalled,
		http.StatusReaderCreated,
		http.StatusBodyReadingInProgress,
		http.StatusBodyReadingFinished:
		s.server.bodyHandler(req, err)
	case http.StatusReplying:
		replyHandler(err)
	case http.StatusSwitchingProtocol:
		switchHandler(nil, err)
	}
}

// end closes the stream and removes it from the server. Handlers run
// after it.
func (s *Stream) end() {
	if s.tok.Cancelled() {
		return
	}
	s.tok.Cancel()
	if s.conn != nil {
		s.conn.Cancel()
	}
	if s.bodySrc != nil {
		s.bodySrc.Cancel()
	}
	s.status = http.StatusDone
	s.conn, s.bodySrc, s.slot = nil, nil, nil
	s.server.removeStream(s)
}

func (s *Stream) fail(handler http.RequestHandler, err error) {
	s.log.Debug("exchange failed", "error", err)
	s.end()
	handler(s.req, err)
}
