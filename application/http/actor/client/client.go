package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"log/slog"
	"net/url"
	"update-transport/application/http"
	"update-transport/application/http/actor/common"
	"update-transport/application/http/status"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/pkg/errors"
	"golang.org/x/net/http/httpproxy"
)

// Client runs one HTTP exchange at a time on an event loop.
// Every method must be called from the loop goroutine.
type Client struct {
	config http.ClientConfig
	loop   *events.EventLoop
	logger *slog.Logger
	opts   Options

	proxyFunc func(*url.URL) (*url.URL, error)
	tlsConfig *tls.Config

	ignoredWarned bool

	// The fields below belong to the current exchange. tok is replaced on
	// every call and cancelled as soon as the exchange is over, so late
	// completions of an earlier exchange leave them alone.
	tok    *events.Token
	stop   context.CancelFunc
	status http.TransactionStatus
	log    *slog.Logger

	req           *http.OutgoingRequest
	resp          *http.IncomingResponse
	headerHandler http.ResponseHandler
	bodyHandler   http.ResponseHandler

	conn    *events.AsyncConn
	br      *bufio.Reader
	bodySrc iolib.AsyncReader

	// body is nil when the response has none.
	body       *common.Body
	framingErr error
}

var _ http.ClientInterface = (*Client)(nil)

func New(config http.ClientConfig, loop *events.EventLoop, logger *slog.Logger, opts Options) *Client {
	proxyConfig := &httpproxy.Config{
		HTTPProxy:  config.HTTPProxy,
		HTTPSProxy: config.HTTPSProxy,
		NoProxy:    config.NoProxy,
	}

	return &Client{
		config:    config,
		loop:      loop,
		logger:    logger,
		opts:      opts.withDefaults(),
		proxyFunc: proxyConfig.ProxyFunc(),
		tok:       events.CancelledToken(),
		stop:      func() {},
		status:    http.StatusDone,
		log:       logger,
	}
}

// initialize sets up TLS on first use, so a bad certificate path only
// fails the calls and not the construction.
func (c *Client) initialize() error {
	if c.tlsConfig != nil {
		return nil
	}

	tlsConfig, err := newTLSConfig(c.config, c.logger)
	if err != nil {
		return errors.Wrap(err, "initializing client")
	}
	c.tlsConfig = tlsConfig
	return nil
}

// AsyncCall starts an exchange. headerHandler is called once the response
// head arrived, then bodyHandler once the body was consumed. Each is called
// at most once, and bodyHandler never without headerHandler before it.
// A non-nil error means nothing was started and no handler will be called.
func (c *Client) AsyncCall(req *http.OutgoingRequest, headerHandler, bodyHandler http.ResponseHandler) error {
	if err := c.initialize(); err != nil {
		return err
	}

	if !c.tok.Cancelled() && c.status != http.StatusDone {
		return errors.Wrap(http.ErrOperationInProgress, "HTTP call already ongoing")
	}
	if err := req.Ready(); err != nil {
		return err
	}
	if headerHandler == nil || bodyHandler == nil {
		return errors.Wrap(http.ErrRequestNotReady, "header handler and body handler must not be nil")
	}
	if p := req.Protocol(); p != "http" && p != "https" {
		return errors.Wrap(http.ErrUnsupportedProtocol, p)
	}

	length, err := requestBodyLength(req)
	if err != nil {
		return err
	}

	r, err := c.route(req)
	if err != nil {
		return err
	}

	req.SetHeader("Host", hostHeader(req.Address()))

	head, err := http.EncodeRequestHead(http.RequestHead{
		Method:  req.Method().String(),
		Target:  r.target,
		Version: http.Version11,
		Fields:  req.HeaderFields(),
	}, c.opts.Send.Encode)
	if err != nil {
		return errors.Wrap(err, "encoding request head")
	}

	ctx, stop := context.WithCancel(context.Background())
	tok := events.NewToken()

	c.tok, c.stop = tok, stop
	c.status = http.StatusNone
	c.log = c.logger.With("url", req.URL())
	c.req, c.resp = req, nil
	c.headerHandler, c.bodyHandler = headerHandler, bodyHandler
	c.conn, c.br, c.bodySrc = nil, nil, nil
	c.body, c.framingErr = nil, nil

	if r.proxy != nil {
		c.log.Debug("connecting through proxy", "proxy", r.proxy.String())
	}

	tlsConfig := c.tlsConfig
	c.loop.Async(func() func() {
		conn, br, err := c.dial(ctx, r, tlsConfig)
		return func() {
			if tok.Cancelled() {
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				c.fail(c.headerHandler, err)
				return
			}

			c.log.Debug("connected", "remote", conn.RemoteAddr().String())
			c.conn, c.br = events.NewAsyncConn(c.loop, conn, br), br
			c.writeHead(tok, head, length)
		}
	})

	return nil
}

func requestBodyLength(req *http.OutgoingRequest) (uint64, error) {
	length, err := req.BodyLength()
	if err != nil {
		return 0, errors.Wrap(err, "validating request body")
	}

	_, hasLength := req.Header("Content-Length")
	switch {
	case req.Body() == nil && length > 0:
		return 0, errors.Wrapf(http.ErrBodyMissing, "Content-Length is %d but the request has no body", length)
	case req.Body() != nil && !hasLength:
		return 0, errors.Wrap(http.ErrUnsupportedBodyType, "a request body needs a Content-Length")
	}
	return length, nil
}

func (c *Client) writeHead(tok *events.Token, head []byte, length uint64) {
	err := c.conn.AsyncWrite(head, func(_ int, err error) {
		if tok.Cancelled() {
			return
		}
		if err != nil {
			c.fail(c.headerHandler, errors.Wrap(err, "writing request head"))
			return
		}
		if length == 0 {
			c.readHead(tok)
			return
		}
		c.writeBody(tok, length)
	})
	if err != nil {
		c.fail(c.headerHandler, errors.Wrap(err, "writing request head"))
	}
}

func (c *Client) writeBody(tok *events.Token, length uint64) {
	src, err := c.openBody()
	if err != nil {
		c.fail(c.headerHandler, err)
		return
	}
	c.bodySrc = src

	iolib.AsyncCopyN(c.conn, src, length, func(err error) {
		if tok.Cancelled() {
			return
		}
		if err != nil {
			c.fail(c.headerHandler, errors.Wrap(err, "writing request body"))
			return
		}
		c.readHead(tok)
	})
}

func (c *Client) openBody() (iolib.AsyncReader, error) {
	switch gen := c.req.Body().(type) {
	case http.BodyGenerator:
		r, err := gen()
		if err != nil {
			return nil, errors.Wrap(err, "generating request body")
		}
		return events.NewAsyncReader(c.loop, r), nil
	case http.AsyncBodyGenerator:
		r, err := gen()
		if err != nil {
			return nil, errors.Wrap(err, "generating request body")
		}
		return r, nil
	}
	return nil, errors.Wrap(http.ErrBodyMissing, "opening request body")
}

func (c *Client) readHead(tok *events.Token) {
	dec := http.NewResponseDecoder(c.br, c.opts.Receive.Decode)

	c.loop.Async(func() func() {
		var head http.ResponseHead
		err := dec.DecodeHead(&head)
		return func() {
			if tok.Cancelled() {
				return
			}
			if err != nil {
				c.fail(c.headerHandler, errors.Wrap(err, "reading response head"))
				return
			}
			c.handleHead(tok, head)
		}
	})
}

func (c *Client) handleHead(tok *events.Token, head http.ResponseHead) {
	headers := http.HeadersFrom(head.Fields)

	message := head.ReasonPhrase
	if !c.opts.Receive.UseReceivedReasonPhrase {
		message = status.Text(head.StatusCode)
	}

	c.log.Debug("received response", "status", head.StatusCode, "reason", message)
	c.resp = http.NewIncomingResponse(c, tok, c.log, head.StatusCode, message, headers)

	if hasBody(c.req.Method(), head.StatusCode) {
		var length uint64
		length, c.framingErr = http.BodyLength(&headers)
		if c.framingErr == nil && length > 0 {
			c.body = common.NewBody(c.loop, tok, c.br, length, &c.status, common.BodyHooks{
				Fail:   func(err error) { c.fail(c.bodyHandler, err) },
				Finish: c.finish,
				Cancel: c.Cancel,
			})
		}
	}

	c.status = http.StatusHeaderHandlerCalled
	c.headerHandler(c.resp, nil)
	if tok.Cancelled() {
		// Cancelled, or the connection was taken over.
		return
	}

	switch {
	case c.framingErr != nil:
		c.fail(c.bodyHandler, errors.Wrap(c.framingErr, "reading response body"))
	case c.body == nil:
		c.finish()
	case c.status == http.StatusHeaderHandlerCalled:
		if !c.ignoredWarned {
			c.log.Warn("discarding response body", "error", http.ErrBodyIgnored)
			c.ignoredWarned = true
		}
		c.body.Discard()
	}
}

// hasBody reports whether a response can carry a body at all.
func hasBody(method http.Method, code int) bool {
	switch {
	case method == http.MethodHead:
		return false
	case code >= 100 && code < 200, code == 204, code == 304:
		return false
	}
	return true
}

// MakeBodyAsyncReader hands the response body to the caller. It is only
// valid from within the header handler, and only once.
func (c *Client) MakeBodyAsyncReader(resp *http.IncomingResponse) (iolib.AsyncReader, error) {
	if c.tok.Cancelled() || resp != c.resp {
		return nil, errors.Wrap(http.ErrStreamCancelled, "making reader for a response that doesn't exist anymore")
	}
	if c.status != http.StatusHeaderHandlerCalled {
		return nil, errors.Wrap(http.ErrOperationInProgress, "MakeBodyAsyncReader called while reading is in progress")
	}
	if c.framingErr != nil {
		return nil, c.framingErr
	}
	if c.body == nil {
		return nil, errors.Wrap(http.ErrBodyMissing, "response does not contain a body")
	}

	return c.body.Reader(), nil
}

// SwitchProtocol detaches the connection from the client. The exchange
// ends without calling the body handler.
func (c *Client) SwitchProtocol(resp *http.IncomingResponse) (iolib.AsyncReadWriter, error) {
	if c.tok.Cancelled() || resp != c.resp {
		return nil, errors.Wrap(http.ErrStreamCancelled, "cannot switch protocols if endpoint is not connected")
	}
	if c.status != http.StatusHeaderHandlerCalled {
		return nil, errors.Wrap(http.ErrOperationInProgress, "body reading already started")
	}

	conn := c.conn
	// No longer ours to close.
	c.conn = nil
	c.teardown()

	c.log.Debug("switched protocol")
	return conn, nil
}

// Cancel aborts the current exchange, if any. The first handler not yet
// called receives a cancellation error. Calling it again, or after the
// exchange is over, does nothing.
func (c *Client) Cancel() {
	c.Abort(errors.Wrap(events.ErrCanceled, "HTTP request cancelled"))
}

// Abort ends the exchange like Cancel, handing err to the pending handler
// in place of the cancellation error.
func (c *Client) Abort(err error) {
	if c.tok.Cancelled() {
		return
	}

	state, resp := c.status, c.resp
	headerHandler, bodyHandler := c.headerHandler, c.bodyHandler

	c.teardown()

	switch state {
	case http.StatusNone:
		headerHandler(nil, err)
	case http.StatusHeaderHandlerCalled,
		http.StatusReaderCreated,
		http.StatusBodyReadingInProgress,
		http.StatusBodyReadingFinished:
		bodyHandler(resp, err)
	}
}

// teardown ends the current exchange. Handlers run after it, so they are
// free to start the next call on the same client.
func (c *Client) teardown() {
	c.tok.Cancel()
	c.stop()
	if c.conn != nil {
		c.conn.Cancel()
	}
	if c.bodySrc != nil {
		c.bodySrc.Cancel()
	}
	c.status = http.StatusDone
	c.conn, c.br, c.bodySrc = nil, nil, nil
	c.log = c.logger
}

func (c *Client) finish() {
	resp, handler := c.resp, c.bodyHandler
	c.log.Debug("exchange finished")
	c.teardown()
	handler(resp, nil)
}

func (c *Client) fail(handler http.ResponseHandler, err error) {
	resp := c.resp
	err = errors.Wrapf(err, "%s %s", c.req.Method(), c.req.URL())
	c.log.Debug("exchange failed", "error", err)
	c.teardown()
	handler(resp, err)
}
