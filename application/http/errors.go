package http

import "github.com/pkg/errors"

var (
	ErrNoSuchHeader        = errors.New("no such header")
	ErrInvalidURL          = errors.New("malformed URL")
	ErrBodyMissing         = errors.New("body is missing")
	ErrBodyIgnored         = errors.New("HTTP stream contains a body, but a reader has not been created for it")
	ErrHTTPInit            = errors.New("failed to initialize the client")
	ErrUnsupportedMethod   = errors.New("unsupported HTTP method")
	ErrStreamCancelled     = errors.New("stream has been cancelled")
	ErrUnsupportedBodyType = errors.New("HTTP stream has a body type we don't understand")
	ErrMaxRetry            = errors.New("tried maximum number of times")
	ErrDownloadResumer     = errors.New("resume download error")
	ErrProxy               = errors.New("proxy error")
	ErrPartialMessage      = errors.New("partial message")
	ErrRequestNotReady     = errors.New("request is not ready")
	ErrUnsupportedProtocol = errors.New("protocol not supported")
	ErrOperationInProgress = errors.New("operation in progress")
	ErrInvalidLength       = errors.New("invalid Content-Length")
)
