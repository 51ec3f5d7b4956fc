package main

import (
	"hash"
	"io"
	"log/slog"
	"time"
	"update-transport/application/http"
	"update-transport/application/http/resumer"
	"update-transport/lib/events"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

type result struct {
	size   int64
	digest []byte
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// fetch downloads url into w, resuming the download when the connection
// breaks. A timeout of zero waits forever.
func fetch(
	config http.ClientConfig,
	logger *slog.Logger,
	opts resumer.Options,
	url string,
	w io.Writer,
	timeout time.Duration,
) (result, error) {
	req := http.NewOutgoingRequest()
	req.SetMethod(http.MethodGet)
	if err := req.SetAddress(url); err != nil {
		return result{}, err
	}

	loop := events.NewEventLoop(clock.New())
	client := resumer.New(config, loop, logger, opts)

	var digest hash.Hash = blake3.New()
	out := &countingWriter{w: io.MultiWriter(w, digest)}

	timedOut := false
	timer := events.NewTimer(loop)
	if timeout > 0 {
		timer.AsyncWait(timeout, func(err error) {
			if err != nil {
				return
			}
			timedOut = true
			client.Cancel()
		})
	}

	var callErr error
	err := client.AsyncCall(req,
		func(resp *http.IncomingResponse, err error) {
			if err != nil {
				callErr = err
				timer.Cancel()
				return
			}
			logger.Debug("response received", "status", resp.StatusCode(), "reason", resp.StatusMessage())
			if resp.StatusCode() != 200 {
				callErr = errors.Errorf("unexpected status %d %s", resp.StatusCode(), resp.StatusMessage())
				resp.Cancel()
				return
			}
			resp.SetBodyWriter(out)
		},
		func(_ *http.IncomingResponse, err error) {
			if callErr == nil {
				callErr = err
			}
			timer.Cancel()
		},
	)
	if err != nil {
		return result{}, errors.Wrap(err, "starting download")
	}

	loop.Run()

	if callErr != nil {
		if timedOut {
			return result{}, errors.Wrapf(callErr, "download did not finish within %s", timeout)
		}
		return result{}, callErr
	}
	return result{size: out.n, digest: digest.Sum(nil)}, nil
}
