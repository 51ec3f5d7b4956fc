package common

import (
	"bytes"
	"strings"
	"testing"
	"update-transport/application/http"
	"update-transport/lib/events"
	iolib "update-transport/lib/io"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type BodyTestSuite struct {
	suite.Suite

	loop   *events.EventLoop
	tok    *events.Token
	status http.TransactionStatus

	failed    []error
	finished  int
	cancelled int
}

func TestBodyTestSuite(t *testing.T) {
	suite.Run(t, new(BodyTestSuite))
}

func (s *BodyTestSuite) SetupTest() {
	s.loop = events.NewEventLoop(clock.NewMock())
	s.tok = events.NewToken()
	s.status = http.StatusHeaderHandlerCalled
	s.failed, s.finished, s.cancelled = nil, 0, 0
}

func (s *BodyTestSuite) TearDownTest() {
	goleak.VerifyNone(s.T())
}

func (s *BodyTestSuite) newBody(src string, length uint64) *Body {
	return NewBody(s.loop, s.tok, strings.NewReader(src), length, &s.status, BodyHooks{
		Fail: func(err error) {
			s.tok.Cancel()
			s.failed = append(s.failed, err)
		},
		Finish: func() {
			s.tok.Cancel()
			s.finished++
		},
		Cancel: func() {
			s.tok.Cancel()
			s.cancelled++
		},
	})
}

func (s *BodyTestSuite) TestReadToEnd() {
	body := s.newBody("0123456789trailing", 10)

	var out bytes.Buffer
	var copyErr error
	iolib.AsyncCopy(&out, body.Reader(), func(err error) { copyErr = err })
	s.Equal(http.StatusBodyReadingInProgress, s.status)

	s.loop.Run()

	s.NoError(copyErr)
	s.Equal("0123456789", out.String())
	s.Equal(1, s.finished)
	s.Empty(s.failed)
	s.Equal(http.StatusBodyReadingFinished, s.status)
}

func (s *BodyTestSuite) TestShortBody() {
	body := s.newBody("012345678", 10)

	var out bytes.Buffer
	var copyErr error
	iolib.AsyncCopy(&out, body.Reader(), func(err error) { copyErr = err })
	s.loop.Run()

	s.ErrorIs(copyErr, http.ErrPartialMessage)
	s.Require().Len(s.failed, 1)
	s.ErrorContains(s.failed[0], "partial message")
	s.Zero(s.finished)
}

func (s *BodyTestSuite) TestDiscard() {
	s.newBody("0123456789", 10).Discard()
	s.loop.Run()

	s.Equal(1, s.finished)
	s.Empty(s.failed)
}

func (s *BodyTestSuite) TestDiscardShort() {
	s.newBody("01234", 10).Discard()
	s.loop.Run()

	s.Zero(s.finished)
	s.Require().Len(s.failed, 1)
	s.ErrorIs(s.failed[0], http.ErrPartialMessage)
}

func (s *BodyTestSuite) TestCancel() {
	r := s.newBody("0123456789", 10).Reader()

	r.Cancel()
	r.Cancel()
	s.Equal(1, s.cancelled)

	err := r.AsyncRead(make([]byte, 4), func(int, error) { s.Fail("handler called") })
	s.ErrorIs(err, http.ErrStreamCancelled)
}

func (s *BodyTestSuite) TestCancelWhileReading() {
	r := s.newBody("0123456789", 10).Reader()

	var readErr error
	s.Require().NoError(r.AsyncRead(make([]byte, 4), func(_ int, err error) { readErr = err }))
	s.tok.Cancel()
	s.loop.Run()

	s.ErrorIs(readErr, events.ErrCanceled)
	s.Zero(s.finished)
	s.Empty(s.failed)
}
