package http

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BodyLength returns the declared length of a message body.
// Only Content-Length framing is understood; any Transfer-Encoding is
// rejected with ErrUnsupportedBodyType. A missing Content-Length means no body.
func BodyLength(h *Headers) (uint64, error) {
	if te, ok := h.Get("Transfer-Encoding"); ok {
		return 0, errors.Wrapf(ErrUnsupportedBodyType, "transfer encoding %q", te)
	}

	cl, ok := h.Get("Content-Length")
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseUint(strings.TrimSpace(cl), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidLength, "%q", cl)
	}
	return n, nil
}

func (r *OutgoingRequest) BodyLength() (uint64, error) { return BodyLength(&r.headers) }

func (r *OutgoingResponse) BodyLength() (uint64, error) { return BodyLength(&r.headers) }
