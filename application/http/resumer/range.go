package resumer

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

var ErrInvalidContentRange = errors.New("invalid Content-Range")

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-14.4
var contentRangeRegexp = regexp.MustCompile(`^bytes\s+(\d+)\s?-\s?(\d+)\s?/?\s?(\d+|\*)?$`)

// contentRange is a parsed Content-Range header. size is 0 when the
// server did not tell it.
type contentRange struct {
	start, end, size uint64
}

func parseContentRange(header string) (contentRange, error) {
	m := contentRangeRegexp.FindStringSubmatch(header)
	if m == nil {
		return contentRange{}, errors.Wrapf(ErrInvalidContentRange, "%q", header)
	}

	var cr contentRange
	var err error
	if cr.start, err = strconv.ParseUint(m[1], 10, 64); err != nil {
		return contentRange{}, errors.Wrapf(ErrInvalidContentRange, "invalid number in %q", header)
	}
	if cr.end, err = strconv.ParseUint(m[2], 10, 64); err != nil {
		return contentRange{}, errors.Wrapf(ErrInvalidContentRange, "invalid number in %q", header)
	}
	if cr.start > cr.end {
		return contentRange{}, errors.Wrapf(ErrInvalidContentRange, "range ends before it starts in %q", header)
	}

	if m[3] != "" && m[3] != "*" {
		if cr.size, err = strconv.ParseUint(m[3], 10, 64); err != nil {
			return contentRange{}, errors.Wrapf(ErrInvalidContentRange, "invalid number in %q", header)
		}
	}
	return cr, nil
}
