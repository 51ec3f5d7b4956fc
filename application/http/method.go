package http

import "github.com/pkg/errors"

type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodConnect Method = "CONNECT"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch, MethodConnect:
		return m, nil
	}
	return "", errors.Wrapf(ErrUnsupportedMethod, "%q", s)
}

func (m Method) String() string { return string(m) }
