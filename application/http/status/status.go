// Package status lists the status codes the agent deals with.
package status

type Status struct {
	Code         int
	ReasonPhrase string
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15
var (
	SwitchingProtocols = add(Status{101, "Switching Protocols"})

	OK             = add(Status{200, "OK"})
	Created        = add(Status{201, "Created"})
	Accepted       = add(Status{202, "Accepted"})
	NoContent      = add(Status{204, "No Content"})
	PartialContent = add(Status{206, "Partial Content"})

	NotModified = add(Status{304, "Not Modified"})

	BadRequest          = add(Status{400, "Bad Request"})
	Unauthorized        = add(Status{401, "Unauthorized"})
	Forbidden           = add(Status{403, "Forbidden"})
	NotFound            = add(Status{404, "Not Found"})
	MethodNotAllowed    = add(Status{405, "Method Not Allowed"})
	Conflict            = add(Status{409, "Conflict"})
	RangeNotSatisfiable = add(Status{416, "Range Not Satisfiable"})
	TooManyRequests     = add(Status{429, "Too Many Requests"})

	InternalServerError = add(Status{500, "Internal Server Error"})
	NotImplemented      = add(Status{501, "Not Implemented"})
	BadGateway          = add(Status{502, "Bad Gateway"})
	ServiceUnavailable  = add(Status{503, "Service Unavailable"})
	GatewayTimeout      = add(Status{504, "Gateway Timeout"})
)

var sm = make(map[int]Status)

func add(status Status) Status {
	sm[status.Code] = status
	return status
}

func FromCode(code int) (status Status, ok bool) {
	s, ok := sm[code]
	if !ok {
		return Status{Code: code}, false
	}
	return s, true
}

// Text returns the reason phrase of code, or "" when it is unknown.
func Text(code int) string { return sm[code].ReasonPhrase }
