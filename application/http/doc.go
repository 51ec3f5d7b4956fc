// Package http holds the HTTP/1.1 transaction model shared by the client,
// the server and the download resumer: requests, responses, headers, URL
// breakdown, the message head codec and the resume backoff.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
