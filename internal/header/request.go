// Package header exposes the request headers the static file handler reads as
// parsed, typed values instead of raw strings.
package header

import "net/http"

// Request is the transport-independent view of an incoming request.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// FromHTTP adapts a net/http request. Path is the decoded URL path.
func FromHTTP(r *http.Request) *Request {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	return &Request{Method: r.Method, Path: path, Header: r.Header}
}

// AcceptEncoding parses every Accept-Encoding field line of the request.
func (r *Request) AcceptEncoding() AcceptEncoding {
	return ParseAcceptEncoding(r.Header.Values("Accept-Encoding"))
}

// IfNoneMatch parses every If-None-Match field line of the request.
func (r *Request) IfNoneMatch() IfNoneMatch {
	return ParseIfNoneMatch(r.Header.Values("If-None-Match"))
}
