package staticfile

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
)

// Response is a complete reply ready for the transport.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// BuildOK assembles a 200 response. Content-Length is the length of body as
// transmitted, after any content coding.
func BuildOK(serverName string, token CacheToken, contentType string, enc Encoding, body []byte) *Response {
	h := make(http.Header, 9)
	h.Set("Server", serverName)
	h.Set("Vary", "Accept-Encoding")
	h.Set("Cache-Control", "public")
	h.Set("Etag", token.ETag)
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	if enc == EncodingDeflate {
		h.Set("Content-Encoding", "deflate")
	}
	if token.HasLastModified {
		h.Set("Last-Modified", token.LastModified.UTC().Format(http.TimeFormat))
	}
	return &Response{Status: http.StatusOK, Header: h, Body: body}
}

// BuildNotModified assembles a 304 response carrying validators only.
func BuildNotModified(serverName string, token CacheToken) *Response {
	h := make(http.Header, 4)
	h.Set("Server", serverName)
	h.Set("Vary", "Accept-Encoding")
	h.Set("Cache-Control", "public")
	h.Set("Etag", token.ETag)
	return &Response{Status: http.StatusNotModified, Header: h}
}

type errorPage struct {
	Title   string
	Heading string
	Message string
}

var errorPages = map[int]errorPage{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusMethodNotAllowed: {
		Title:   "405 Method Not Allowed",
		Heading: "Method Not Allowed",
		Message: "Only GET is supported for this resource.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an error reading the requested resource.",
	},
}

// BuildError assembles a 404, 405 or 500 response with a small HTML body.
// For 500 the escaped text of cause is appended to the message.
func BuildError(serverName string, status int, cause error) *Response {
	page, ok := errorPages[status]
	if !ok {
		status = http.StatusInternalServerError
		page = errorPages[status]
	}
	message := html.EscapeString(page.Message)
	if status == http.StatusInternalServerError && cause != nil {
		message += " " + html.EscapeString(cause.Error())
	}
	body := []byte(fmt.Sprintf("<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(page.Title), html.EscapeString(page.Heading), message))

	h := make(http.Header, 3)
	h.Set("Server", serverName)
	h.Set("Content-Type", htmlMimeType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &Response{Status: status, Header: h, Body: body}
}
