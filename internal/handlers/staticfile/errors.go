package staticfile

import "errors"

var (
	// ErrNotFound reports that a request path resolves to nothing servable.
	ErrNotFound = errors.New("staticfile: not found")
	// ErrPathTraversal reports a request path that would escape the document root.
	ErrPathTraversal = errors.New("staticfile: path escapes document root")
	// ErrMethodNotAllowed reports a request method other than GET.
	ErrMethodNotAllowed = errors.New("staticfile: method not allowed")
)
