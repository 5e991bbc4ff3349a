package staticfile

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/flate"

	"example.com/kawaii/v2/internal/header"
)

// Encoding is the content coding applied to a response body.
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingDeflate
)

func (e Encoding) String() string {
	if e == EncodingDeflate {
		return "deflate"
	}
	return "identity"
}

// NegotiateOptions controls when deflate is applied.
type NegotiateOptions struct {
	Enabled bool
	Level   int
	MinSize uint64 // bodies shorter than this stay identity
}

// DefaultNegotiateOptions enables deflate at the default level for every body.
func DefaultNegotiateOptions() NegotiateOptions {
	return NegotiateOptions{Enabled: true, Level: flate.DefaultCompression}
}

// Negotiate deflates body when the client lists the deflate coding. On
// compression failure the identity body is returned together with the error.
func Negotiate(accept header.AcceptEncoding, body []byte, opts NegotiateOptions) (Encoding, []byte, error) {
	if !opts.Enabled || uint64(len(body)) < opts.MinSize || !accept.Contains("deflate") {
		return EncodingIdentity, body, nil
	}
	compressed, err := deflate(body, opts.Level)
	if err != nil {
		return EncodingIdentity, body, err
	}
	return EncodingDeflate, compressed, nil
}

// deflate produces a raw RFC 1951 stream in one pass.
func deflate(body []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(body) + len(body)/64 + 16)
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}
