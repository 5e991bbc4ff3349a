// Package staticfile serves files from a document root: path resolution,
// cache validation, deflate negotiation and response assembly.
package staticfile

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"example.com/kawaii/v2/internal/config"
	"example.com/kawaii/v2/internal/header"
	"example.com/kawaii/v2/internal/logger"
)

// Handler serves one document root. It is immutable after New and safe for
// concurrent use.
type Handler struct {
	root       string
	indexFile  string
	serverName string
	mime       *MimeTypeResolver
	negotiate  NegotiateOptions
	log        *logger.Logger
}

// New builds a Handler from a validated static route configuration.
func New(cfg *config.StaticFileServerConfig, lg *logger.Logger) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("staticfile: config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("staticfile: logger cannot be nil")
	}
	if cfg.DocumentRoot == "" {
		return nil, fmt.Errorf("staticfile: document root cannot be empty")
	}
	root, err := filepath.Abs(cfg.DocumentRoot)
	if err != nil {
		return nil, fmt.Errorf("staticfile: resolving document root %q: %w", cfg.DocumentRoot, err)
	}

	mimeTypesPath := ""
	if cfg.MimeTypesPath != nil {
		mimeTypesPath = *cfg.MimeTypesPath
	}
	resolver, err := NewMimeTypeResolver(cfg.MimeTypesMap, mimeTypesPath)
	if err != nil {
		return nil, &config.ConfigError{FilePath: mimeTypesPath, Message: "failed to load custom MIME types", Err: err}
	}

	h := &Handler{
		root:       filepath.Clean(root),
		indexFile:  cfg.IndexFile,
		serverName: cfg.ServerName,
		mime:       resolver,
		negotiate:  DefaultNegotiateOptions(),
		log:        lg,
	}
	if h.indexFile == "" {
		h.indexFile = DefaultIndexFile
	}
	if h.serverName == "" {
		h.serverName = config.DefaultServerName
	}
	if c := cfg.Compression; c != nil {
		if c.Enabled != nil {
			h.negotiate.Enabled = *c.Enabled
		}
		if c.Level != nil {
			h.negotiate.Level = *c.Level
		}
		h.negotiate.MinSize = c.MinSizeBytes
	}
	return h, nil
}

// Root returns the absolute document root.
func (h *Handler) Root() string { return h.root }

// Handle runs the request pipeline and always returns a response.
func (h *Handler) Handle(req *header.Request) *Response {
	if req.Method != http.MethodGet {
		h.log.Debug("Rejected non-GET request", logger.LogFields{"method": req.Method, "path": req.Path, "status": http.StatusMethodNotAllowed})
		return BuildError(h.serverName, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
	}

	target, err := resolvePath(h.root, req.Path, h.indexFile)
	if err != nil {
		return h.resolveFailure(req, err)
	}

	snap, err := OpenSnapshot(target.Path)
	if err != nil {
		return h.internalError(req, target, err)
	}
	defer snap.Close()

	token := ComputeCacheToken(snap.Info())
	if token.Matches(req.IfNoneMatch()) {
		h.log.Debug("Cache validator matched", logger.LogFields{"path": req.Path, "etag": token.ETag, "status": http.StatusNotModified})
		return BuildNotModified(h.serverName, token)
	}

	body, err := snap.ReadAll()
	if err != nil {
		return h.internalError(req, target, err)
	}

	enc, payload, err := Negotiate(req.AcceptEncoding(), body, h.negotiate)
	if err != nil {
		h.log.Warn("Compression failed, sending identity body", logger.LogFields{"path": req.Path, "file": target.Path, "error": err.Error()})
	}

	resp := BuildOK(h.serverName, token, h.mime.Resolve(target), enc, payload)
	h.log.Debug("Served file", logger.LogFields{
		"path":     req.Path,
		"file":     target.Path,
		"encoding": enc.String(),
		"size":     len(body),
		"sent":     len(payload),
		"status":   http.StatusOK,
	})
	return resp
}

func (h *Handler) resolveFailure(req *header.Request, err error) *Response {
	switch {
	case errors.Is(err, ErrPathTraversal):
		h.log.Warn("Rejected path outside document root", logger.LogFields{"path": req.Path, "root": h.root, "status": http.StatusNotFound})
		return BuildError(h.serverName, http.StatusNotFound, err)
	case errors.Is(err, ErrNotFound):
		h.log.Info("File not found", logger.LogFields{"path": req.Path, "root": h.root, "status": http.StatusNotFound})
		return BuildError(h.serverName, http.StatusNotFound, err)
	default:
		return h.internalError(req, Target{}, err)
	}
}

func (h *Handler) internalError(req *header.Request, target Target, err error) *Response {
	h.log.Error("Failed to read file", logger.LogFields{"path": req.Path, "file": target.Path, "error": err.Error(), "status": http.StatusInternalServerError})
	return BuildError(h.serverName, http.StatusInternalServerError, err)
}

// ServeHTTP adapts Handle to net/http.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteResponse(w, h.Handle(header.FromHTTP(r)))
}

// WriteResponse copies resp onto w.
func WriteResponse(w http.ResponseWriter, resp *Response) {
	dst := w.Header()
	for k, vv := range resp.Header {
		dst[k] = append([]string(nil), vv...)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
