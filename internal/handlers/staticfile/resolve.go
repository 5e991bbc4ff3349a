package staticfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// DefaultIndexFile is served in place of a directory.
const DefaultIndexFile = "index.html"

// Target is a regular file selected for a request path.
type Target struct {
	Path    string
	IsIndex bool // reached through the directory index fallback
}

// ResolvePath maps requestPath onto a regular file under root, falling back to
// index.html for directories.
func ResolvePath(root, requestPath string) (Target, error) {
	return resolvePath(root, requestPath, DefaultIndexFile)
}

func resolvePath(root, requestPath, indexFile string) (Target, error) {
	joined, err := joinWithinRoot(root, requestPath)
	if err != nil {
		return Target{}, err
	}

	info, err := os.Stat(joined)
	if err != nil {
		return Target{}, classifyStatError(requestPath, joined, err)
	}
	if info.Mode().IsRegular() {
		return Target{Path: joined}, nil
	}
	if !info.IsDir() {
		return Target{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, requestPath)
	}

	index := filepath.Join(joined, indexFile)
	info, err = os.Stat(index)
	if err != nil {
		return Target{}, classifyStatError(requestPath, index, err)
	}
	if !info.Mode().IsRegular() {
		return Target{}, fmt.Errorf("%w: %s has no index file", ErrNotFound, requestPath)
	}
	return Target{Path: index, IsIndex: true}, nil
}

// joinWithinRoot joins requestPath (minus one leading slash) to root and
// rejects results that are not inside root after cleaning.
func joinWithinRoot(root, requestPath string) (string, error) {
	if strings.IndexByte(requestPath, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte in %q", ErrPathTraversal, requestPath)
	}
	root = filepath.Clean(root)
	rel := filepath.FromSlash(strings.TrimPrefix(requestPath, "/"))
	joined := filepath.Join(root, rel)

	within, err := filepath.Rel(root, joined)
	if err != nil || filepath.IsAbs(within) || within == ".." ||
		strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, requestPath)
	}
	return joined, nil
}

func classifyStatError(requestPath, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return fmt.Errorf("%w: %s", ErrNotFound, requestPath)
	}
	return fmt.Errorf("stat %s: %w", path, err)
}
