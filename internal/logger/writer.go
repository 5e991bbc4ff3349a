package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"example.com/kawaii/v2/internal/config"
)

// targetWriter is the sink behind one log stream. File targets can be closed and
// reopened in place so external log rotation works with SIGHUP.
type targetWriter struct {
	mu     sync.Mutex
	target string
	out    io.Writer
	file   *os.File
}

func openTarget(target string) (*targetWriter, error) {
	tw := &targetWriter{target: target}
	switch target {
	case "stdout":
		tw.out = os.Stdout
	case "stderr":
		tw.out = os.Stderr
	default:
		f, err := openLogFile(target)
		if err != nil {
			return nil, err
		}
		tw.file = f
		tw.out = f
	}
	return tw, nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func (tw *targetWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.out.Write(p)
}

// reopen swaps the file handle for a fresh one at the same path. If the new
// file cannot be opened the old handle keeps receiving writes.
func (tw *targetWriter) reopen() error {
	if !config.IsFilePath(tw.target) {
		return nil
	}
	f, err := openLogFile(tw.target)
	if err != nil {
		return err
	}

	tw.mu.Lock()
	old := tw.file
	tw.file = f
	tw.out = f
	tw.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			return fmt.Errorf("failed to close previous log file %s: %w", tw.target, err)
		}
	}
	return nil
}

func (tw *targetWriter) close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.file == nil {
		return nil
	}
	err := tw.file.Close()
	tw.file = nil
	tw.out = io.Discard
	return err
}
