package staticfile

import (
	"bytes"
	"fmt"
	"os"
)

// Snapshot is an open file together with the metadata read from the same handle.
// Callers must Close it.
type Snapshot struct {
	file *os.File
	info os.FileInfo
}

// OpenSnapshot opens path and stats the resulting handle.
func OpenSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("open %s: no longer a regular file", path)
	}
	return &Snapshot{file: f, info: info}, nil
}

// Info returns the metadata read when the snapshot was opened.
func (s *Snapshot) Info() os.FileInfo { return s.info }

// ReadAll returns the whole file content.
func (s *Snapshot) ReadAll() ([]byte, error) {
	return readFile(s.file, s.info.Size())
}

// Close releases the file handle.
func (s *Snapshot) Close() error {
	return s.file.Close()
}

func readAll(f *os.File, sizeHint int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(max(sizeHint, 0)) + bytes.MinRead)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	return buf.Bytes(), nil
}
