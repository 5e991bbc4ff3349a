//go:build unix

package staticfile

import (
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// readFile maps the file read-only and copies the mapping out. A file that
// cannot be mapped is read with plain reads instead.
func readFile(f *os.File, size int64) (data []byte, err error) {
	if size <= 0 || int64(int(size)) != size {
		return readAll(f, size)
	}
	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return readAll(f, size)
	}
	defer unix.Munmap(mapped)

	// A file truncated after the snapshot faults on access instead of returning short.
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("read %s: file changed while mapped: %v", f.Name(), r)
		}
	}()

	data = make([]byte, len(mapped))
	copy(data, mapped)
	return data, nil
}
