//go:build !unix

package staticfile

import "os"

func readFile(f *os.File, size int64) ([]byte, error) {
	return readAll(f, size)
}
