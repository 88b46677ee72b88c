//go:build !unix

package store

import (
	"fmt"
	"io"
	"os"
)

// mmapFile falls back to a plain read on non-unix platforms where
// golang.org/x/sys/unix's mmap is unavailable. Segments are still
// treated as an immutable read-only byte slice by callers.
func mmapFile(f *os.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read segment: %v", ErrIoError, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty segment file", ErrCorruptSegment)
	}
	return data, nil
}

// munmapFile is a no-op fallback; the slice is ordinary heap memory.
func munmapFile(data []byte) error { return nil }
