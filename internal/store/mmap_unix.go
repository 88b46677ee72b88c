//go:build unix

package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the entire file read-only. The returned slice is
// backed by the kernel page cache, not the Go heap; segments share it
// read-only across every reader.
func mmapFile(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat segment: %v", ErrIoError, err)
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: empty segment file", ErrCorruptSegment)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap segment: %v", ErrIoError, err)
	}
	return data, nil
}

// munmapFile releases a mapping created by mmapFile.
func munmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
