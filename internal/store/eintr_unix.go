//go:build unix

package store

import (
	"errors"
	"syscall"
)

// isEINTR reports whether err is (or wraps) EINTR, the one transient
// fsync failure the store retries rather than propagating.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
