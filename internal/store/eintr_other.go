//go:build !unix

package store

// isEINTR is always false on platforms without POSIX signal semantics.
func isEINTR(err error) bool { return false }
