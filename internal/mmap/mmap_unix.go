//go:build !windows

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmap maps the first size bytes of f read-only. MAP_SHARED keeps block
// reads backed by the page cache instead of private copies per mapping.
func mmap(f *os.File, size int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
}

// munmap releases a mapping produced by mmap.
func munmap(data []byte) error {
	return unix.Munmap(data)
}
