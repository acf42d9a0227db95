//go:build linux

package crypto

import (
	"golang.org/x/sys/unix"
)

// allocProtected maps anonymous memory, mlocks it and marks it
// MADV_DONTDUMP. Falls back to the heap when any step is refused
// (RLIMIT_MEMLOCK in containers, for example).
func allocProtected(size int) ([]byte, func([]byte) error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return make([]byte, size), nil
	}

	if err := unix.Mlock(data); err != nil {
		_ = unix.Munmap(data)
		return make([]byte, size), nil
	}

	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		_ = unix.Munlock(data)
		_ = unix.Munmap(data)
		return make([]byte, size), nil
	}

	return data, releaseProtected
}

func releaseProtected(data []byte) error {
	if err := unix.Munlock(data); err != nil {
		_ = unix.Munmap(data)
		return err
	}
	return unix.Munmap(data)
}
