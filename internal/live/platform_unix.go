//go:build !windows

package live

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// mapNative maps /dev/shm/<name>, which is what a named POSIX shared
// memory object is on Linux. Other unix systems fall through to the file.
func mapNative(name string, size int, writable bool) ([]byte, func() error, error) {
	if st, err := os.Stat(shmDir); err != nil || !st.IsDir() {
		return nil, nil, fmt.Errorf("shared memory dir %s unavailable", shmDir)
	}
	return mapFile(filepath.Join(shmDir, name), size, writable)
}

func mapFile(path string, size int, writable bool) ([]byte, func() error, error) {
	flag, prot := os.O_RDONLY, unix.PROT_READ
	if writable {
		flag, prot = os.O_RDWR|os.O_CREATE, unix.PROT_READ|unix.PROT_WRITE
	}
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	switch {
	case writable && st.Size() < int64(size):
		if err := f.Truncate(int64(size)); err != nil {
			return nil, nil, fmt.Errorf("size %s: %w", path, err)
		}
	case !writable && st.Size() < int64(size):
		size = int(st.Size())
	}
	if size == 0 {
		return nil, nil, errors.New("empty region")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
