//go:build windows

package live

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mapNative opens a page-file backed mapping under name. Creating an
// existing name returns the existing mapping.
func mapNative(name string, size int, writable bool) ([]byte, func() error, error) {
	ptr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, nil, err
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, 0, uint32(size), ptr)
	if h == 0 {
		return nil, nil, fmt.Errorf("create mapping %s: %w", name, err)
	}
	return view(h, size, writable, nil)
}

func mapFile(path string, size int, writable bool) ([]byte, func() error, error) {
	flag, protect := os.O_RDONLY, uint32(windows.PAGE_READONLY)
	if writable {
		flag, protect = os.O_RDWR|os.O_CREATE, windows.PAGE_READWRITE
	}
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if writable && st.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, nil, err
		}
	} else if !writable && st.Size() < int64(size) {
		size = int(st.Size())
	}
	if size == 0 {
		f.Close()
		return nil, nil, errors.New("empty region")
	}
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, protect, 0, uint32(size), nil)
	if h == 0 {
		f.Close()
		return nil, nil, fmt.Errorf("create mapping %s: %w", path, err)
	}
	return view(h, size, writable, f)
}

func view(h windows.Handle, size int, writable bool, f *os.File) ([]byte, func() error, error) {
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		access |= windows.FILE_MAP_WRITE
	}
	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		if f != nil {
			f.Close()
		}
		return nil, nil, fmt.Errorf("map view: %w", err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	closer := func() error {
		err := windows.UnmapViewOfFile(addr)
		if cerr := windows.CloseHandle(h); err == nil {
			err = cerr
		}
		if f != nil {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return data, closer, nil
}
