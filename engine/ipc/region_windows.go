//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func platformCreateRegion(name, _ string, size int) (*SharedRegion, error) {
	h, err := createMapping(name, size)
	if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		return nil, err
	}
	return mapView(name, h, size)
}

// x/sys/windows has no wrapper for OpenFileMappingW.
var procOpenFileMappingW = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

// platformOpenRegion opens an existing named mapping without creating one.
func platformOpenRegion(name, _ string, size int) (*SharedRegion, error) {
	h, err := openMapping(name)
	if err != nil {
		return nil, err
	}
	return mapView(name, h, size)
}

func openMapping(name string) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, _, callErr := procOpenFileMappingW.Call(uintptr(windows.FILE_MAP_WRITE), 0, uintptr(unsafe.Pointer(namePtr)))
	if r == 0 {
		if errors.Is(callErr, windows.ERROR_FILE_NOT_FOUND) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("open mapping %s: %w", name, callErr)
	}
	return windows.Handle(r), nil
}

func createMapping(name string, size int) (windows.Handle, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	return windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE,
		uint32(uint64(size)>>32), uint32(size), namePtr)
}

func mapView(name string, h windows.Handle, size int) (*SharedRegion, error) {
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("map view of %s: %w", name, err)
	}
	base := *(*unsafe.Pointer)(unsafe.Pointer(&addr))
	data := unsafe.Slice((*byte)(base), size)
	return newSharedRegion(name, data, func() error {
		return errors.Join(windows.UnmapViewOfFile(addr), windows.CloseHandle(h))
	})
}

// removeRegion is a no-op: a named mapping disappears with its last handle.
func removeRegion(string, string) error {
	return nil
}
