//go:build unix

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// regionPath maps a channel name onto a file in dir. Only the last path component of the name
// is kept, so `Local\VulkanSharedGeometry` becomes dir/VulkanSharedGeometry.
func regionPath(name, dir string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	if dir == "" {
		dir = DefaultDirectory
	}
	return filepath.Join(dir, name)
}

func platformCreateRegion(name, dir string, size int) (*SharedRegion, error) {
	path := regionPath(name, dir)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Growing (never truncating) keeps any reader that already has the file mapped valid.
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("resize %s: %w", path, err)
		}
	}

	return mapFile(name, f, size)
}

func platformOpenRegion(name, dir string, size int) (*SharedRegion, error) {
	path := regionPath(name, dir)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Mapping past the end of the file would fault on first access.
	if info.Size() < int64(size) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrRegionTooSmall, path, info.Size())
	}

	r, err := mapFile(name, f, size)
	if err != nil {
		return nil, err
	}
	r.superseded = func() bool {
		current, err := os.Stat(path)
		if err != nil {
			// Removed but not recreated: the mapping is still the newest region.
			return false
		}
		return !os.SameFile(info, current)
	}
	return r, nil
}

// mapFile maps size bytes of f shared and read-write. The mapping outlives the descriptor.
func mapFile(name string, f *os.File, size int) (*SharedRegion, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return newSharedRegion(name, data, func() error {
		return unix.Munmap(data)
	})
}

// removeRegion deletes the backing file of a region. Existing mappings stay valid.
func removeRegion(name, dir string) error {
	err := os.Remove(regionPath(name, dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
