//go:build linux

package ram

import (
	"fmt"
	"unsafe"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"golang.org/x/sys/unix"
)

// Map maps size bytes (rounded up to pages) at base. It refuses to replace
// an existing mapping.
func Map(base uint64, size int) (*Window, error) {
	if err := checkPlacement(base, size); err != nil {
		return nil, errors.Wrap(err, errors.AllocationFailure, "data window")
	}
	length := TotalSizeNeededPages(size)

	// base is a placement address for the kernel, not a Go pointer, so the
	// uintptr conversion vet flags below is expected.
	ptr, err := unix.MmapPtr(
		-1, 0,
		unsafe.Pointer(uintptr(base)),
		uintptr(length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.AllocationFailure, fmt.Sprintf("mmap data window at %#x", base))
	}
	// Kernels before 4.17 treat the address as a hint.
	if uintptr(ptr) != uintptr(base) {
		unix.MunmapPtr(ptr, uintptr(length))
		return nil, errors.Errorf(errors.AllocationFailure, -1, "data window landed at %#x instead of %#x", uintptr(ptr), base)
	}

	return &Window{
		base: Addr(base),
		mem:  unsafe.Slice((*byte)(ptr), length),
	}, nil
}

// Unmap releases the window
func (w *Window) Unmap() error {
	if w.mem == nil {
		return nil
	}
	err := unix.MunmapPtr(unsafe.Pointer(&w.mem[0]), uintptr(len(w.mem)))
	w.mem = nil
	return err
}
