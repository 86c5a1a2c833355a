//go:build unix

package jit

import (
	"unsafe"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"golang.org/x/sys/unix"
)

// ExecutableMemory is an anonymous mapping that is writable until Seal and
// executable after it, never both.
type ExecutableMemory struct {
	buffer []byte
	size   int
	sealed bool
}

// NewExecutableMemory maps a read/write region large enough for size bytes
func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	if size <= 0 {
		return nil, errors.Errorf(errors.NullInput, -1, "cannot map %d bytes of code", size)
	}

	pageSize := unix.Getpagesize()
	mapped := (size + pageSize - 1) / pageSize * pageSize

	buffer, err := unix.Mmap(
		-1, 0,
		mapped,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.AllocationFailure, "mmap native buffer")
	}

	return &ExecutableMemory{
		buffer: buffer,
		size:   size,
	}, nil
}

// Bytes returns the usable part of the region. It is only writable before
// Seal.
func (em *ExecutableMemory) Bytes() []byte {
	if em.buffer == nil {
		return nil
	}
	return em.buffer[:em.size]
}

// Seal makes the region read/exec.
func (em *ExecutableMemory) Seal() error {
	if em.buffer == nil {
		return errors.Errorf(errors.InvariantViolation, -1, "seal after free")
	}
	if em.sealed {
		return nil
	}
	if err := unix.Mprotect(em.buffer, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, errors.ProtectionChangeFailure, "mprotect native buffer read+exec")
	}
	em.sealed = true
	return nil
}

// Sealed reports whether Seal succeeded
func (em *ExecutableMemory) Sealed() bool {
	return em.sealed
}

// Call runs the sealed code on the calling thread and returns when it
// executes ret.
func (em *ExecutableMemory) Call() error {
	if !em.sealed {
		return errors.Errorf(errors.InvariantViolation, -1, "call into unsealed native buffer")
	}
	return callNative(em.BaseAddress())
}

// BaseAddress returns the base address of the executable memory region
func (em *ExecutableMemory) BaseAddress() uintptr {
	if len(em.buffer) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&em.buffer[0]))
}

// Size returns the number of bytes in use
func (em *ExecutableMemory) Size() int {
	return em.size
}

// Capacity returns the mapped, page-rounded size
func (em *ExecutableMemory) Capacity() int {
	return len(em.buffer)
}

// Free releases the executable memory
func (em *ExecutableMemory) Free() error {
	if em.buffer == nil {
		return nil
	}

	err := unix.Munmap(em.buffer)
	em.buffer = nil
	em.size = 0
	em.sealed = false
	return err
}
