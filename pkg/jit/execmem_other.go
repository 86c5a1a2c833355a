//go:build !unix

package jit

import (
	"runtime"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// ExecutableMemory is unavailable without mmap/mprotect.
type ExecutableMemory struct{}

func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	return nil, errors.Errorf(errors.Unsupported, -1, "executable memory on %s", runtime.GOOS)
}

func (em *ExecutableMemory) Bytes() []byte        { return nil }
func (em *ExecutableMemory) Seal() error          { return errors.Errorf(errors.Unsupported, -1, "seal") }
func (em *ExecutableMemory) Sealed() bool         { return false }
func (em *ExecutableMemory) Call() error          { return callNative(0) }
func (em *ExecutableMemory) BaseAddress() uintptr { return 0 }
func (em *ExecutableMemory) Size() int            { return 0 }
func (em *ExecutableMemory) Capacity() int        { return 0 }
func (em *ExecutableMemory) Free() error          { return nil }
