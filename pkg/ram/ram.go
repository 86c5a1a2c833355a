// Package ram maps the data window that absolute memory operands address.
// push [n] and pop [n] encode n as a sign-extended 32-bit address, so the
// window has to live at a fixed address below 2 GiB.
package ram

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	PageSize    = (1 << 12)
	DefaultBase = 0x10000000
	DefaultSize = (1 << 16)
	// AddressLimit is the first address an absolute operand cannot reach.
	AddressLimit = (1 << 31)
)

// Addr is an absolute address inside the window
type Addr uint32

func TotalSizeNeededPages(size int) int {
	return PageSize * ((PageSize + size - 1) / PageSize)
}

// Window is a fixed-address read/write mapping
type Window struct {
	base Addr
	mem  []byte
}

func checkPlacement(base uint64, size int) error {
	if size <= 0 {
		return fmt.Errorf("ram: window size must be positive, got %d", size)
	}
	if base%PageSize != 0 {
		return fmt.Errorf("ram: base %#x is not page aligned", base)
	}
	if base == 0 || base+uint64(TotalSizeNeededPages(size)) > AddressLimit {
		return fmt.Errorf("ram: window [%#x, +%#x) not addressable by 32-bit operands", base, size)
	}
	return nil
}

// Base returns the first address of the window
func (w *Window) Base() Addr {
	return w.base
}

// Size returns the mapped size in bytes
func (w *Window) Size() int {
	return len(w.mem)
}

// Contains reports whether [addr, addr+n) lies inside the window
func (w *Window) Contains(addr Addr, n int) bool {
	return addr >= w.base && uint64(addr)+uint64(n) <= uint64(w.base)+uint64(len(w.mem))
}

// Bytes returns the whole window
func (w *Window) Bytes() []byte {
	return w.mem
}

// ReadFloat64 reads the double stored at addr
func (w *Window) ReadFloat64(addr Addr) (float64, error) {
	if !w.Contains(addr, 8) {
		return 0, fmt.Errorf("ram: read of 8 bytes at %#x outside window", addr)
	}
	off := addr - w.base
	return math.Float64frombits(binary.LittleEndian.Uint64(w.mem[off:])), nil
}

// WriteFloat64 stores v at addr
func (w *Window) WriteFloat64(addr Addr, v float64) error {
	if !w.Contains(addr, 8) {
		return fmt.Errorf("ram: write of 8 bytes at %#x outside window", addr)
	}
	off := addr - w.base
	binary.LittleEndian.PutUint64(w.mem[off:], math.Float64bits(v))
	return nil
}
