//go:build !linux || !amd64 || !cgo

package jit

import (
	"os"
	"runtime"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Translation works everywhere; only running the code needs linux/amd64
// with cgo.

func callNative(entry uintptr) error {
	return errors.Errorf(errors.Unsupported, -1, "native execution on %s/%s", runtime.GOOS, runtime.GOARCH)
}

// HostHelpers returns zero addresses; the image can be produced but not run.
func HostHelpers() Helpers {
	return Helpers{}
}

// SetHostIO is not available without the cgo helpers
func SetHostIO(in, out *os.File) error {
	return errors.Errorf(errors.Unsupported, -1, "host I/O on %s/%s", runtime.GOOS, runtime.GOARCH)
}
