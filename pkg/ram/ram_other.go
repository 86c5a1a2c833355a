//go:build !linux

package ram

import (
	"runtime"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Map needs MAP_FIXED_NOREPLACE, which only Linux offers.
func Map(base uint64, size int) (*Window, error) {
	if err := checkPlacement(base, size); err != nil {
		return nil, errors.Wrap(err, errors.AllocationFailure, "data window")
	}
	return nil, errors.Errorf(errors.Unsupported, -1, "fixed data window on %s", runtime.GOOS)
}

func (w *Window) Unmap() error {
	return nil
}
