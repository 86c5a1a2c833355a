package jit

import (
	"encoding/binary"
	"sort"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Patch is pass 3: it resolves every relocation against the native offset
// of its target and writes the rel32 displacement. It returns the number
// of relocations patched.
func Patch(code []byte, relocs []Relocation, native []byte) (int, error) {
	if native == nil {
		return 0, errors.Errorf(errors.NullInput, -1, "no native buffer")
	}

	sorted := make([]Relocation, len(relocs))
	copy(sorted, relocs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SourceTo < sorted[j].SourceTo
	})

	next, patched := 0, 0
	var missed []Relocation

	_, err := walk(code, func(s *step) error {
		ip := s.instr.IP
		// Targets that fell inside the previous instruction.
		for next < len(sorted) && sorted[next].SourceTo < ip {
			missed = append(missed, sorted[next])
			next++
		}
		for next < len(sorted) && sorted[next].SourceTo == ip {
			r := sorted[next]
			if r.NativeFrom < 0 || r.NativeFrom+4 > len(native) {
				return errors.Errorf(errors.InvariantViolation, r.SourceFrom, "rel32 field at %#x outside %d-byte image", r.NativeFrom, len(native))
			}
			rel := int32(s.nativeIP - (r.NativeFrom + 4))
			binary.LittleEndian.PutUint32(native[r.NativeFrom:], uint32(rel))
			next++
			patched++
		}
		return nil
	})
	if err != nil {
		return patched, err
	}

	missed = append(missed, sorted[next:]...)
	if len(missed) > 0 {
		r := missed[0]
		return patched, errors.Errorf(errors.UndefinedJumpTarget, r.SourceFrom, "target %d never reached (%d unresolved)", r.SourceTo, len(missed))
	}
	return patched, nil
}
