package jit

import (
	"math"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Helpers holds the absolute addresses of the host I/O helpers.
type Helpers struct {
	In  uintptr
	Out uintptr
}

// Addr returns the address of helper id.
func (h Helpers) Addr(id HelperID) uintptr {
	if id == HelperOut {
		return h.Out
	}
	return h.In
}

// Emit is pass 2: it writes the native image of code into dst, filling
// every slot except rel32 branch fields. It returns the number of bytes
// written, which always equals layout.NativeLen on success.
func Emit(code []byte, layout *Layout, dst []byte) (int, error) {
	return emitWith(code, layout, dst, HostHelpers())
}

func emitWith(code []byte, layout *Layout, dst []byte, helpers Helpers) (int, error) {
	if layout == nil {
		return 0, errors.Errorf(errors.NullInput, -1, "no layout")
	}
	if dst == nil {
		return 0, errors.Errorf(errors.NullInput, -1, "no native buffer")
	}
	if len(dst) < layout.NativeLen {
		return 0, errors.Errorf(errors.InvariantViolation, -1, "native buffer holds %d bytes, layout needs %d", len(dst), layout.NativeLen)
	}

	a := NewAssembler(dst[:layout.NativeLen])
	_, err := walk(code, func(s *step) error {
		if a.Offset() != s.nativeIP {
			return errors.Errorf(errors.InvariantViolation, s.instr.IP, "emitter at native %#x, walk at %#x", a.Offset(), s.nativeIP)
		}
		if s.desc.NativeLen() > a.Remaining() {
			return errors.Errorf(errors.InvariantViolation, s.instr.IP, "%v overruns the %d-byte layout", s.desc.Variant, layout.NativeLen)
		}

		at := a.EmitTemplate(s.desc.Template)
		t := s.desc.Template

		switch s.instr.Form {
		case bytecode.FormImm:
			field, ok := t.Slot(SlotImm64)
			if !ok {
				return missingSlot(s, SlotImm64)
			}
			a.PatchUint64(at+field, math.Float64bits(s.instr.Imm))
		case bytecode.FormMemImm, bytecode.FormMemRegImm:
			field, ok := t.Slot(SlotDisp32)
			if !ok {
				return missingSlot(s, SlotDisp32)
			}
			a.PatchInt32(at+field, s.instr.Disp)
		}

		if s.desc.Class == bytecode.ClassHostIO {
			field, ok := t.Slot(SlotHelper)
			if !ok {
				return missingSlot(s, SlotHelper)
			}
			a.PatchUint64(at+field, uint64(helpers.Addr(helperFor(s.instr.Op))))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if a.Offset() != layout.NativeLen {
		return a.Offset(), errors.Errorf(errors.InvariantViolation, -1, "emitted %d bytes, layout says %d", a.Offset(), layout.NativeLen)
	}
	return a.Offset(), nil
}

func missingSlot(s *step, slot Slot) error {
	return errors.Errorf(errors.InvariantViolation, s.instr.IP, "%v template has no %v field", s.desc.Variant, slot)
}
