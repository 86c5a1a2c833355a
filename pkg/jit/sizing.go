package jit

import (
	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Layout is the result of the sizing pass.
type Layout struct {
	SourceLen    int
	NativeLen    int
	Instructions int
	FinalDepth   int

	// Offsets maps every instruction boundary, and the end of the
	// program, to its native offset.
	Offsets map[int]int

	// Relocations in discovery order.
	Relocations []Relocation

	HelperFixups []HelperFixup
}

// IsBoundary reports whether ip starts an instruction.
func (l *Layout) IsBoundary(ip int) bool {
	if ip >= l.SourceLen {
		return false
	}
	_, ok := l.Offsets[ip]
	return ok
}

// Size is pass 1: it computes the exact native length, the native offset of
// every instruction and the relocations of every control transfer.
func Size(code []byte) (*Layout, error) {
	layout := &Layout{
		SourceLen: len(code),
		Offsets:   make(map[int]int),
	}

	end, err := walk(code, func(s *step) error {
		layout.Offsets[s.instr.IP] = s.nativeIP

		switch s.desc.Class {
		case bytecode.ClassDirectJump, bytecode.ClassConditionalJump:
			field, ok := s.desc.Template.Slot(SlotRel32)
			if !ok {
				return errors.Errorf(errors.InvariantViolation, s.instr.IP, "%v template has no rel32 field", s.desc.Variant)
			}
			kind := RelocDirect
			if s.desc.Class == bytecode.ClassConditionalJump {
				kind = RelocConditional
			}
			layout.Relocations = append(layout.Relocations, Relocation{
				SourceFrom: s.instr.IP,
				SourceTo:   int(s.instr.Target),
				NativeFrom: s.nativeIP + field,
				Kind:       kind,
			})
		case bytecode.ClassHostIO:
			field, ok := s.desc.Template.Slot(SlotHelper)
			if !ok {
				return errors.Errorf(errors.InvariantViolation, s.instr.IP, "%v template has no helper field", s.desc.Variant)
			}
			layout.HelperFixups = append(layout.HelperFixups, HelperFixup{
				NativeAt: s.nativeIP + field,
				Helper:   helperFor(s.instr.Op),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	layout.NativeLen = end.nativeLen
	layout.FinalDepth = end.depth
	layout.Instructions = end.instructions
	layout.Offsets[len(code)] = end.nativeLen

	for _, r := range layout.Relocations {
		if !layout.IsBoundary(r.SourceTo) {
			return nil, errors.Errorf(errors.UndefinedJumpTarget, r.SourceFrom, "target %d is not an instruction boundary", r.SourceTo)
		}
	}
	return layout, nil
}
