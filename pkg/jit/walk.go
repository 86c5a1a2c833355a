package jit

import (
	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// step is the walk state in front of one instruction.
type step struct {
	instr    bytecode.Instruction
	desc     *Descriptor
	nativeIP int
	depth    int // simulated stack slots, relative to entry
}

type walkEnd struct {
	nativeLen    int
	depth        int
	instructions int
}

// walk decodes code front to back and calls visit before each instruction.
// All three passes go through it, so they agree on variant selection and
// native offsets by construction.
func walk(code []byte, visit func(s *step) error) (walkEnd, error) {
	if code == nil {
		return walkEnd{}, errors.Errorf(errors.NullInput, -1, "no bytecode buffer")
	}
	if len(code) == 0 {
		return walkEnd{}, errors.Errorf(errors.NullInput, 0, "empty bytecode buffer")
	}

	var s step
	n := 0
	for ip := 0; ip < len(code); {
		in, err := bytecode.Decode(code, ip)
		if err != nil {
			return walkEnd{}, err
		}
		desc, err := lookup(variantOf(in, s.depth), ip)
		if err != nil {
			return walkEnd{}, err
		}
		s.instr, s.desc = in, desc
		if visit != nil {
			if err := visit(&s); err != nil {
				return walkEnd{}, err
			}
		}
		s.nativeIP += desc.NativeLen()
		s.depth += desc.StackDelta
		ip = in.Next()
		n++
	}
	return walkEnd{nativeLen: s.nativeIP, depth: s.depth, instructions: n}, nil
}

// variantOf picks the lowering of in at simulated depth. rsp is 8 mod 16
// at entry, so after depth slots it is 16-aligned exactly when depth is
// odd. in grows the stack by five slots before its call and out by four,
// hence the opposite parities.
func variantOf(in bytecode.Instruction, depth int) Variant {
	v := Variant{Op: in.Op, Form: in.Form, Reg: in.Reg}
	switch in.Op {
	case bytecode.In:
		v.Padded = depth&1 == 1
	case bytecode.Out:
		v.Padded = depth&1 == 0
	}
	return v
}
