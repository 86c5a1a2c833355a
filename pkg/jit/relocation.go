package jit

import (
	"fmt"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
)

// RelocKind distinguishes unconditional transfers from conditional ones.
type RelocKind int

const (
	RelocDirect      RelocKind = iota // call, jmp
	RelocConditional                  // jae, ja, jbe, jb, je, jne
)

func (k RelocKind) String() string {
	if k == RelocConditional {
		return "conditional"
	}
	return "direct"
}

// Relocation is a rel32 field that pass 3 fills in. NativeFrom is the
// offset of the field itself, not of the branch opcode.
type Relocation struct {
	SourceFrom int
	SourceTo   int
	NativeFrom int
	Kind       RelocKind
}

func (r Relocation) String() string {
	return fmt.Sprintf("%v %d -> %d (native field at %#x)", r.Kind, r.SourceFrom, r.SourceTo, r.NativeFrom)
}

// HelperID names a host helper called from generated code.
type HelperID int

const (
	HelperIn HelperID = iota
	HelperOut
)

func (h HelperID) String() string {
	if h == HelperOut {
		return "out"
	}
	return "in"
}

// HelperFixup is an imm64 field that holds a helper address.
type HelperFixup struct {
	NativeAt int
	Helper   HelperID
}

func helperFor(op bytecode.Opcode) HelperID {
	if op == bytecode.Out {
		return HelperOut
	}
	return HelperIn
}
