package jit

import "github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"

// branchConds maps conditional jumps to unsigned condition codes.
var branchConds = map[bytecode.Opcode]Cond{
	bytecode.Jae: CondAE,
	bytecode.Ja:  CondA,
	bytecode.Jbe: CondBE,
	bytecode.Jb:  CondB,
	bytecode.Je:  CondE,
	bytecode.Jne: CondNE,
}

func directTemplate(op bytecode.Opcode) *Template {
	return assemble(func(a *Assembler, t *Template) {
		if op == bytecode.Call {
			t.mark(SlotRel32, a.CallRel32(0))
		} else {
			t.mark(SlotRel32, a.JmpRel32(0))
		}
	})
}

// conditionalTemplate pops b then a and branches on the unsigned
// comparison of a against b.
func conditionalTemplate(op bytecode.Opcode) *Template {
	cc := branchConds[op]
	return assemble(func(a *Assembler, t *Template) {
		a.Pop(RSI)
		a.Pop(RDI)
		a.CmpRegReg(RDI, RSI)
		t.mark(SlotRel32, a.JccRel32(cc, 0))
	})
}
