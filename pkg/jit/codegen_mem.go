package jit

import "github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"

// Push and pop lowerings. Memory operands go through rdi; register operands
// are pushed or popped directly.

func pushTemplate(form bytecode.Form, reg bytecode.Register) *Template {
	r := vmRegs[reg]
	return assemble(func(a *Assembler, t *Template) {
		switch form {
		case bytecode.FormImm:
			t.mark(SlotImm64, a.MovRegImm64(RDI, 0))
			a.Push(RDI)
		case bytecode.FormMemImm:
			t.mark(SlotDisp32, a.MovRegMemAbs(RDI, 0))
			a.Push(RDI)
		case bytecode.FormReg:
			a.Push(r)
		case bytecode.FormMemReg:
			a.MovRegMemBase(RDI, r)
			a.Push(RDI)
		case bytecode.FormMemRegImm:
			t.mark(SlotDisp32, a.MovRegMemDisp32(RDI, r, 0))
			a.Push(RDI)
		}
	})
}

func popTemplate(form bytecode.Form, reg bytecode.Register) *Template {
	r := vmRegs[reg]
	return assemble(func(a *Assembler, t *Template) {
		switch form {
		case bytecode.FormEmpty:
			a.Pop(RDI)
		case bytecode.FormMemImm:
			a.Pop(RDI)
			t.mark(SlotDisp32, a.MovMemAbsReg(0, RDI))
		case bytecode.FormReg:
			a.Pop(r)
		case bytecode.FormMemReg:
			a.Pop(RDI)
			a.MovMemBaseReg(r, RDI)
		case bytecode.FormMemRegImm:
			a.Pop(RDI)
			t.mark(SlotDisp32, a.MovMemDisp32Reg(r, 0, RDI))
		}
	})
}
