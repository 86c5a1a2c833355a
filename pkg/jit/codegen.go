package jit

import "github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"

// Lowerings that leave the generated code: process exit, return and the
// host I/O helpers.

const sysExitGroup = 231

// vmRegs maps source registers onto the native registers that hold them.
var vmRegs = map[bytecode.Register]Reg{
	bytecode.AX: RAX,
	bytecode.BX: RBX,
	bytecode.CX: RCX,
	bytecode.DX: RDX,
}

// savedRegs are preserved around host helper calls, pushed in this order.
var savedRegs = []Reg{RAX, RBX, RCX, RDX}

// haltTemplate: exit_group(0). A plain exit would only end the calling
// thread of a multi-threaded host.
func haltTemplate() *Template {
	return assemble(func(a *Assembler, t *Template) {
		a.MovReg32Imm32(RAX, sysExitGroup)
		a.XorRegReg(RDI, RDI)
		a.Syscall()
	})
}

func returnTemplate() *Template {
	return assemble(func(a *Assembler, t *Template) {
		a.Ret()
	})
}

// hostIOTemplate calls the in/out helper with rdi pointing at the stack
// slot that receives (in) or holds (out) the value. padded pushes one
// extra slot so rsp is 16-byte aligned at the call.
func hostIOTemplate(op bytecode.Opcode, padded bool) *Template {
	return assemble(func(a *Assembler, t *Template) {
		if op == bytecode.In {
			a.SubRegImm8(RSP, 8)
		}
		for _, r := range savedRegs {
			a.Push(r)
		}
		a.LeaRegRspDisp8(RDI, int8(8*len(savedRegs)))
		if padded {
			a.Push(RDI)
		}
		t.mark(SlotHelper, a.MovRegImm64(R11, 0))
		a.CallReg(R11)
		if padded {
			a.Pop(RDI)
		}
		for i := len(savedRegs) - 1; i >= 0; i-- {
			a.Pop(savedRegs[i])
		}
		if op == bytecode.Out {
			a.AddRegImm8(RSP, 8)
		}
	})
}
