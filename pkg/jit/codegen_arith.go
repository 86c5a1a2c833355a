package jit

import "github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"

var arithOps = map[bytecode.Opcode]byte{
	bytecode.Add: sseAdd,
	bytecode.Sub: sseSub,
	bytecode.Mul: sseMul,
	bytecode.Dvd: sseDiv,
}

// arithTemplate combines the two top slots as doubles: a op b, where b is
// the top of stack. The result replaces a.
func arithTemplate(op bytecode.Opcode) *Template {
	sse := arithOps[op]
	return assemble(func(a *Assembler, t *Template) {
		a.MovsdLoadRsp(XMM1, 8)
		a.MovsdLoadRsp(XMM2, 0)
		a.AddRegImm8(RSP, 8)
		a.ArithsdRegReg(sse, XMM1, XMM2)
		a.MovsdStoreRsp(0, XMM1)
	})
}

func sqrtTemplate() *Template {
	return assemble(func(a *Assembler, t *Template) {
		a.SqrtsdRsp(XMM1, 0)
		a.MovsdStoreRsp(0, XMM1)
	})
}
