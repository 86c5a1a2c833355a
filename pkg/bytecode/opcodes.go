// Package bytecode describes the source instruction set: opcode numbering,
// push/pop operand tags, decoding of a single instruction and a symbolic
// builder for assembling programs.
package bytecode

import "fmt"

// Opcode is the first byte of every instruction.
type Opcode byte

const (
	Hlt  Opcode = 0x00 // Terminate the process
	Push Opcode = 0x01 // Push operand: Push <tag:3> [imm]
	Pop  Opcode = 0x02 // Pop into operand: Pop <tag:3> [imm]
	Add  Opcode = 0x03 // Pop two doubles, push sum
	Sub  Opcode = 0x04 // Pop two doubles, push difference (a - b where b is TOS)
	Mul  Opcode = 0x05 // Pop two doubles, push product
	Dvd  Opcode = 0x06 // Pop two doubles, push quotient (a / b where b is TOS)
	Sqrt Opcode = 0x07 // Replace TOS with its square root
	In   Opcode = 0x08 // Read a double from the host, push it
	Out  Opcode = 0x09 // Pop a double, print it on the host
	Jmp  Opcode = 0x0A // Jmp <target:i32>
	Jae  Opcode = 0x0B // Pop b, pop a, jump if a >= b (unsigned)
	Ja   Opcode = 0x0C // Pop b, pop a, jump if a > b (unsigned)
	Jbe  Opcode = 0x0D // Pop b, pop a, jump if a <= b (unsigned)
	Jb   Opcode = 0x0E // Pop b, pop a, jump if a < b (unsigned)
	Je   Opcode = 0x0F // Pop b, pop a, jump if a == b
	Jne  Opcode = 0x10 // Pop b, pop a, jump if a != b
	Call Opcode = 0x11 // Call <target:i32>
	Ret  Opcode = 0x12 // Return to the caller
)

// Class groups opcodes that share a lowering shape.
type Class int

const (
	ClassHalt Class = iota
	ClassReturn
	ClassStack
	ClassArith
	ClassSqrt
	ClassHostIO
	ClassDirectJump
	ClassConditionalJump
)

func (c Class) String() string {
	switch c {
	case ClassHalt:
		return "halt"
	case ClassReturn:
		return "return"
	case ClassStack:
		return "stack"
	case ClassArith:
		return "arith"
	case ClassSqrt:
		return "sqrt"
	case ClassHostIO:
		return "host-io"
	case ClassDirectJump:
		return "direct-jump"
	case ClassConditionalJump:
		return "conditional-jump"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// OpcodeInfo is the source-side metadata of an opcode.
// Operand is FormTagged for push/pop, whose form is only known after
// reading the tag.
type OpcodeInfo struct {
	Name    string
	Class   Class
	Operand Form
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	Hlt:  {"hlt", ClassHalt, FormNone},
	Push: {"push", ClassStack, FormTagged},
	Pop:  {"pop", ClassStack, FormTagged},
	Add:  {"add", ClassArith, FormNone},
	Sub:  {"sub", ClassArith, FormNone},
	Mul:  {"mul", ClassArith, FormNone},
	Dvd:  {"dvd", ClassArith, FormNone},
	Sqrt: {"sqrt", ClassSqrt, FormNone},
	In:   {"in", ClassHostIO, FormNone},
	Out:  {"out", ClassHostIO, FormNone},
	Jmp:  {"jmp", ClassDirectJump, FormTarget},
	Jae:  {"jae", ClassConditionalJump, FormTarget},
	Ja:   {"ja", ClassConditionalJump, FormTarget},
	Jbe:  {"jbe", ClassConditionalJump, FormTarget},
	Jb:   {"jb", ClassConditionalJump, FormTarget},
	Je:   {"je", ClassConditionalJump, FormTarget},
	Jne:  {"jne", ClassConditionalJump, FormTarget},
	Call: {"call", ClassDirectJump, FormTarget},
	Ret:  {"ret", ClassReturn, FormNone},
}

// Lookup returns the metadata for op. ok is false for bytes outside the
// instruction set.
func Lookup(op Opcode) (info OpcodeInfo, ok bool) {
	info, ok = opcodeInfoTable[op]
	return info, ok
}

func (op Opcode) String() string {
	if info, ok := opcodeInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// IsJump reports whether op carries a jump target operand.
func (op Opcode) IsJump() bool {
	info, ok := opcodeInfoTable[op]
	return ok && info.Operand == FormTarget
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := Hlt; op <= Ret; op++ {
		if _, ok := opcodeInfoTable[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}
