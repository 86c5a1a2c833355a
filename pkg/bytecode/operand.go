package bytecode

import "fmt"

// Register names a source register. The zero value means "no register".
type Register byte

const (
	RegNone Register = 0
	AX      Register = 1
	BX      Register = 2
	CX      Register = 3
	DX      Register = 4
)

// Registers lists the addressable source registers.
var Registers = []Register{AX, BX, CX, DX}

func (r Register) String() string {
	switch r {
	case RegNone:
		return "none"
	case AX:
		return "ax"
	case BX:
		return "bx"
	case CX:
		return "cx"
	case DX:
		return "dx"
	}
	return fmt.Sprintf("reg(%d)", byte(r))
}

// Form is the operand shape of a decoded instruction. For push and pop it is
// selected by the 3-byte operand tag (mem_flag, reg_id, imm_flag).
type Form int

const (
	FormNone      Form = iota // no operand
	FormTarget                // 4-byte jump target
	FormTagged                // push/pop before the tag is read
	FormEmpty                 // tag 0,0,0: bare pop
	FormImm                   // tag 0,0,1: 8-byte double literal
	FormMemImm                // tag 1,0,1: [n], 4-byte absolute address
	FormReg                   // tag 0,r,0: register
	FormMemReg                // tag 1,r,0: [r]
	FormMemRegImm             // tag 1,r,1: [r+n], 4-byte offset
)

const (
	opcodeSize = 1
	tagSize    = 3
	int32Size  = 4
	doubleSize = 8
)

var formSourceLen = map[Form]int{
	FormNone:      opcodeSize,
	FormTarget:    opcodeSize + int32Size,
	FormEmpty:     opcodeSize + tagSize,
	FormImm:       opcodeSize + tagSize + doubleSize,
	FormMemImm:    opcodeSize + tagSize + int32Size,
	FormReg:       opcodeSize + tagSize,
	FormMemReg:    opcodeSize + tagSize,
	FormMemRegImm: opcodeSize + tagSize + int32Size,
}

// SourceLen is the encoded length in bytes of an instruction of this form,
// opcode included. FormTagged has no length of its own.
func (f Form) SourceLen() int {
	return formSourceLen[f]
}

// HasRegister reports whether the form names a register in its tag.
func (f Form) HasRegister() bool {
	return f == FormReg || f == FormMemReg || f == FormMemRegImm
}

func (f Form) String() string {
	switch f {
	case FormNone:
		return "none"
	case FormTarget:
		return "target"
	case FormTagged:
		return "tagged"
	case FormEmpty:
		return "empty"
	case FormImm:
		return "imm"
	case FormMemImm:
		return "[imm]"
	case FormReg:
		return "reg"
	case FormMemReg:
		return "[reg]"
	case FormMemRegImm:
		return "[reg+imm]"
	}
	return fmt.Sprintf("form(%d)", int(f))
}

// PushPopForms lists the forms a tag can select.
var PushPopForms = []Form{FormEmpty, FormImm, FormMemImm, FormReg, FormMemReg, FormMemRegImm}

// ValidFor reports whether op accepts this operand form. A bare push and a
// pop into a literal are the two tag combinations without a meaning.
func (f Form) ValidFor(op Opcode) bool {
	switch op {
	case Push:
		return f > FormEmpty
	case Pop:
		return f >= FormEmpty && f != FormImm
	}
	info, ok := opcodeInfoTable[op]
	return ok && info.Operand == f
}

// Tag is the decoded 3-byte push/pop operand tag.
type Tag struct {
	Mem bool
	Reg Register
	Imm bool
}

// DecodeTag reads a tag from its three bytes. ok is false for bytes that do
// not form one of the tag shapes.
func DecodeTag(b [3]byte) (tag Tag, form Form, ok bool) {
	if b[0] > 1 || b[1] > byte(DX) || b[2] > 1 {
		return Tag{}, FormNone, false
	}
	tag = Tag{Mem: b[0] == 1, Reg: Register(b[1]), Imm: b[2] == 1}
	hasReg := tag.Reg != RegNone

	switch {
	case !tag.Mem && !hasReg && !tag.Imm:
		form = FormEmpty
	case !tag.Mem && !hasReg && tag.Imm:
		form = FormImm
	case tag.Mem && !hasReg && tag.Imm:
		form = FormMemImm
	case !tag.Mem && hasReg && !tag.Imm:
		form = FormReg
	case tag.Mem && hasReg && !tag.Imm:
		form = FormMemReg
	case tag.Mem && hasReg && tag.Imm:
		form = FormMemRegImm
	default:
		return tag, FormNone, false
	}
	return tag, form, true
}

// EncodeTag is the inverse of DecodeTag.
func EncodeTag(form Form, reg Register) ([3]byte, error) {
	var b [3]byte
	switch form {
	case FormEmpty:
	case FormImm:
		b[2] = 1
	case FormMemImm:
		b[0], b[2] = 1, 1
	case FormReg:
		b[1] = byte(reg)
	case FormMemReg:
		b[0], b[1] = 1, byte(reg)
	case FormMemRegImm:
		b[0], b[1], b[2] = 1, byte(reg), 1
	default:
		return b, fmt.Errorf("form %v has no operand tag", form)
	}
	if form.HasRegister() && (reg < AX || reg > DX) {
		return b, fmt.Errorf("form %v needs a register, got %v", form, reg)
	}
	return b, nil
}
