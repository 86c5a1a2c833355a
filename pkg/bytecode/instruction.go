package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
)

// Instruction is one decoded source instruction.
type Instruction struct {
	IP     int
	Op     Opcode
	Form   Form
	Reg    Register
	Imm    float64 // FormImm
	Disp   int32   // FormMemImm, FormMemRegImm
	Target int32   // FormTarget
}

// Len is the number of source bytes the instruction occupies.
func (in Instruction) Len() int {
	return in.Form.SourceLen()
}

// Next is the source offset of the following instruction.
func (in Instruction) Next() int {
	return in.IP + in.Len()
}

// Decode decodes the instruction starting at code[ip].
func Decode(code []byte, ip int) (Instruction, error) {
	if code == nil {
		return Instruction{}, errors.Errorf(errors.NullInput, ip, "no bytecode buffer")
	}
	if ip < 0 || ip >= len(code) {
		return Instruction{}, errors.Errorf(errors.TruncatedInstruction, ip, "ip outside buffer of %d bytes", len(code))
	}

	op := Opcode(code[ip])
	info, ok := Lookup(op)
	if !ok {
		return Instruction{}, errors.Errorf(errors.UndefinedOpcode, ip, "byte 0x%02x", code[ip])
	}

	in := Instruction{IP: ip, Op: op, Form: info.Operand}

	if info.Operand == FormTagged {
		if ip+opcodeSize+tagSize > len(code) {
			return Instruction{}, errors.Errorf(errors.TruncatedInstruction, ip, "%v needs a %d-byte operand tag", op, tagSize)
		}
		var raw [3]byte
		copy(raw[:], code[ip+opcodeSize:])
		tag, form, ok := DecodeTag(raw)
		if !ok || !form.ValidFor(op) {
			return Instruction{}, errors.Errorf(errors.UnexpectedOperandTag, ip, "%v with tag %d,%d,%d", op, raw[0], raw[1], raw[2])
		}
		in.Form = form
		in.Reg = tag.Reg
	}

	if ip+in.Len() > len(code) {
		return Instruction{}, errors.Errorf(errors.TruncatedInstruction, ip, "%v %v needs %d bytes, %d left", op, in.Form, in.Len(), len(code)-ip)
	}

	operand := code[ip+opcodeSize:]
	switch in.Form {
	case FormTarget:
		in.Target = int32(binary.LittleEndian.Uint32(operand))
	case FormImm:
		in.Imm = math.Float64frombits(binary.LittleEndian.Uint64(operand[tagSize:]))
	case FormMemImm, FormMemRegImm:
		in.Disp = int32(binary.LittleEndian.Uint32(operand[tagSize:]))
	}

	return in, nil
}

// String renders the instruction in assembler syntax. Jump targets are
// printed as raw source offsets.
func (in Instruction) String() string {
	switch in.Form {
	case FormNone, FormEmpty:
		return in.Op.String()
	case FormTarget:
		return fmt.Sprintf("%v %d", in.Op, in.Target)
	}
	return fmt.Sprintf("%v %s", in.Op, in.operandString())
}

func (in Instruction) operandString() string {
	switch in.Form {
	case FormImm:
		return strconv.FormatFloat(in.Imm, 'g', -1, 64)
	case FormMemImm:
		return fmt.Sprintf("[%d]", in.Disp)
	case FormReg:
		return in.Reg.String()
	case FormMemReg:
		return fmt.Sprintf("[%v]", in.Reg)
	case FormMemRegImm:
		if in.Disp < 0 {
			return fmt.Sprintf("[%v%d]", in.Reg, in.Disp)
		}
		return fmt.Sprintf("[%v+%d]", in.Reg, in.Disp)
	}
	return ""
}
