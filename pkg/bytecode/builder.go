package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Operand is a push/pop operand before encoding.
type Operand struct {
	Form Form
	Reg  Register
	Imm  float64
	Disp int32
}

// Empty is the operand of a bare pop.
func Empty() Operand { return Operand{Form: FormEmpty} }

// Imm is a double literal.
func Imm(v float64) Operand { return Operand{Form: FormImm, Imm: v} }

// Mem is an absolute address [n].
func Mem(addr int32) Operand { return Operand{Form: FormMemImm, Disp: addr} }

// Reg is a register operand.
func Reg(r Register) Operand { return Operand{Form: FormReg, Reg: r} }

// MemReg is [r].
func MemReg(r Register) Operand { return Operand{Form: FormMemReg, Reg: r} }

// MemRegOff is [r+off].
func MemRegOff(r Register, off int32) Operand {
	return Operand{Form: FormMemRegImm, Reg: r, Disp: off}
}

type labelFixup struct {
	at    int // offset of the 4-byte target field
	label string
}

// Builder assembles a bytecode program with symbolic jump labels. Errors are
// sticky and reported by Bytes.
type Builder struct {
	code   []byte
	labels map[string]int
	fixups []labelFixup
	err    error
}

// NewBuilder creates an empty program builder
func NewBuilder() *Builder {
	return &Builder{labels: make(map[string]int)}
}

// Offset returns the source offset the next instruction will occupy
func (b *Builder) Offset() int {
	return len(b.code)
}

// Label binds name to the current offset.
func (b *Builder) Label(name string) *Builder {
	if _, dup := b.labels[name]; dup {
		b.fail(fmt.Errorf("label %q defined twice", name))
		return b
	}
	b.labels[name] = len(b.code)
	return b
}

// Emit appends an instruction without operands.
func (b *Builder) Emit(op Opcode) *Builder {
	info, ok := Lookup(op)
	if !ok || info.Operand != FormNone {
		b.fail(fmt.Errorf("%v is not an operand-less instruction", op))
		return b
	}
	b.code = append(b.code, byte(op))
	return b
}

// Push appends a push of o.
func (b *Builder) Push(o Operand) *Builder {
	return b.stackOp(Push, o)
}

// Pop appends a pop into o.
func (b *Builder) Pop(o Operand) *Builder {
	return b.stackOp(Pop, o)
}

func (b *Builder) stackOp(op Opcode, o Operand) *Builder {
	if !o.Form.ValidFor(op) {
		b.fail(fmt.Errorf("%v does not accept a %v operand", op, o.Form))
		return b
	}
	tag, err := EncodeTag(o.Form, o.Reg)
	if err != nil {
		b.fail(err)
		return b
	}
	b.code = append(b.code, byte(op))
	b.code = append(b.code, tag[:]...)
	switch o.Form {
	case FormImm:
		b.code = binary.LittleEndian.AppendUint64(b.code, math.Float64bits(o.Imm))
	case FormMemImm, FormMemRegImm:
		b.code = binary.LittleEndian.AppendUint32(b.code, uint32(o.Disp))
	}
	return b
}

// Jump appends a jump or call to a label, resolved by Bytes.
func (b *Builder) Jump(op Opcode, label string) *Builder {
	if !op.IsJump() {
		b.fail(fmt.Errorf("%v is not a jump", op))
		return b
	}
	b.code = append(b.code, byte(op))
	b.fixups = append(b.fixups, labelFixup{at: len(b.code), label: label})
	b.code = append(b.code, 0, 0, 0, 0)
	return b
}

// JumpTo appends a jump or call to a raw source offset.
func (b *Builder) JumpTo(op Opcode, target int32) *Builder {
	if !op.IsJump() {
		b.fail(fmt.Errorf("%v is not a jump", op))
		return b
	}
	b.code = append(b.code, byte(op))
	b.code = binary.LittleEndian.AppendUint32(b.code, uint32(target))
	return b
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(bytes ...byte) *Builder {
	b.code = append(b.code, bytes...)
	return b
}

// Bytes resolves labels and returns the program.
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]byte, len(b.code))
	copy(out, b.code)
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("undefined label %q", f.label)
		}
		binary.LittleEndian.PutUint32(out[f.at:], uint32(int32(target)))
	}
	return out, nil
}

// MustBytes is Bytes for programs known to be well formed.
func (b *Builder) MustBytes() []byte {
	code, err := b.Bytes()
	if err != nil {
		panic(fmt.Sprintf("bytecode: %v", err))
	}
	return code
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
