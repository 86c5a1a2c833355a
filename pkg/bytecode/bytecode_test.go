package bytecode

import (
	"strings"
	"testing"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"github.com/google/go-cmp/cmp"
)

func TestBuilderEncoding(t *testing.T) {
	code := NewBuilder().
		Push(Imm(3)).
		Pop(Reg(BX)).
		Push(MemRegOff(CX, -8)).
		Emit(Add).
		Emit(Hlt).
		MustBytes()

	want := []byte{
		0x01, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0x08, 0x40, // push 3.0
		0x02, 0, 2, 0, // pop bx
		0x01, 1, 3, 1, 0xF8, 0xFF, 0xFF, 0xFF, // push [cx-8]
		0x03, // add
		0x00, // hlt
	}
	if diff := cmp.Diff(want, code); diff != "" {
		t.Errorf("encoded program mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderLabels(t *testing.T) {
	code, err := NewBuilder().
		Jump(Jmp, "end").
		Push(Imm(1)).
		Pop(Empty()).
		Label("end").
		Emit(Hlt).
		Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	in, err := Decode(code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	// jmp(5) + push imm(12) + pop(4)
	if in.Target != 21 {
		t.Errorf("jmp target = %d, want 21", in.Target)
	}
}

func TestBuilderErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"bare push", func(b *Builder) { b.Push(Empty()) }},
		{"pop into literal", func(b *Builder) { b.Pop(Imm(1)) }},
		{"emit push", func(b *Builder) { b.Emit(Push) }},
		{"jump with add", func(b *Builder) { b.Jump(Add, "x") }},
		{"undefined label", func(b *Builder) { b.Jump(Jmp, "nowhere") }},
		{"duplicate label", func(b *Builder) { b.Label("a").Label("a") }},
		{"register form without register", func(b *Builder) { b.Push(Reg(RegNone)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.build(b)
			if _, err := b.Bytes(); err == nil {
				t.Error("Bytes succeeded, want error")
			}
		})
	}
}

func TestDecodeForms(t *testing.T) {
	code := NewBuilder().
		Push(Imm(2.5)).
		Push(Mem(64)).
		Push(Reg(DX)).
		Push(MemReg(AX)).
		Push(MemRegOff(BX, 16)).
		Pop(Empty()).
		JumpTo(Call, 0).
		Emit(Ret).
		MustBytes()

	want := []Instruction{
		{IP: 0, Op: Push, Form: FormImm, Imm: 2.5},
		{IP: 12, Op: Push, Form: FormMemImm, Disp: 64},
		{IP: 20, Op: Push, Form: FormReg, Reg: DX},
		{IP: 24, Op: Push, Form: FormMemReg, Reg: AX},
		{IP: 28, Op: Push, Form: FormMemRegImm, Reg: BX, Disp: 16},
		{IP: 36, Op: Pop, Form: FormEmpty},
		{IP: 40, Op: Call, Form: FormTarget, Target: 0},
		{IP: 45, Op: Ret, Form: FormNone},
	}

	var got []Instruction
	for ip := 0; ip < len(code); {
		in, err := Decode(code, ip)
		if err != nil {
			t.Fatalf("Decode at %d: %v", ip, err)
		}
		got = append(got, in)
		ip = in.Next()
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		kind errors.Kind
	}{
		{"nil buffer", nil, errors.NullInput},
		{"undefined opcode", []byte{0xFE}, errors.UndefinedOpcode},
		{"bare push", []byte{byte(Push), 0, 0, 0}, errors.UnexpectedOperandTag},
		{"pop into literal", []byte{byte(Pop), 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}, errors.UnexpectedOperandTag},
		{"mem without register or imm", []byte{byte(Pop), 1, 0, 0}, errors.UnexpectedOperandTag},
		{"register with imm but no mem", []byte{byte(Push), 0, 1, 1, 0, 0, 0, 0}, errors.UnexpectedOperandTag},
		{"register out of range", []byte{byte(Push), 0, 5, 0}, errors.UnexpectedOperandTag},
		{"flag out of range", []byte{byte(Push), 2, 1, 0}, errors.UnexpectedOperandTag},
		{"missing tag", []byte{byte(Push), 0}, errors.TruncatedInstruction},
		{"missing immediate", []byte{byte(Push), 0, 0, 1, 0, 0}, errors.TruncatedInstruction},
		{"missing target", []byte{byte(Jmp), 0, 0}, errors.TruncatedInstruction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.code, 0)
			if err == nil {
				t.Fatal("Decode succeeded, want error")
			}
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want kind %v", err, tt.kind)
			}
		})
	}
}

func TestValidTagCombinations(t *testing.T) {
	for _, op := range []Opcode{Push, Pop} {
		valid := 0
		for mem := byte(0); mem <= 1; mem++ {
			for reg := byte(0); reg <= byte(DX); reg++ {
				for imm := byte(0); imm <= 1; imm++ {
					_, form, ok := DecodeTag([3]byte{mem, reg, imm})
					if ok && form.ValidFor(op) {
						valid++
					}
				}
			}
		}
		if valid != 14 {
			t.Errorf("%v accepts %d tag combinations, want 14", op, valid)
		}
	}
}

func TestDisassemble(t *testing.T) {
	code := NewBuilder().
		Push(Imm(0)).
		Pop(Reg(AX)).
		Label("loop").
		Push(Reg(AX)).
		Push(Imm(1)).
		Emit(Add).
		Pop(Reg(AX)).
		Push(Reg(AX)).
		Push(Imm(5)).
		Jump(Jb, "loop").
		Emit(Ret).
		MustBytes()

	listing, err := Disassemble(code)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	want := strings.Join([]string{
		"    0000  push 0",
		"    0012  pop ax",
		"L0016:",
		"    0016  push ax",
		"    0020  push 1",
		"    0032  add",
		"    0033  pop ax",
		"    0037  push ax",
		"    0041  push 5",
		"    0053  jb L0016",
		"    0058  ret",
		"",
	}, "\n")
	if diff := cmp.Diff(want, listing); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestDisassembleDanglingTarget(t *testing.T) {
	tests := []struct {
		name   string
		target int32
		want   []string
	}{
		{"inside instruction", 3, []string{"    0000  jmp 3", "; target 3: not an instruction boundary"}},
		{"negative", -1, []string{"    0000  jmp -1", "; target -1: not an instruction boundary"}},
		{"past end", 100, []string{"    0000  jmp 100", "; target 100: not an instruction boundary"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := NewBuilder().JumpTo(Jmp, tt.target).Emit(Hlt).MustBytes()
			listing, err := Disassemble(code)
			if err != nil {
				t.Fatalf("Disassemble: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(listing, want) {
					t.Errorf("listing lacks %q:\n%s", want, listing)
				}
			}
			if strings.Contains(listing, "L-") || strings.Contains(listing, "L0") {
				t.Errorf("listing labels a dangling target:\n%s", listing)
			}
		})
	}
}
