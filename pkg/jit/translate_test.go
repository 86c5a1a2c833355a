package jit

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"github.com/google/go-cmp/cmp"
)

var testHelpers = Helpers{In: 0x1111111111, Out: 0x2222222222}

// translate runs the three passes into a plain byte slice.
func translate(t *testing.T, code []byte) (*Layout, []byte) {
	t.Helper()
	layout, err := Size(code)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	native := make([]byte, layout.NativeLen)
	n, err := emitWith(code, layout, native, testHelpers)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if n != layout.NativeLen {
		t.Fatalf("Emit wrote %d bytes, Size computed %d", n, layout.NativeLen)
	}
	patched, err := Patch(code, layout.Relocations, native)
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if patched != len(layout.Relocations) {
		t.Fatalf("Patch resolved %d of %d relocations", patched, len(layout.Relocations))
	}
	return layout, native
}

func rel32At(native []byte, at int) int {
	return int(int32(binary.LittleEndian.Uint32(native[at:])))
}

func scenarioAdd() []byte {
	return bytecode.NewBuilder().
		Push(bytecode.Imm(3)).
		Push(bytecode.Imm(4)).
		Emit(bytecode.Add).
		Emit(bytecode.Out).
		Emit(bytecode.Hlt).
		MustBytes()
}

func scenarioSqrt() []byte {
	return bytecode.NewBuilder().
		Push(bytecode.Imm(2)).
		Emit(bytecode.Sqrt).
		Emit(bytecode.Out).
		Emit(bytecode.Hlt).
		MustBytes()
}

func scenarioForwardJump() []byte {
	return bytecode.NewBuilder().
		Jump(bytecode.Jmp, "end").
		Push(bytecode.Imm(1)).
		Pop(bytecode.Empty()).
		Label("end").
		Emit(bytecode.Hlt).
		MustBytes()
}

// scenarioLoop prints 1 to 5 and returns.
func scenarioLoop() []byte {
	return bytecode.NewBuilder().
		Push(bytecode.Imm(0)).
		Pop(bytecode.Reg(bytecode.AX)).
		Label("loop").
		Push(bytecode.Reg(bytecode.AX)).
		Push(bytecode.Imm(1)).
		Emit(bytecode.Add).
		Pop(bytecode.Reg(bytecode.AX)).
		Push(bytecode.Reg(bytecode.AX)).
		Emit(bytecode.Out).
		Push(bytecode.Reg(bytecode.AX)).
		Push(bytecode.Imm(5)).
		Jump(bytecode.Jb, "loop").
		Emit(bytecode.Ret).
		MustBytes()
}

func TestSizeMatchesEmit(t *testing.T) {
	programs := map[string][]byte{
		"add":     scenarioAdd(),
		"sqrt":    scenarioSqrt(),
		"forward": scenarioForwardJump(),
		"loop":    scenarioLoop(),
	}
	for name, code := range programs {
		t.Run(name, func(t *testing.T) {
			layout, native := translate(t, code)
			if len(native) != layout.NativeLen {
				t.Errorf("image is %d bytes, layout says %d", len(native), layout.NativeLen)
			}
			if layout.Offsets[len(code)] != layout.NativeLen {
				t.Errorf("end offset = %d, want %d", layout.Offsets[len(code)], layout.NativeLen)
			}
		})
	}
}

func TestScenarioAddLayout(t *testing.T) {
	layout, native := translate(t, scenarioAdd())

	// push(11) push(11) add(24) out(30, depth 1) hlt(10)
	if layout.NativeLen != 86 {
		t.Errorf("native length = %d, want 86", layout.NativeLen)
	}
	if layout.Instructions != 5 || layout.FinalDepth != 0 {
		t.Errorf("instructions = %d, final depth = %d, want 5 and 0", layout.Instructions, layout.FinalDepth)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(native[2:])); got != 3 {
		t.Errorf("first push literal = %v, want 3", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(native[13:])); got != 4 {
		t.Errorf("second push literal = %v, want 4", got)
	}

	if len(layout.HelperFixups) != 1 {
		t.Fatalf("helper fixups = %d, want 1", len(layout.HelperFixups))
	}
	f := layout.HelperFixups[0]
	if f.Helper != HelperOut || f.NativeAt != 46+11 {
		t.Errorf("helper fixup = %+v, want out at %d", f, 46+11)
	}
	if got := binary.LittleEndian.Uint64(native[f.NativeAt:]); got != uint64(testHelpers.Out) {
		t.Errorf("helper field = %#x, want %#x", got, testHelpers.Out)
	}
}

func TestForwardJumpDisplacement(t *testing.T) {
	code := scenarioForwardJump()
	layout, native := translate(t, code)

	if len(layout.Relocations) != 1 {
		t.Fatalf("relocations = %d, want 1", len(layout.Relocations))
	}
	r := layout.Relocations[0]
	want := Relocation{SourceFrom: 0, SourceTo: 21, NativeFrom: 1, Kind: RelocDirect}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("relocation mismatch (-want +got):\n%s", diff)
	}

	// jmp(5) push imm(11) pop(1): hlt starts at native 17.
	rel := rel32At(native, r.NativeFrom)
	if rel <= 0 {
		t.Fatalf("forward displacement = %d, want positive", rel)
	}
	if landing := r.NativeFrom + 4 + rel; landing != 17 || landing != layout.Offsets[21] {
		t.Errorf("jmp lands at %d, hlt is at %d", landing, layout.Offsets[21])
	}
	if native[17] != 0xB8 {
		t.Errorf("byte at landing = %#x, want hlt's mov eax", native[17])
	}
}

func TestBackwardJumpDisplacement(t *testing.T) {
	code := scenarioLoop()
	layout, native := translate(t, code)

	if len(layout.Relocations) != 1 {
		t.Fatalf("relocations = %d, want 1", len(layout.Relocations))
	}
	r := layout.Relocations[0]
	if r.Kind != RelocConditional || r.SourceTo != 16 {
		t.Fatalf("relocation = %+v, want conditional to 16", r)
	}
	if r.NativeFrom != 92+7 {
		t.Errorf("rel32 field at %d, want %d", r.NativeFrom, 92+7)
	}

	rel := rel32At(native, r.NativeFrom)
	if rel != -91 {
		t.Errorf("backward displacement = %d, want -91", rel)
	}
	if landing := r.NativeFrom + 4 + rel; landing != layout.Offsets[16] {
		t.Errorf("jb lands at %d, loop head is at %d", landing, layout.Offsets[16])
	}
}

func TestRelocationCoverage(t *testing.T) {
	// Several transfers share a target to exercise the stable drain.
	code := bytecode.NewBuilder().
		Jump(bytecode.Call, "sub").
		Jump(bytecode.Call, "sub").
		Push(bytecode.Imm(1)).
		Push(bytecode.Imm(2)).
		Jump(bytecode.Jne, "sub").
		Jump(bytecode.Jmp, "done").
		Label("sub").
		Push(bytecode.Reg(bytecode.BX)).
		Pop(bytecode.Reg(bytecode.CX)).
		Emit(bytecode.Ret).
		Label("done").
		Emit(bytecode.Ret).
		MustBytes()

	layout, native := translate(t, code)
	if len(layout.Relocations) != 4 {
		t.Fatalf("relocations = %d, want 4", len(layout.Relocations))
	}
	for _, r := range layout.Relocations {
		landing := r.NativeFrom + 4 + rel32At(native, r.NativeFrom)
		if landing != layout.Offsets[r.SourceTo] {
			t.Errorf("%v lands at %#x, target is at %#x", r, landing, layout.Offsets[r.SourceTo])
		}
	}
}

func TestDeterminism(t *testing.T) {
	code := scenarioLoop()
	_, first := translate(t, code)
	_, second := translate(t, code)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("images differ between runs (-first +second):\n%s", diff)
	}
}

func TestStackEffectConservation(t *testing.T) {
	code := bytecode.NewBuilder().
		Push(bytecode.Imm(1)).
		Push(bytecode.Mem(0x10000000)).
		Emit(bytecode.Mul).
		Emit(bytecode.In).
		Emit(bytecode.Dvd).
		Emit(bytecode.Sqrt).
		Pop(bytecode.MemRegOff(bytecode.DX, 8)).
		Emit(bytecode.Ret).
		MustBytes()

	layout, _ := translate(t, code)

	sum := 0
	_, err := walk(code, func(s *step) error {
		if s.depth != sum {
			t.Errorf("depth before ip %d = %d, want %d", s.instr.IP, s.depth, sum)
		}
		sum += s.desc.StackDelta
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if layout.FinalDepth != sum || sum != 0 {
		t.Errorf("final depth = %d, sum of deltas = %d, want 0", layout.FinalDepth, sum)
	}
}

func TestInAlignmentVariant(t *testing.T) {
	tests := []struct {
		name     string
		prefix   int // pushes before in
		wantLen  int
		padByte  int // offset inside the template of push rdi, or -1
		wantPads bool
	}{
		{"aligned", 0, 30, -1, false},
		{"misaligned", 1, 32, 13, true},
		{"aligned again", 2, 30, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bytecode.NewBuilder()
			for i := 0; i < tt.prefix; i++ {
				b.Push(bytecode.Imm(float64(i)))
			}
			inIP := b.Offset()
			b.Emit(bytecode.In)
			for i := 0; i <= tt.prefix; i++ {
				b.Pop(bytecode.Empty())
			}
			code := b.Emit(bytecode.Ret).MustBytes()

			layout, native := translate(t, code)
			start := layout.Offsets[inIP]
			end := layout.Offsets[inIP+1]
			if end-start != tt.wantLen {
				t.Errorf("in occupies %d native bytes, want %d", end-start, tt.wantLen)
			}
			if tt.wantPads && native[start+tt.padByte] != 0x57 {
				t.Errorf("padded in has %#x at +%d, want push rdi", native[start+tt.padByte], tt.padByte)
			}
		})
	}
}

func TestOutAlignmentVariant(t *testing.T) {
	for depth, want := range map[int]int{1: 30, 2: 32, 3: 30} {
		b := bytecode.NewBuilder()
		for i := 0; i < depth; i++ {
			b.Push(bytecode.Imm(1))
		}
		outIP := b.Offset()
		b.Emit(bytecode.Out)
		for i := 1; i < depth; i++ {
			b.Pop(bytecode.Empty())
		}
		code := b.Emit(bytecode.Ret).MustBytes()

		layout, _ := translate(t, code)
		if got := layout.Offsets[outIP+1] - layout.Offsets[outIP]; got != want {
			t.Errorf("out at depth %d occupies %d bytes, want %d", depth, got, want)
		}
	}
}

func TestTranslationErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		kind errors.Kind
		ip   int
	}{
		{"nil", nil, errors.NullInput, -1},
		{"empty", []byte{}, errors.NullInput, 0},
		{"undefined opcode", []byte{byte(bytecode.Ret), 0xFE}, errors.UndefinedOpcode, 1},
		{"bad tag", []byte{byte(bytecode.Push), 0, 0, 0}, errors.UnexpectedOperandTag, 0},
		{"truncated", []byte{byte(bytecode.Ret), byte(bytecode.Jmp), 0}, errors.TruncatedInstruction, 1},
		{"target inside instruction", bytecode.NewBuilder().JumpTo(bytecode.Jmp, 3).Emit(bytecode.Hlt).MustBytes(), errors.UndefinedJumpTarget, 0},
		{"target past end", bytecode.NewBuilder().JumpTo(bytecode.Call, 100).Emit(bytecode.Hlt).MustBytes(), errors.UndefinedJumpTarget, 0},
		{"target at end", bytecode.NewBuilder().JumpTo(bytecode.Jmp, 5).MustBytes(), errors.UndefinedJumpTarget, 0},
		{"negative target", bytecode.NewBuilder().Emit(bytecode.Ret).JumpTo(bytecode.Jmp, -1).MustBytes(), errors.UndefinedJumpTarget, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Size(tt.code)
			if !errors.IsKind(err, tt.kind) {
				t.Fatalf("Size = %v, want kind %v", err, tt.kind)
			}
			var te *errors.TranslationError
			if errors.As(err, &te) && te.IP != tt.ip {
				t.Errorf("error ip = %d, want %d", te.IP, tt.ip)
			}
		})
	}
}

func TestEmitShortBuffer(t *testing.T) {
	code := scenarioAdd()
	layout, err := Size(code)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	_, err = emitWith(code, layout, make([]byte, layout.NativeLen-1), testHelpers)
	if !errors.IsKind(err, errors.InvariantViolation) {
		t.Errorf("Emit into short buffer = %v, want InvariantViolation", err)
	}
	if _, err := Emit(code, nil, make([]byte, 10)); !errors.IsKind(err, errors.NullInput) {
		t.Errorf("Emit without layout = %v, want NullInput", err)
	}
}

func TestPatchUnresolved(t *testing.T) {
	code := scenarioForwardJump()
	layout, native := translate(t, code)

	relocs := append([]Relocation(nil), layout.Relocations...)
	relocs = append(relocs, Relocation{SourceFrom: 0, SourceTo: 2, NativeFrom: 1, Kind: RelocDirect})

	_, err := Patch(code, relocs, native)
	if !errors.IsKind(err, errors.UndefinedJumpTarget) {
		t.Errorf("Patch with a mid-instruction target = %v, want UndefinedJumpTarget", err)
	}
}
