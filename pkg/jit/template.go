package jit

import "fmt"

// Slot names a field inside a template that is filled in after copying.
type Slot int

const (
	SlotImm64  Slot = iota // double literal of push imm
	SlotDisp32             // absolute address or register displacement
	SlotRel32              // branch displacement, patched by pass 3
	SlotHelper             // absolute address of a host helper
)

var slotNames = map[Slot]string{
	SlotImm64:  "imm64",
	SlotDisp32: "disp32",
	SlotRel32:  "rel32",
	SlotHelper: "helper",
}

func (s Slot) String() string {
	if name, ok := slotNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// Width is the size of the field in bytes.
func (s Slot) Width() int {
	switch s {
	case SlotImm64, SlotHelper:
		return 8
	default:
		return 4
	}
}

// Template is the native encoding of one instruction variant, with the
// offsets of its variable fields.
type Template struct {
	code  []byte
	slots map[Slot]int
}

// Len is the native length of the template.
func (t *Template) Len() int {
	return len(t.code)
}

// Bytes returns a copy of the template bytes.
func (t *Template) Bytes() []byte {
	out := make([]byte, len(t.code))
	copy(out, t.code)
	return out
}

// Slot returns the offset of the named field.
func (t *Template) Slot(s Slot) (int, bool) {
	at, ok := t.slots[s]
	return at, ok
}

func (t *Template) mark(s Slot, at int) {
	t.slots[s] = at
}

// maxTemplateLen bounds every encoding in the catalog.
const maxTemplateLen = 64

// assemble runs build against a scratch assembler and freezes the result.
func assemble(build func(a *Assembler, t *Template)) *Template {
	t := &Template{slots: make(map[Slot]int)}
	a := NewAssembler(make([]byte, maxTemplateLen))
	build(a, t)
	t.code = append([]byte(nil), a.Bytes()...)
	for s, at := range t.slots {
		if at+s.Width() > len(t.code) {
			panic(fmt.Sprintf("jit: %v slot at %d overruns %d-byte template", s, at, len(t.code)))
		}
	}
	return t
}
