// Package jit translates stack bytecode into x86-64 machine code in three
// passes over one shared walk, and runs the result.
package jit

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/bytecode"
	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Variant selects one native lowering. Padded is only set for in/out
// instructions that need an extra slot to align the helper call.
type Variant struct {
	Op     bytecode.Opcode
	Form   bytecode.Form
	Reg    bytecode.Register
	Padded bool
}

func (v Variant) String() string {
	s := v.Op.String()
	if v.Form != bytecode.FormNone && v.Form != bytecode.FormTarget {
		s += " " + v.Form.String()
	}
	if v.Reg != bytecode.RegNone {
		s += " " + v.Reg.String()
	}
	if v.Padded {
		s += " (padded)"
	}
	return s
}

// Descriptor is the catalog entry for one variant.
type Descriptor struct {
	Variant
	Class      bytecode.Class
	SourceLen  int
	StackDelta int // simulated 8-byte slots
	Template   *Template
}

// NativeLen is the number of native bytes the variant emits.
func (d *Descriptor) NativeLen() int {
	return d.Template.Len()
}

var stackDeltas = map[bytecode.Opcode]int{
	bytecode.Push: 1,
	bytecode.Pop:  -1,
	bytecode.Add:  -1,
	bytecode.Sub:  -1,
	bytecode.Mul:  -1,
	bytecode.Dvd:  -1,
	bytecode.In:   1,
	bytecode.Out:  -1,
	bytecode.Jae:  -2,
	bytecode.Ja:   -2,
	bytecode.Jbe:  -2,
	bytecode.Jb:   -2,
	bytecode.Je:   -2,
	bytecode.Jne:  -2,
}

var (
	catalog     map[Variant]*Descriptor
	descriptors []*Descriptor
	fingerprint [32]byte
)

func init() {
	buildCatalog()
	fingerprint = hashCatalog()
}

func buildCatalog() {
	catalog = make(map[Variant]*Descriptor)
	for _, op := range bytecode.AllOpcodes() {
		info, _ := bytecode.Lookup(op)
		switch info.Class {
		case bytecode.ClassHalt:
			register(Variant{Op: op}, info.Class, haltTemplate())
		case bytecode.ClassReturn:
			register(Variant{Op: op}, info.Class, returnTemplate())
		case bytecode.ClassArith:
			register(Variant{Op: op}, info.Class, arithTemplate(op))
		case bytecode.ClassSqrt:
			register(Variant{Op: op}, info.Class, sqrtTemplate())
		case bytecode.ClassHostIO:
			register(Variant{Op: op}, info.Class, hostIOTemplate(op, false))
			register(Variant{Op: op, Padded: true}, info.Class, hostIOTemplate(op, true))
		case bytecode.ClassDirectJump:
			register(Variant{Op: op, Form: bytecode.FormTarget}, info.Class, directTemplate(op))
		case bytecode.ClassConditionalJump:
			register(Variant{Op: op, Form: bytecode.FormTarget}, info.Class, conditionalTemplate(op))
		case bytecode.ClassStack:
			build := pushTemplate
			if op == bytecode.Pop {
				build = popTemplate
			}
			for _, form := range bytecode.PushPopForms {
				if !form.ValidFor(op) {
					continue
				}
				if !form.HasRegister() {
					register(Variant{Op: op, Form: form}, info.Class, build(form, bytecode.RegNone))
					continue
				}
				for _, r := range bytecode.Registers {
					register(Variant{Op: op, Form: form, Reg: r}, info.Class, build(form, r))
				}
			}
		}
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return variantLess(descriptors[i].Variant, descriptors[j].Variant)
	})
}

func register(v Variant, class bytecode.Class, t *Template) {
	if _, dup := catalog[v]; dup {
		panic(fmt.Sprintf("jit: variant %v registered twice", v))
	}
	d := &Descriptor{
		Variant:    v,
		Class:      class,
		SourceLen:  v.Form.SourceLen(),
		StackDelta: stackDeltas[v.Op],
		Template:   t,
	}
	catalog[v] = d
	descriptors = append(descriptors, d)
}

func variantLess(a, b Variant) bool {
	if a.Op != b.Op {
		return a.Op < b.Op
	}
	if a.Form != b.Form {
		return a.Form < b.Form
	}
	if a.Reg != b.Reg {
		return a.Reg < b.Reg
	}
	return !a.Padded && b.Padded
}

// Lookup returns the descriptor of a variant.
func Lookup(v Variant) (*Descriptor, error) {
	return lookup(v, -1)
}

func lookup(v Variant, ip int) (*Descriptor, error) {
	if _, ok := bytecode.Lookup(v.Op); !ok {
		return nil, errors.Errorf(errors.UndefinedOpcode, ip, "byte 0x%02x", byte(v.Op))
	}
	d, ok := catalog[v]
	if !ok {
		return nil, errors.Errorf(errors.UnexpectedOperandTag, ip, "no lowering for %v", v)
	}
	return d, nil
}

// Descriptors returns every catalog entry ordered by opcode, form,
// register and padding.
func Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Fingerprint identifies the catalog contents. Any change to a template or
// stack effect changes it.
func Fingerprint() [32]byte {
	return fingerprint
}

func hashCatalog() [32]byte {
	h, _ := blake2b.New256(nil)
	var word [8]byte
	put := func(v int) {
		binary.LittleEndian.PutUint64(word[:], uint64(v))
		h.Write(word[:])
	}
	for _, d := range descriptors {
		put(int(d.Op))
		put(int(d.Form))
		put(int(d.Reg))
		if d.Padded {
			put(1)
		} else {
			put(0)
		}
		put(int(d.Class))
		put(d.StackDelta)
		put(d.NativeLen())
		h.Write(d.Template.code)
		for s := SlotImm64; s <= SlotHelper; s++ {
			at, ok := d.Template.Slot(s)
			if !ok {
				at = -1
			}
			put(at)
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
