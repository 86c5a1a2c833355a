package jit

import (
	"fmt"
	"strings"

	"github.com/KetchuppOfficial/Binary-Translator/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Disassemble lists the native image of code, grouped under the source
// instruction each block of machine code was generated from.
func Disassemble(code, native []byte) (string, error) {
	var sb strings.Builder
	_, err := walk(code, func(s *step) error {
		end := s.nativeIP + s.desc.NativeLen()
		if end > len(native) {
			return errors.Errorf(errors.InvariantViolation, s.instr.IP, "image of %d bytes ends inside %v", len(native), s.desc.Variant)
		}
		sb.WriteString(fmt.Sprintf("; %04d  %s\n", s.instr.IP, s.instr))
		writeNative(&sb, native[:end], s.nativeIP)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// writeNative decodes code[offset:] and appends one line per instruction.
func writeNative(sb *strings.Builder, code []byte, offset int) {
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		length := inst.Len
		if err != nil || length == 0 {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		var hexBytes []string
		for i := 0; i < length; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%04x: %-32s %s\n",
			offset,
			strings.Join(hexBytes, " "),
			x86asm.IntelSyntax(inst, uint64(offset), nil),
		))
		offset += length
	}
}
