package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble returns a listing of the program, one instruction per line,
// with a label line in front of every jump target. Targets that do not land
// on an instruction are printed as raw offsets and flagged at the end.
func Disassemble(code []byte) (string, error) {
	var instrs []Instruction
	boundaries := make(map[int]bool)
	for ip := 0; ip < len(code); {
		in, err := Decode(code, ip)
		if err != nil {
			return "", err
		}
		boundaries[in.IP] = true
		instrs = append(instrs, in)
		ip = in.Next()
	}

	targets := make(map[int]bool)
	dangling := make(map[int]bool)
	for _, in := range instrs {
		if in.Form != FormTarget {
			continue
		}
		if boundaries[int(in.Target)] {
			targets[int(in.Target)] = true
		} else {
			dangling[int(in.Target)] = true
		}
	}

	var sb strings.Builder
	for _, in := range instrs {
		if targets[in.IP] {
			sb.WriteString(fmt.Sprintf("L%04d:\n", in.IP))
		}
		text := in.String()
		if in.Form == FormTarget && targets[int(in.Target)] {
			text = fmt.Sprintf("%v L%04d", in.Op, in.Target)
		}
		sb.WriteString(fmt.Sprintf("    %04d  %s\n", in.IP, text))
	}

	if len(dangling) > 0 {
		offsets := make([]int, 0, len(dangling))
		for t := range dangling {
			offsets = append(offsets, t)
		}
		sort.Ints(offsets)
		for _, t := range offsets {
			sb.WriteString(fmt.Sprintf("; target %d: not an instruction boundary\n", t))
		}
	}
	return sb.String(), nil
}
