package x86

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble lists code, one instruction per line, with addresses starting
// at base. Undecodable bytes are shown as db.
func Disassemble(code []byte, base uint64) string {
	var sb strings.Builder
	offset := 0

	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%08x: db 0x%02x\n", base+uint64(offset), code[offset]))
			offset++
			continue
		}
		length := inst.Len

		var hexBytes []string
		for i := 0; i < length; i++ {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", code[offset+i]))
		}
		sb.WriteString(fmt.Sprintf(
			"0x%08x: %-24s %s\n",
			base+uint64(offset),
			strings.Join(hexBytes, " "),
			x86asm.IntelSyntax(inst, base+uint64(offset), nil),
		))

		offset += length
	}

	return sb.String()
}

// Instructions decodes code into instructions, stopping at the first
// undecodable byte.
func Instructions(code []byte) ([]x86asm.Inst, error) {
	var out []x86asm.Inst
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			return out, fmt.Errorf("x86: decode at +0x%x: %w", offset, err)
		}
		out = append(out, inst)
		offset += inst.Len
	}
	return out, nil
}
