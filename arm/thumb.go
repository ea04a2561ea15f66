package arm

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

func field[T constraints.Unsigned](v T, hi, lo uint) T {
	return (v >> lo) & (1<<(hi-lo+1) - 1)
}

func signExtend[T constraints.Unsigned](v T, width uint) int32 {
	shift := 32 - width
	return int32(uint32(v)<<shift) >> shift
}

// ThumbDecoder decodes the 16-bit Thumb instruction set and the 32-bit BL.
// Instructions outside an IT block always set flags.
type ThumbDecoder struct{}

func (ThumbDecoder) Decode(mem CodeReader, addr uint32) (Instruction, DecodeStatus) {
	inst := Instruction{Mode: ModeThumb, Addr: addr, Len: 2, Cond: CondAL}
	hw, err := ReadU16(mem, addr)
	if err != nil {
		return inst, DecodeFail
	}
	inst.Raw = uint32(hw)

	if hw>>11 >= 0x1D {
		return decodeThumb32(mem, inst, hw)
	}
	status := decodeThumb16(&inst, hw)
	if inst.Text == "" {
		inst.Text = thumbText(&inst)
	}
	return inst, status
}

func decodeThumb16(inst *Instruction, hw uint16) DecodeStatus {
	lo3 := func(shift uint) Reg { return Reg(field(hw, shift+2, shift)) }

	switch {
	case hw>>13 == 0b000 && field(hw, 12, 11) != 0b11:
		// LSL/LSR/ASR (immediate)
		inst.Op = [...]Opcode{T_LSL_RI, T_LSR_RI, T_ASR_RI}[field(hw, 12, 11)]
		inst.Rd, inst.Rm = lo3(0), lo3(3)
		inst.Imm = uint32(field(hw, 10, 6))
		inst.SetFlags = true
	case hw>>11 == 0b00011:
		inst.Rd, inst.Rn = lo3(0), lo3(3)
		inst.SetFlags = true
		switch field(hw, 10, 9) {
		case 0b00:
			inst.Op, inst.Rm = T_ADD_RR, lo3(6)
		case 0b01:
			inst.Op, inst.Rm = T_SUB_RR, lo3(6)
		case 0b10:
			inst.Op, inst.Imm = T_ADD_I3, uint32(field(hw, 8, 6))
		case 0b11:
			inst.Op, inst.Imm = T_SUB_I3, uint32(field(hw, 8, 6))
		}
	case hw>>13 == 0b001:
		rdn := lo3(8)
		inst.Rd, inst.Rn = rdn, rdn
		inst.Imm = uint32(field(hw, 7, 0))
		inst.SetFlags = true
		inst.Op = [...]Opcode{T_MOV_I8, T_CMP_I8, T_ADD_I8, T_SUB_I8}[field(hw, 12, 11)]
	case hw>>10 == 0b010000:
		rdn := lo3(0)
		inst.Rd, inst.Rn, inst.Rm = rdn, rdn, lo3(3)
		inst.SetFlags = true
		inst.Op = [...]Opcode{
			T_AND, T_EOR, T_LSL_RR, T_LSR_RR, T_ASR_RR, T_ADC, T_SBC, T_ROR,
			T_TST, T_RSB, T_CMP_R, T_CMN, T_ORR, T_MUL, T_BIC, T_MVN,
		}[field(hw, 9, 6)]
	case hw>>10 == 0b010001:
		rdn := Reg(field(hw, 7, 7)<<3 | field(hw, 2, 0))
		rm := Reg(field(hw, 6, 3))
		switch field(hw, 9, 8) {
		case 0b00:
			inst.Op, inst.Rd, inst.Rn, inst.Rm = T_ADD_HI, rdn, rdn, rm
		case 0b01:
			inst.Op, inst.Rn, inst.Rm = T_CMP_HI, rdn, rm
			inst.SetFlags = true
		case 0b10:
			inst.Op, inst.Rd, inst.Rm = T_MOV_R, rdn, rm
		case 0b11:
			inst.Op, inst.Rm = T_BX, rm
			if field(hw, 7, 7) == 1 {
				inst.Op = T_BLX
			}
			if field(hw, 2, 0) != 0 {
				return DecodeSoftFail
			}
		}
	case hw>>11 == 0b01001:
		inst.Op, inst.Rd, inst.Rn = T_LDR_PCI, lo3(8), RegPC
		inst.Imm = uint32(field(hw, 7, 0)) << 2
	case hw>>12 == 0b0101:
		inst.Rd, inst.Rn, inst.Rm = lo3(0), lo3(3), lo3(6)
		inst.Op = [...]Opcode{
			T_STR_R, T_STRH_R, T_STRB_R, T_LDRSB_R, T_LDR_R, T_LDRH_R, T_LDRB_R, T_LDRSH_R,
		}[field(hw, 11, 9)]
	case hw>>13 == 0b011:
		inst.Rd, inst.Rn = lo3(0), lo3(3)
		imm5 := uint32(field(hw, 10, 6))
		switch field(hw, 12, 11) {
		case 0b00:
			inst.Op, inst.Imm = T_STR_I, imm5<<2
		case 0b01:
			inst.Op, inst.Imm = T_LDR_I, imm5<<2
		case 0b10:
			inst.Op, inst.Imm = T_STRB_I, imm5
		case 0b11:
			inst.Op, inst.Imm = T_LDRB_I, imm5
		}
	case hw>>12 == 0b1000:
		inst.Rd, inst.Rn = lo3(0), lo3(3)
		inst.Imm = uint32(field(hw, 10, 6)) << 1
		inst.Op = T_STRH_I
		if field(hw, 11, 11) == 1 {
			inst.Op = T_LDRH_I
		}
	case hw>>12 == 0b1001:
		inst.Rd, inst.Rn = lo3(8), RegSP
		inst.Imm = uint32(field(hw, 7, 0)) << 2
		inst.Op = T_STR_SPI
		if field(hw, 11, 11) == 1 {
			inst.Op = T_LDR_SPI
		}
	case hw>>12 == 0b1010:
		inst.Rd = lo3(8)
		inst.Imm = uint32(field(hw, 7, 0)) << 2
		inst.Op, inst.Rn = T_ADR, RegPC
		if field(hw, 11, 11) == 1 {
			inst.Op, inst.Rn = T_ADD_SPI, RegSP
		}
	case hw>>12 == 0b1011:
		return decodeThumbMisc(inst, hw)
	case hw>>12 == 0b1100:
		inst.Rn = lo3(8)
		inst.RegList = uint16(field(hw, 7, 0))
		inst.Op = T_STM
		if field(hw, 11, 11) == 1 {
			inst.Op = T_LDM
		}
	case hw>>12 == 0b1101:
		cond := Cond(field(hw, 11, 8))
		switch cond {
		case 0b1110:
			inst.Text = fmt.Sprintf("udf #%d", field(hw, 7, 0))
			return DecodeFail
		case 0b1111:
			inst.Op, inst.Imm = T_SVC, uint32(field(hw, 7, 0))
		default:
			inst.Op, inst.Cond = T_BCC, cond
			inst.Offset = signExtend(field(hw, 7, 0), 8) << 1
		}
	case hw>>11 == 0b11100:
		inst.Op = T_B
		inst.Offset = signExtend(field(hw, 10, 0), 11) << 1
	default:
		return DecodeFail
	}
	return DecodeSuccess
}

func decodeThumbMisc(inst *Instruction, hw uint16) DecodeStatus {
	switch {
	case hw>>7 == 0b101100000:
		inst.Op, inst.Rd, inst.Rn = T_ADD_SP, RegSP, RegSP
		inst.Imm = uint32(field(hw, 6, 0)) << 2
	case hw>>7 == 0b101100001:
		inst.Op, inst.Rd, inst.Rn = T_SUB_SP, RegSP, RegSP
		inst.Imm = uint32(field(hw, 6, 0)) << 2
	case hw>>9 == 0b1011010:
		inst.Op, inst.Rn = T_PUSH, RegSP
		inst.RegList = uint16(field(hw, 7, 0))
		if field(hw, 8, 8) == 1 {
			inst.RegList |= 1 << RegLR
		}
		if inst.RegList == 0 {
			return DecodeSoftFail
		}
	case hw>>9 == 0b1011110:
		inst.Op, inst.Rn = T_POP, RegSP
		inst.RegList = uint16(field(hw, 7, 0))
		if field(hw, 8, 8) == 1 {
			inst.RegList |= 1 << RegPC
		}
		if inst.RegList == 0 {
			return DecodeSoftFail
		}
	case hw == 0xBF00:
		inst.Op = T_NOP
	case hw>>8 == 0xBF:
		inst.Op = T_HINT
	case hw>>8 == 0xBE:
		inst.Text = fmt.Sprintf("bkpt #%d", field(hw, 7, 0))
		return DecodeFail
	default:
		inst.Op = T_MISC
	}
	return DecodeSuccess
}

func decodeThumb32(mem CodeReader, inst Instruction, hw1 uint16) (Instruction, DecodeStatus) {
	inst.Len = 4
	hw2, err := ReadU16(mem, inst.Addr+2)
	if err != nil {
		return inst, DecodeFail
	}
	inst.Raw = uint32(hw1)<<16 | uint32(hw2)
	// BL: 11110 S imm10 | 11 J1 1 J2 imm11
	if hw1>>11 == 0b11110 && hw2>>14 == 0b11 && field(hw2, 12, 12) == 1 {
		s := uint32(field(hw1, 10, 10))
		j1 := uint32(field(hw2, 13, 13))
		j2 := uint32(field(hw2, 11, 11))
		i1 := ^(j1 ^ s) & 1
		i2 := ^(j2 ^ s) & 1
		imm := s<<24 | i1<<23 | i2<<22 | uint32(field(hw1, 9, 0))<<12 | uint32(field(hw2, 10, 0))<<1
		inst.Op = T_BL
		inst.Offset = signExtend(imm, 25)
		inst.Text = fmt.Sprintf("bl #%d", inst.Offset)
		return inst, DecodeSuccess
	}
	return inst, DecodeFail
}

func thumbText(i *Instruction) string {
	s := ""
	if i.SetFlags {
		s = "s"
	}
	switch i.Op {
	case T_LSL_RI, T_LSR_RI, T_ASR_RI:
		name := map[Opcode]string{T_LSL_RI: "lsl", T_LSR_RI: "lsr", T_ASR_RI: "asr"}[i.Op]
		return fmt.Sprintf("%s%s %s, %s, #%d", name, s, i.Rd, i.Rm, i.Imm)
	case T_ADD_RR, T_SUB_RR:
		name := map[Opcode]string{T_ADD_RR: "add", T_SUB_RR: "sub"}[i.Op]
		return fmt.Sprintf("%s%s %s, %s, %s", name, s, i.Rd, i.Rn, i.Rm)
	case T_ADD_I3, T_SUB_I3:
		name := map[Opcode]string{T_ADD_I3: "add", T_SUB_I3: "sub"}[i.Op]
		return fmt.Sprintf("%s%s %s, %s, #%d", name, s, i.Rd, i.Rn, i.Imm)
	case T_MOV_I8, T_ADD_I8, T_SUB_I8:
		name := map[Opcode]string{T_MOV_I8: "mov", T_ADD_I8: "add", T_SUB_I8: "sub"}[i.Op]
		return fmt.Sprintf("%s%s %s, #%d", name, s, i.Rd, i.Imm)
	case T_CMP_I8:
		return fmt.Sprintf("cmp %s, #%d", i.Rn, i.Imm)
	case T_CMP_R, T_CMP_HI, T_CMN, T_TST:
		name := map[Opcode]string{T_CMP_R: "cmp", T_CMP_HI: "cmp", T_CMN: "cmn", T_TST: "tst"}[i.Op]
		return fmt.Sprintf("%s %s, %s", name, i.Rn, i.Rm)
	case T_AND, T_EOR, T_ORR, T_BIC, T_MVN, T_ADC, T_SBC, T_ROR, T_MUL, T_RSB, T_LSL_RR, T_LSR_RR, T_ASR_RR:
		name := map[Opcode]string{
			T_AND: "and", T_EOR: "eor", T_ORR: "orr", T_BIC: "bic", T_MVN: "mvn", T_ADC: "adc",
			T_SBC: "sbc", T_ROR: "ror", T_MUL: "mul", T_RSB: "rsb", T_LSL_RR: "lsl", T_LSR_RR: "lsr", T_ASR_RR: "asr",
		}[i.Op]
		return fmt.Sprintf("%s%s %s, %s", name, s, i.Rd, i.Rm)
	case T_ADD_HI:
		return fmt.Sprintf("add %s, %s", i.Rd, i.Rm)
	case T_MOV_R:
		return fmt.Sprintf("mov %s, %s", i.Rd, i.Rm)
	case T_BX, T_BLX:
		name := map[Opcode]string{T_BX: "bx", T_BLX: "blx"}[i.Op]
		return fmt.Sprintf("%s %s", name, i.Rm)
	case T_LDR_PCI:
		return fmt.Sprintf("ldr %s, [pc, #%d]", i.Rd, i.Imm)
	case T_STR_R, T_STRH_R, T_STRB_R, T_LDRSB_R, T_LDR_R, T_LDRH_R, T_LDRB_R, T_LDRSH_R:
		name := map[Opcode]string{
			T_STR_R: "str", T_STRH_R: "strh", T_STRB_R: "strb", T_LDRSB_R: "ldrsb",
			T_LDR_R: "ldr", T_LDRH_R: "ldrh", T_LDRB_R: "ldrb", T_LDRSH_R: "ldrsh",
		}[i.Op]
		return fmt.Sprintf("%s %s, [%s, %s]", name, i.Rd, i.Rn, i.Rm)
	case T_STR_I, T_LDR_I, T_STRB_I, T_LDRB_I, T_STRH_I, T_LDRH_I, T_STR_SPI, T_LDR_SPI:
		name := map[Opcode]string{
			T_STR_I: "str", T_LDR_I: "ldr", T_STRB_I: "strb", T_LDRB_I: "ldrb",
			T_STRH_I: "strh", T_LDRH_I: "ldrh", T_STR_SPI: "str", T_LDR_SPI: "ldr",
		}[i.Op]
		return fmt.Sprintf("%s %s, [%s, #%d]", name, i.Rd, i.Rn, i.Imm)
	case T_ADR:
		return fmt.Sprintf("adr %s, #%d", i.Rd, i.Imm)
	case T_ADD_SPI:
		return fmt.Sprintf("add %s, sp, #%d", i.Rd, i.Imm)
	case T_ADD_SP, T_SUB_SP:
		name := map[Opcode]string{T_ADD_SP: "add", T_SUB_SP: "sub"}[i.Op]
		return fmt.Sprintf("%s sp, #%d", name, i.Imm)
	case T_PUSH, T_POP, T_STM, T_LDM:
		name := map[Opcode]string{T_PUSH: "push", T_POP: "pop", T_STM: "stm", T_LDM: "ldm"}[i.Op]
		return fmt.Sprintf("%s %s", name, regListText(i.RegList))
	case T_BCC:
		return fmt.Sprintf("b%s #%d", i.Cond, i.Offset)
	case T_B:
		return fmt.Sprintf("b #%d", i.Offset)
	case T_SVC:
		return fmt.Sprintf("svc #%d", i.Imm)
	case T_NOP:
		return "nop"
	}
	return fmt.Sprintf("%s 0x%04x", i.Op, i.Raw)
}

func regListText(list uint16) string {
	s := "{"
	for n, r := range RegListRegs(list) {
		if n > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s + "}"
}
