package arm

import (
	"golang.org/x/arch/arm/armasm"
)

// A32Decoder decodes ARM-state instructions with golang.org/x/arch/arm/armasm.
// Anything armasm decodes that has no lifting counterpart becomes A_UNSUPPORTED.
type A32Decoder struct{}

var a32Families = map[armasm.Op]Opcode{
	armasm.ADD_EQ:   A_ADD,
	armasm.ADD_S_EQ: A_ADD,
	armasm.SUB_EQ:   A_SUB,
	armasm.SUB_S_EQ: A_SUB,
	armasm.RSB_EQ:   A_RSB,
	armasm.RSB_S_EQ: A_RSB,
	armasm.AND_EQ:   A_AND,
	armasm.AND_S_EQ: A_AND,
	armasm.ORR_EQ:   A_ORR,
	armasm.ORR_S_EQ: A_ORR,
	armasm.EOR_EQ:   A_EOR,
	armasm.EOR_S_EQ: A_EOR,
	armasm.BIC_EQ:   A_BIC,
	armasm.BIC_S_EQ: A_BIC,
	armasm.MOV_EQ:   A_MOV,
	armasm.MOV_S_EQ: A_MOV,
	armasm.MVN_EQ:   A_MVN,
	armasm.MVN_S_EQ: A_MVN,
	armasm.LSL_EQ:   A_MOV,
	armasm.LSL_S_EQ: A_MOV,
	armasm.LSR_EQ:   A_MOV,
	armasm.LSR_S_EQ: A_MOV,
	armasm.ASR_EQ:   A_MOV,
	armasm.ASR_S_EQ: A_MOV,
	armasm.CMP_EQ:   A_CMP,
	armasm.CMN_EQ:   A_CMN,
	armasm.TST_EQ:   A_TST,
	armasm.B_EQ:     A_B,
	armasm.BL_EQ:    A_BL,
	armasm.BX_EQ:    A_BX,
	armasm.LDR_EQ:   A_LDR,
	armasm.STR_EQ:   A_STR,
	armasm.LDRB_EQ:  A_LDRB,
	armasm.STRB_EQ:  A_STRB,
	armasm.PUSH_EQ:  A_PUSH,
	armasm.POP_EQ:   A_POP,
	armasm.NOP_EQ:   A_NOP,
}

var a32SetsFlags = map[armasm.Op]bool{
	armasm.ADD_S_EQ: true,
	armasm.SUB_S_EQ: true,
	armasm.RSB_S_EQ: true,
	armasm.AND_S_EQ: true,
	armasm.ORR_S_EQ: true,
	armasm.EOR_S_EQ: true,
	armasm.BIC_S_EQ: true,
	armasm.MOV_S_EQ: true,
	armasm.MVN_S_EQ: true,
	armasm.LSL_S_EQ: true,
	armasm.LSR_S_EQ: true,
	armasm.ASR_S_EQ: true,
	armasm.CMP_EQ:   true,
	armasm.CMN_EQ:   true,
	armasm.TST_EQ:   true,
}

var a32Shifts = map[armasm.Op]ShiftKind{
	armasm.LSL_EQ:   ShiftLSL,
	armasm.LSL_S_EQ: ShiftLSL,
	armasm.LSR_EQ:   ShiftLSR,
	armasm.LSR_S_EQ: ShiftLSR,
	armasm.ASR_EQ:   ShiftASR,
	armasm.ASR_S_EQ: ShiftASR,
}

func (A32Decoder) Decode(mem CodeReader, addr uint32) (Instruction, DecodeStatus) {
	inst := Instruction{Mode: ModeARM, Addr: addr, Len: 4, Cond: CondAL, ImmCarry: -1}
	word, err := ReadU32(mem, addr)
	if err != nil {
		return inst, DecodeFail
	}
	inst.Raw = word
	src, _ := mem.ReadCode(addr, 4)
	ai, err := armasm.Decode(src, armasm.ModeARM)
	if err != nil {
		return inst, DecodeFail
	}
	inst.Text = ai.String()

	family := ai.Op &^ 15
	cond := ai.Op & 15
	op, ok := a32Families[family]
	if !ok || cond == 15 {
		inst.Op = A_UNSUPPORTED
		return inst, DecodeSuccess
	}
	inst.Op = op
	inst.Cond = Cond(cond)
	inst.SetFlags = a32SetsFlags[family]

	args := ai.Args
	switch op {
	case A_ADD, A_SUB, A_RSB, A_AND, A_ORR, A_EOR, A_BIC:
		inst.Rd, _ = asReg(args[0])
		inst.Rn, _ = asReg(args[1])
		setOperand2(&inst, args[2])
	case A_MOV, A_MVN:
		inst.Rd, _ = asReg(args[0])
		if kind, isShift := a32Shifts[family]; isShift {
			// LSL/LSR/ASR Rd, Rm, #n are MOV Rd, Rm, <shift> #n.
			inst.Rm, _ = asReg(args[1])
			switch a := args[2].(type) {
			case armasm.Imm:
				inst.Shift, inst.ShiftAmount = kind, uint8(a)
			default:
				inst.ShiftByReg = true
			}
			break
		}
		setOperand2(&inst, args[1])
	case A_CMP, A_CMN, A_TST:
		inst.Rn, _ = asReg(args[0])
		setOperand2(&inst, args[1])
	case A_B, A_BL:
		if rel, ok := args[0].(armasm.PCRel); ok {
			inst.Offset = int32(rel)
		}
	case A_BX:
		inst.Rm, _ = asReg(args[0])
	case A_LDR, A_STR, A_LDRB, A_STRB:
		inst.Rd, _ = asReg(args[0])
		switch m := args[1].(type) {
		case armasm.Mem:
			inst.Rn, _ = asReg(m.Base)
			switch m.Mode {
			case armasm.AddrPreIndex:
				inst.Index = AddrPreIndex
			case armasm.AddrPostIndex:
				inst.Index = AddrPostIndex
			default:
				inst.Index = AddrOffset
			}
			if m.Sign != 0 {
				inst.RegOffset = true
				inst.Rm, _ = asReg(m.Index)
			} else {
				inst.Offset = int32(m.Offset)
			}
		case armasm.PCRel:
			inst.Rn = RegPC
			inst.Offset = int32(m)
		}
	case A_PUSH, A_POP:
		inst.Rn = RegSP
		switch a := args[0].(type) {
		case armasm.RegList:
			inst.RegList = uint16(a)
		case armasm.Reg:
			if r, ok := asReg(a); ok {
				inst.RegList = 1 << r
			}
		}
		if inst.RegList == 0 {
			return inst, DecodeSoftFail
		}
	}
	return inst, DecodeSuccess
}

func asReg(a armasm.Arg) (Reg, bool) {
	if r, ok := a.(armasm.Reg); ok && r <= armasm.R15 {
		return Reg(r - armasm.R0), true
	}
	return 0, false
}

func setOperand2(inst *Instruction, a armasm.Arg) {
	switch v := a.(type) {
	case armasm.Imm:
		inst.ImmOperand, inst.Imm = true, uint32(v)
		if inst.Raw>>25&1 == 1 && inst.Raw>>8&0xF != 0 {
			inst.ImmCarry = int8(inst.Imm >> 31)
		}
	case armasm.ImmAlt:
		inst.ImmOperand, inst.Imm = true, uint32(v.Imm())
		if v.Rot != 0 {
			inst.ImmCarry = int8(inst.Imm >> 31)
		}
	case armasm.Reg:
		inst.Rm, _ = asReg(v)
	case armasm.RegShift:
		inst.Rm, _ = asReg(v.Reg)
		inst.Shift = ShiftKind(v.Shift)
		inst.ShiftAmount = v.Count
	case armasm.RegShiftReg:
		inst.Rm, _ = asReg(v.Reg)
		inst.Shift = ShiftKind(v.Shift)
		inst.ShiftByReg = true
	}
}
