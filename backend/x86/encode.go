package x86

import "encoding/binary"

func rex(w bool, reg, rm Reg) byte {
	b := byte(X86_REX)
	if w {
		b |= X86_REX_W
	}
	if reg.REXBit == 1 {
		b |= X86_REX_R
	}
	if rm.REXBit == 1 {
		b |= X86_REX_B
	}
	return b
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

func encodeU32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// encodeMovImm encodes: mov r64, imm64
func encodeMovImm(r Reg, imm uint64) []byte {
	prefix := byte(X86_REX_W_PREFIX)
	if r.REXBit == 1 {
		prefix |= X86_REX_B
	}
	return append([]byte{prefix, X86_OP_MOV_R_IMM + r.RegBits}, encodeU64(imm)...)
}

// encodeLoadSlot encodes: mov r64, [rbp+disp32]
func encodeLoadSlot(r Reg, disp int32) []byte {
	code := []byte{rex(true, r, RBP), X86_OP_MOV_R_RM, modrm(X86_MOD_INDIRECT_DISP32, r.RegBits, RBP.RegBits)}
	return append(code, encodeU32(uint32(disp))...)
}

// encodeStoreSlot encodes: mov [rbp+disp32], r64
func encodeStoreSlot(disp int32, r Reg) []byte {
	code := []byte{rex(true, r, RBP), X86_OP_MOV_RM_R, modrm(X86_MOD_INDIRECT_DISP32, r.RegBits, RBP.RegBits)}
	return append(code, encodeU32(uint32(disp))...)
}

// encodeALU encodes a two-register 64-bit operation: op dst, src
func encodeALU(op byte, dst, src Reg) []byte {
	return []byte{rex(true, src, dst), op, modrm(X86_MOD_REGISTER, src.RegBits, dst.RegBits)}
}

// encodeShiftCL encodes: shl/shr/sar r64, cl
func encodeShiftCL(ext byte, r Reg) []byte {
	return []byte{rex(true, Reg{}, r), X86_OP_GROUP2_RM_CL, modrm(X86_MOD_REGISTER, ext, r.RegBits)}
}

func encodeShiftImm(ext byte, r Reg, n byte) []byte {
	return []byte{rex(true, Reg{}, r), X86_OP_GROUP2_RM_IMM8, modrm(X86_MOD_REGISTER, ext, r.RegBits), n}
}

// encodeNot encodes: not r64
func encodeNot(r Reg) []byte {
	return []byte{rex(true, Reg{}, r), X86_OP_GROUP3_RM, modrm(X86_MOD_REGISTER, X86_REG_NOT, r.RegBits)}
}

// encodeAddImm32 encodes: add r64, imm32 (sign-extended)
func encodeAddImm32(r Reg, imm int32) []byte {
	code := []byte{rex(true, Reg{}, r), X86_OP_GROUP1_RM_IMM32, modrm(X86_MOD_REGISTER, X86_REG_ADD, r.RegBits)}
	return append(code, encodeU32(uint32(imm))...)
}

// encodeSetcc encodes: setcc al; movzx eax, al
func encodeSetcc(cc byte) []byte {
	return []byte{
		X86_PREFIX_0F, cc, modrm(X86_MOD_REGISTER, 0, RAX.RegBits),
		X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8, modrm(X86_MOD_REGISTER, RAX.RegBits, RAX.RegBits),
	}
}

// encodeTest32 encodes: test r32, r32
func encodeTest32(r Reg) []byte {
	return []byte{X86_OP_TEST_RM_R, modrm(X86_MOD_REGISTER, r.RegBits, r.RegBits)}
}

// encodeCmove encodes: cmove dst, src
func encodeCmove(dst, src Reg) []byte {
	return []byte{rex(true, dst, src), X86_PREFIX_0F, X86_OP2_CMOVE, modrm(X86_MOD_REGISTER, dst.RegBits, src.RegBits)}
}

// encodeCallReg encodes: call r64
func encodeCallReg(r Reg) []byte {
	code := []byte{X86_OP_GROUP5_RM, modrm(X86_MOD_REGISTER, X86_REG_CALL_RM, r.RegBits)}
	if r.REXBit == 1 {
		code = append([]byte{X86_REX | X86_REX_B}, code...)
	}
	return code
}

// zeroExtend clears the bits of r above width. r must be one of rax..rdi.
func zeroExtend(r Reg, bits int) []byte {
	m := modrm(X86_MOD_REGISTER, r.RegBits, r.RegBits)
	switch bits {
	case 1:
		return []byte{X86_OP_GROUP1_RM_IMM8, modrm(X86_MOD_REGISTER, X86_REG_AND, r.RegBits), 1}
	case 8:
		return []byte{X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8, m}
	case 16:
		return []byte{X86_PREFIX_0F, X86_OP2_MOVZX_R_RM16, m}
	case 32:
		return []byte{X86_OP_MOV_RM_R, m}
	}
	return nil
}

// signExtend widens the low bits of r to 64 bits. r must be one of rax..rdi.
func signExtend(r Reg, bits int) []byte {
	m := modrm(X86_MOD_REGISTER, r.RegBits, r.RegBits)
	switch bits {
	case 1:
		return append(encodeShiftImm(X86_REG_SHL, r, 63), encodeShiftImm(X86_REG_SAR, r, 63)...)
	case 8:
		return []byte{X86_REX_W_PREFIX, X86_PREFIX_0F, X86_OP2_MOVSX_R_RM8, m}
	case 16:
		return []byte{X86_REX_W_PREFIX, X86_PREFIX_0F, X86_OP2_MOVSX_R_RM16, m}
	case 32:
		return []byte{X86_REX_W_PREFIX, X86_OP_MOVSXD, m}
	}
	return nil
}

// encodeLoadIndirect encodes a zero-extending load of size bytes: r = [r]
func encodeLoadIndirect(r Reg, size int) []byte {
	m := modrm(X86_MOD_INDIRECT, r.RegBits, r.RegBits)
	switch size {
	case 1:
		return []byte{X86_PREFIX_0F, X86_OP2_MOVZX_R_RM8, m}
	case 2:
		return []byte{X86_PREFIX_0F, X86_OP2_MOVZX_R_RM16, m}
	case 4:
		return []byte{X86_OP_MOV_R_RM, m}
	}
	return []byte{X86_REX_W_PREFIX, X86_OP_MOV_R_RM, m}
}

// encodeStoreIndirect encodes a store of the low size bytes of src: [ptr] = src
func encodeStoreIndirect(ptr, src Reg, size int) []byte {
	m := modrm(X86_MOD_INDIRECT, src.RegBits, ptr.RegBits)
	switch size {
	case 1:
		return []byte{X86_OP_MOV_RM8_R8, m}
	case 2:
		return []byte{X86_PREFIX_66, X86_OP_MOV_RM_R, m}
	case 4:
		return []byte{X86_OP_MOV_RM_R, m}
	}
	return []byte{X86_REX_W_PREFIX, X86_OP_MOV_RM_R, m}
}

// encodePrologue sets up rbp and reserves frame bytes of value slots.
func encodePrologue(frame uint32) []byte {
	code := []byte{
		X86_OP_PUSH_R + RBP.RegBits,
		X86_REX_W_PREFIX, X86_OP_MOV_RM_R, modrm(X86_MOD_REGISTER, RSP.RegBits, RBP.RegBits),
		X86_REX_W_PREFIX, X86_OP_GROUP1_RM_IMM32, modrm(X86_MOD_REGISTER, 5, RSP.RegBits),
	}
	return append(code, encodeU32(frame)...)
}

func encodeEpilogue() []byte {
	return []byte{
		X86_REX_W_PREFIX, X86_OP_MOV_RM_R, modrm(X86_MOD_REGISTER, RBP.RegBits, RSP.RegBits),
		X86_OP_POP_R + RBP.RegBits,
		X86_OP_RET,
	}
}
