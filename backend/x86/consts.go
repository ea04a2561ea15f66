package x86

// REX prefix bits
const (
	X86_REX_W = 0x08 // REX.W - 64-bit operand size
	X86_REX_R = 0x04 // REX.R - Extension of ModRM reg field
	X86_REX_X = 0x02 // REX.X - Extension of SIB index field
	X86_REX_B = 0x01 // REX.B - Extension of ModRM r/m or opcode reg field

	X86_REX          = 0x40
	X86_REX_W_PREFIX = 0x48
)

// ModRM modes
const (
	X86_MOD_INDIRECT        = 0x00 // [reg]
	X86_MOD_INDIRECT_DISP8  = 0x01 // [reg + disp8]
	X86_MOD_INDIRECT_DISP32 = 0x02 // [reg + disp32]
	X86_MOD_REGISTER        = 0x03 // reg
)

// Primary opcodes
const (
	X86_OP_ADD_RM_R        = 0x01 // ADD r/m, r
	X86_OP_OR_RM_R         = 0x09 // OR r/m, r
	X86_OP_AND_RM_R        = 0x21 // AND r/m, r
	X86_OP_SUB_RM_R        = 0x29 // SUB r/m, r
	X86_OP_XOR_RM_R        = 0x31 // XOR r/m, r
	X86_OP_CMP_RM_R        = 0x39 // CMP r/m, r
	X86_OP_PUSH_R          = 0x50 // PUSH r64 (+ reg)
	X86_OP_POP_R           = 0x58 // POP r64 (+ reg)
	X86_OP_MOVSXD          = 0x63 // MOVSXD r64, r/m32
	X86_OP_GROUP1_RM_IMM32 = 0x81 // Group 1 operations with imm32
	X86_OP_GROUP1_RM_IMM8  = 0x83 // Group 1 operations with imm8
	X86_OP_TEST_RM_R       = 0x85 // TEST r/m, r
	X86_OP_MOV_RM8_R8      = 0x88 // MOV r/m8, r8
	X86_OP_MOV_RM_R        = 0x89 // MOV r/m, r
	X86_OP_MOV_R_RM        = 0x8B // MOV r, r/m
	X86_OP_MOV_R_IMM       = 0xB8 // MOV r, imm64 (+ reg)
	X86_OP_GROUP2_RM_IMM8  = 0xC1 // Group 2 shift operations with imm8
	X86_OP_RET             = 0xC3 // RET
	X86_OP_GROUP2_RM_CL    = 0xD3 // Group 2 shift operations by CL
	X86_OP_JMP_REL32       = 0xE9 // JMP rel32
	X86_OP_GROUP3_RM       = 0xF7 // Group 3 unary operations
	X86_OP_GROUP5_RM       = 0xFF // Group 5 operations (INC, DEC, CALL, JMP, PUSH)
)

// Two-byte opcodes (0x0F prefix)
const (
	X86_OP2_MOVZX_R_RM8  = 0xB6 // MOVZX r, r/m8
	X86_OP2_MOVZX_R_RM16 = 0xB7 // MOVZX r, r/m16
	X86_OP2_MOVSX_R_RM8  = 0xBE // MOVSX r, r/m8
	X86_OP2_MOVSX_R_RM16 = 0xBF // MOVSX r, r/m16
	X86_OP2_JE           = 0x84 // JE/JZ rel32
	X86_OP2_CMOVE        = 0x44 // CMOVE r, r/m
)

// SETcc opcodes (0x0F prefix)
const (
	X86_OP2_SETB  = 0x92 // below
	X86_OP2_SETAE = 0x93 // above or equal
	X86_OP2_SETE  = 0x94 // equal
	X86_OP2_SETNE = 0x95 // not equal
	X86_OP2_SETBE = 0x96 // below or equal
	X86_OP2_SETA  = 0x97 // above
	X86_OP2_SETL  = 0x9C // less (signed)
	X86_OP2_SETGE = 0x9D // greater or equal (signed)
	X86_OP2_SETLE = 0x9E // less or equal (signed)
	X86_OP2_SETG  = 0x9F // greater (signed)
)

// ModRM reg field for opcodes with sub-operations
const (
	X86_REG_ADD = 0 // for 0x81/0x83
	X86_REG_AND = 4 // for 0x81/0x83

	X86_REG_NOT = 2 // for 0xF7

	X86_REG_SHL = 4 // for 0xC1/0xD3
	X86_REG_SHR = 5
	X86_REG_SAR = 7

	X86_REG_CALL_RM = 2 // for 0xFF
)

const (
	X86_PREFIX_0F = 0x0F // Two-byte opcode prefix
	X86_PREFIX_66 = 0x66 // Operand-size override prefix
)
