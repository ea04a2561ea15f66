package arm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/colorfulnotion/armlift/lifterrors"
)

// Reg is a core register number.
type Reg uint8

const (
	RegSP Reg = 13
	RegLR Reg = 14
	RegPC Reg = 15
)

func (r Reg) String() string {
	switch r {
	case RegSP:
		return "sp"
	case RegLR:
		return "lr"
	case RegPC:
		return "pc"
	}
	return fmt.Sprintf("r%d", uint8(r))
}

// Mode is the instruction set a translation unit is decoded in.
type Mode uint8

const (
	ModeThumb Mode = iota
	ModeARM
)

func (m Mode) String() string {
	if m == ModeARM {
		return "arm"
	}
	return "thumb"
}

// ParseMode maps an architecture name to a Mode.
func ParseMode(arch string) (Mode, error) {
	switch strings.ToLower(arch) {
	case "thumb", "thumbv7", "thumbv6m", "t32":
		return ModeThumb, nil
	case "arm", "armv7", "a32":
		return ModeARM, nil
	}
	return 0, fmt.Errorf("%w: unknown architecture %q", lifterrors.ErrBadRequest, arch)
}

// PCOffset is the value the pc reads ahead of the instruction address.
func (m Mode) PCOffset() uint32 {
	if m == ModeARM {
		return 8
	}
	return 4
}

type Opcode uint16

const (
	OP_INVALID Opcode = iota

	// Thumb (16-bit unless noted)
	T_LSL_RI
	T_LSR_RI
	T_ASR_RI
	T_ADD_RR
	T_SUB_RR
	T_ADD_I3
	T_SUB_I3
	T_MOV_I8
	T_CMP_I8
	T_ADD_I8
	T_SUB_I8
	T_AND
	T_EOR
	T_LSL_RR
	T_LSR_RR
	T_ASR_RR
	T_ADC
	T_SBC
	T_ROR
	T_TST
	T_RSB
	T_CMP_R
	T_CMN
	T_ORR
	T_MUL
	T_BIC
	T_MVN
	T_ADD_HI
	T_CMP_HI
	T_MOV_R
	T_BX
	T_BLX
	T_LDR_PCI
	T_STR_R
	T_STRH_R
	T_STRB_R
	T_LDRSB_R
	T_LDR_R
	T_LDRH_R
	T_LDRB_R
	T_LDRSH_R
	T_STR_I
	T_LDR_I
	T_STRB_I
	T_LDRB_I
	T_STRH_I
	T_LDRH_I
	T_STR_SPI
	T_LDR_SPI
	T_ADR
	T_ADD_SPI
	T_ADD_SP
	T_SUB_SP
	T_PUSH
	T_POP
	T_NOP
	T_HINT
	T_MISC
	T_STM
	T_LDM
	T_BCC
	T_SVC
	T_B
	T_BL // 32-bit

	// A32
	A_ADD
	A_SUB
	A_RSB
	A_AND
	A_ORR
	A_EOR
	A_BIC
	A_MOV
	A_MVN
	A_CMP
	A_CMN
	A_TST
	A_B
	A_BL
	A_BX
	A_LDR
	A_STR
	A_LDRB
	A_STRB
	A_PUSH
	A_POP
	A_NOP
	A_UNSUPPORTED
)

var opcodeNames = map[Opcode]string{
	OP_INVALID:    "INVALID",
	T_LSL_RI:      "T_LSL_RI",
	T_LSR_RI:      "T_LSR_RI",
	T_ASR_RI:      "T_ASR_RI",
	T_ADD_RR:      "T_ADD_RR",
	T_SUB_RR:      "T_SUB_RR",
	T_ADD_I3:      "T_ADD_I3",
	T_SUB_I3:      "T_SUB_I3",
	T_MOV_I8:      "T_MOV_I8",
	T_CMP_I8:      "T_CMP_I8",
	T_ADD_I8:      "T_ADD_I8",
	T_SUB_I8:      "T_SUB_I8",
	T_AND:         "T_AND",
	T_EOR:         "T_EOR",
	T_LSL_RR:      "T_LSL_RR",
	T_LSR_RR:      "T_LSR_RR",
	T_ASR_RR:      "T_ASR_RR",
	T_ADC:         "T_ADC",
	T_SBC:         "T_SBC",
	T_ROR:         "T_ROR",
	T_TST:         "T_TST",
	T_RSB:         "T_RSB",
	T_CMP_R:       "T_CMP_R",
	T_CMN:         "T_CMN",
	T_ORR:         "T_ORR",
	T_MUL:         "T_MUL",
	T_BIC:         "T_BIC",
	T_MVN:         "T_MVN",
	T_ADD_HI:      "T_ADD_HI",
	T_CMP_HI:      "T_CMP_HI",
	T_MOV_R:       "T_MOV_R",
	T_BX:          "T_BX",
	T_BLX:         "T_BLX",
	T_LDR_PCI:     "T_LDR_PCI",
	T_STR_R:       "T_STR_R",
	T_STRH_R:      "T_STRH_R",
	T_STRB_R:      "T_STRB_R",
	T_LDRSB_R:     "T_LDRSB_R",
	T_LDR_R:       "T_LDR_R",
	T_LDRH_R:      "T_LDRH_R",
	T_LDRB_R:      "T_LDRB_R",
	T_LDRSH_R:     "T_LDRSH_R",
	T_STR_I:       "T_STR_I",
	T_LDR_I:       "T_LDR_I",
	T_STRB_I:      "T_STRB_I",
	T_LDRB_I:      "T_LDRB_I",
	T_STRH_I:      "T_STRH_I",
	T_LDRH_I:      "T_LDRH_I",
	T_STR_SPI:     "T_STR_SPI",
	T_LDR_SPI:     "T_LDR_SPI",
	T_ADR:         "T_ADR",
	T_ADD_SPI:     "T_ADD_SPI",
	T_ADD_SP:      "T_ADD_SP",
	T_SUB_SP:      "T_SUB_SP",
	T_PUSH:        "T_PUSH",
	T_POP:         "T_POP",
	T_NOP:         "T_NOP",
	T_HINT:        "T_HINT",
	T_MISC:        "T_MISC",
	T_STM:         "T_STM",
	T_LDM:         "T_LDM",
	T_BCC:         "T_BCC",
	T_SVC:         "T_SVC",
	T_B:           "T_B",
	T_BL:          "T_BL",
	A_ADD:         "A_ADD",
	A_SUB:         "A_SUB",
	A_RSB:         "A_RSB",
	A_AND:         "A_AND",
	A_ORR:         "A_ORR",
	A_EOR:         "A_EOR",
	A_BIC:         "A_BIC",
	A_MOV:         "A_MOV",
	A_MVN:         "A_MVN",
	A_CMP:         "A_CMP",
	A_CMN:         "A_CMN",
	A_TST:         "A_TST",
	A_B:           "A_B",
	A_BL:          "A_BL",
	A_BX:          "A_BX",
	A_LDR:         "A_LDR",
	A_STR:         "A_STR",
	A_LDRB:        "A_LDRB",
	A_STRB:        "A_STRB",
	A_PUSH:        "A_PUSH",
	A_POP:         "A_POP",
	A_NOP:         "A_NOP",
	A_UNSUPPORTED: "A_UNSUPPORTED",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("OP_%d", uint16(op))
}

// ShiftKind is the barrel shifter operation applied to a register operand.
type ShiftKind uint8

const (
	ShiftLSL ShiftKind = iota
	ShiftLSR
	ShiftASR
	ShiftROR
	ShiftRRX
)

var shiftNames = [...]string{"lsl", "lsr", "asr", "ror", "rrx"}

func (s ShiftKind) String() string {
	if int(s) < len(shiftNames) {
		return shiftNames[s]
	}
	return fmt.Sprintf("shift(%d)", uint8(s))
}

// AddrMode is the indexing mode of a load or store.
type AddrMode uint8

const (
	AddrOffset AddrMode = iota // [Rn, #off]
	AddrPreIndex               // [Rn, #off]!
	AddrPostIndex              // [Rn], #off
)

// Instruction is a decoded ARM or Thumb instruction. Field use depends on Op.
type Instruction struct {
	Op       Opcode
	Mode     Mode
	Addr     uint32
	Len      int
	Cond     Cond
	SetFlags bool

	Rd, Rn, Rm Reg
	Imm        uint32
	Offset     int32
	RegList    uint16

	// A32 operand2 and addressing details.
	ImmOperand  bool
	ImmCarry    int8 // -1 when the immediate leaves C unchanged
	Shift       ShiftKind
	ShiftAmount uint8
	ShiftByReg  bool
	Index       AddrMode
	RegOffset   bool

	Raw  uint32
	Text string
}

// Next returns the address of the following instruction.
func (i *Instruction) Next() uint32 {
	return i.Addr + uint32(i.Len)
}

// PC returns the value the pc register reads as while executing i.
func (i *Instruction) PC() uint32 {
	return i.Addr + i.Mode.PCOffset()
}

func (i *Instruction) String() string {
	text := i.Text
	if text == "" {
		text = i.Op.String()
	}
	return fmt.Sprintf("0x%08x: %s", i.Addr, text)
}

// DecodeStatus is the outcome of decoding one instruction.
type DecodeStatus uint8

const (
	DecodeSuccess DecodeStatus = iota
	DecodeFail
	DecodeSoftFail
)

func (s DecodeStatus) String() string {
	switch s {
	case DecodeSuccess:
		return "success"
	case DecodeFail:
		return "fail"
	case DecodeSoftFail:
		return "softfail"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Decoder decodes the instruction at addr. On DecodeFail the returned
// instruction carries Addr and, when readable, Raw.
type Decoder interface {
	Decode(mem CodeReader, addr uint32) (Instruction, DecodeStatus)
}

// DecoderFor returns the decoder of mode m.
func DecoderFor(m Mode) Decoder {
	if m == ModeARM {
		return A32Decoder{}
	}
	return ThumbDecoder{}
}

// CodeReader exposes the guest code image.
type CodeReader interface {
	ReadCode(addr uint32, size int) ([]byte, error)
}

type CodeReaderFunc func(addr uint32, size int) ([]byte, error)

func (f CodeReaderFunc) ReadCode(addr uint32, size int) ([]byte, error) {
	return f(addr, size)
}

// Image is a contiguous code image loaded at Base.
type Image struct {
	Base  uint32
	Bytes []byte
}

func NewImage(base uint32, code []byte) *Image {
	return &Image{Base: base, Bytes: code}
}

func (im *Image) ReadCode(addr uint32, size int) ([]byte, error) {
	if addr < im.Base || uint64(addr-im.Base)+uint64(size) > uint64(len(im.Bytes)) {
		return nil, fmt.Errorf("arm: read of %d bytes at 0x%08x outside image [0x%08x, 0x%08x)",
			size, addr, im.Base, uint64(im.Base)+uint64(len(im.Bytes)))
	}
	off := addr - im.Base
	return im.Bytes[off : off+uint32(size)], nil
}

// ReadU16 reads a little-endian halfword.
func ReadU16(mem CodeReader, addr uint32) (uint16, error) {
	b, err := mem.ReadCode(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian word.
func ReadU32(mem CodeReader, addr uint32) (uint32, error) {
	b, err := mem.ReadCode(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// IsMisdecodedBX matches the A32 encoding of BX Rm, which some decoders reject.
func IsMisdecodedBX(word uint32) bool {
	return word&0xFFFFFFF0 == 0xE12FFF10
}

// RegListRegs expands a register list in ascending order.
func RegListRegs(list uint16) []Reg {
	var regs []Reg
	for r := Reg(0); r < 16; r++ {
		if list&(1<<r) != 0 {
			regs = append(regs, r)
		}
	}
	return regs
}
