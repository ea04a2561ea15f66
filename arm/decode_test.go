package arm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thumbImage(base uint32, hws ...uint16) *Image {
	code := make([]byte, 2*len(hws))
	for i, hw := range hws {
		binary.LittleEndian.PutUint16(code[2*i:], hw)
	}
	return NewImage(base, code)
}

func armImage(base uint32, words ...uint32) *Image {
	code := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(code[4*i:], w)
	}
	return NewImage(base, code)
}

func decodeThumb(t *testing.T, hw uint16) (Instruction, DecodeStatus) {
	t.Helper()
	return ThumbDecoder{}.Decode(thumbImage(0x1000, hw), 0x1000)
}

func TestThumbDecode(t *testing.T) {
	cases := []struct {
		hw    uint16
		check func(t *testing.T, i Instruction)
	}{
		{0x3001, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_ADD_I8, i.Op)
			assert.Equal(t, Reg(0), i.Rd)
			assert.Equal(t, uint32(1), i.Imm)
			assert.True(t, i.SetFlags)
		}},
		{0x2105, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_MOV_I8, i.Op)
			assert.Equal(t, Reg(1), i.Rd)
			assert.Equal(t, uint32(5), i.Imm)
		}},
		{0x2803, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_CMP_I8, i.Op)
			assert.Equal(t, "cmp r0, #3", i.Text)
		}},
		{0xD002, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_BCC, i.Op)
			assert.Equal(t, CondEQ, i.Cond)
			assert.Equal(t, int32(4), i.Offset)
		}},
		{0xE7FE, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_B, i.Op)
			assert.Equal(t, int32(-4), i.Offset)
		}},
		{0xB510, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_PUSH, i.Op)
			assert.Equal(t, uint16(1<<4|1<<14), i.RegList)
			assert.Equal(t, "push {r4, lr}", i.Text)
		}},
		{0xBD10, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_POP, i.Op)
			assert.Equal(t, uint16(1<<4|1<<15), i.RegList)
		}},
		{0x4802, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_LDR_PCI, i.Op)
			assert.Equal(t, uint32(8), i.Imm)
		}},
		{0x88D1, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_LDRH_I, i.Op)
			assert.Equal(t, Reg(1), i.Rd)
			assert.Equal(t, Reg(2), i.Rn)
			assert.Equal(t, uint32(6), i.Imm)
		}},
		{0x6051, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_STR_I, i.Op)
			assert.Equal(t, uint32(4), i.Imm)
		}},
		{0x0088, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_LSL_RI, i.Op)
			assert.Equal(t, Reg(1), i.Rm)
			assert.Equal(t, uint32(2), i.Imm)
		}},
		{0x0808, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_LSR_RI, i.Op)
			assert.Equal(t, uint32(0), i.Imm)
		}},
		{0x4770, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_BX, i.Op)
			assert.Equal(t, RegLR, i.Rm)
		}},
		{0x4308, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_ORR, i.Op)
			assert.Equal(t, Reg(0), i.Rd)
			assert.Equal(t, Reg(1), i.Rm)
		}},
		{0x1048, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_ASR_RI, i.Op)
		}},
		{0x4288, func(t *testing.T, i Instruction) {
			assert.Equal(t, T_CMP_R, i.Op)
			assert.Equal(t, Reg(0), i.Rn)
			assert.Equal(t, Reg(1), i.Rm)
		}},
	}
	for _, c := range cases {
		inst, status := decodeThumb(t, c.hw)
		require.Equal(t, DecodeSuccess, status, "0x%04x", c.hw)
		assert.Equal(t, 2, inst.Len)
		assert.Equal(t, CondAL == inst.Cond, inst.Op != T_BCC)
		c.check(t, inst)
	}
}

func TestThumbDecodeFailures(t *testing.T) {
	_, status := decodeThumb(t, 0x4771)
	assert.Equal(t, DecodeSoftFail, status)

	_, status = decodeThumb(t, 0xB400)
	assert.Equal(t, DecodeSoftFail, status)

	_, status = decodeThumb(t, 0xDE00)
	assert.Equal(t, DecodeFail, status)

	inst, status := ThumbDecoder{}.Decode(thumbImage(0x1000, 0xE92D, 0x4010), 0x1000)
	assert.Equal(t, DecodeFail, status)
	assert.Equal(t, 4, inst.Len)

	_, status = ThumbDecoder{}.Decode(thumbImage(0x1000, 0x3001), 0x2000)
	assert.Equal(t, DecodeFail, status)
}

func TestThumbDecodeBL(t *testing.T) {
	inst, status := ThumbDecoder{}.Decode(thumbImage(0x1000, 0xF000, 0xF802), 0x1000)
	require.Equal(t, DecodeSuccess, status)
	assert.Equal(t, T_BL, inst.Op)
	assert.Equal(t, 4, inst.Len)
	assert.Equal(t, int32(4), inst.Offset)

	inst, status = ThumbDecoder{}.Decode(thumbImage(0x1000, 0xF7FF, 0xFFFE), 0x1000)
	require.Equal(t, DecodeSuccess, status)
	assert.Equal(t, int32(-4), inst.Offset)
}

func TestA32Decode(t *testing.T) {
	mem := armImage(0x8000,
		0xE2900001, // adds r0, r0, #1
		0x00821003, // addeq r1, r2, r3
		0xE1A00101, // lsl r0, r1, #2
		0xE3500003, // cmp r0, #3
		0x1AFFFFFE, // bne .
		0xE12FFF1E, // bx lr
		0xE5910004, // ldr r0, [r1, #4]
		0xE5210004, // str r0, [r1, #-4]!
		0xE92D4010, // push {r4, lr}
		0xE3A004FF, // mov r0, #0xff000000
		0xE0010291, // mul r1, r1, r2
	)
	dec := A32Decoder{}
	at := func(i int) Instruction {
		inst, status := dec.Decode(mem, 0x8000+uint32(4*i))
		require.Equal(t, DecodeSuccess, status, "word %d", i)
		assert.Equal(t, 4, inst.Len)
		return inst
	}

	i := at(0)
	assert.Equal(t, A_ADD, i.Op)
	assert.True(t, i.SetFlags)
	assert.True(t, i.ImmOperand)
	assert.Equal(t, uint32(1), i.Imm)
	assert.Equal(t, CondAL, i.Cond)

	i = at(1)
	assert.Equal(t, A_ADD, i.Op)
	assert.Equal(t, CondEQ, i.Cond)
	assert.False(t, i.SetFlags)
	assert.Equal(t, Reg(1), i.Rd)
	assert.Equal(t, Reg(2), i.Rn)
	assert.Equal(t, Reg(3), i.Rm)

	i = at(2)
	assert.Equal(t, A_MOV, i.Op)
	assert.Equal(t, ShiftLSL, i.Shift)
	assert.Equal(t, uint8(2), i.ShiftAmount)
	assert.Equal(t, Reg(1), i.Rm)

	i = at(3)
	assert.Equal(t, A_CMP, i.Op)
	assert.True(t, i.SetFlags)

	i = at(4)
	assert.Equal(t, A_B, i.Op)
	assert.Equal(t, CondNE, i.Cond)
	assert.Equal(t, int32(-8), i.Offset)

	i = at(5)
	assert.Equal(t, A_BX, i.Op)
	assert.Equal(t, RegLR, i.Rm)

	i = at(6)
	assert.Equal(t, A_LDR, i.Op)
	assert.Equal(t, AddrOffset, i.Index)
	assert.Equal(t, int32(4), i.Offset)

	i = at(7)
	assert.Equal(t, A_STR, i.Op)
	assert.Equal(t, AddrPreIndex, i.Index)
	assert.Equal(t, int32(-4), i.Offset)

	i = at(8)
	assert.Equal(t, A_PUSH, i.Op)
	assert.Equal(t, uint16(1<<4|1<<14), i.RegList)

	i = at(9)
	assert.Equal(t, uint32(0xFF000000), i.Imm)
	assert.Equal(t, int8(1), i.ImmCarry)

	i = at(10)
	assert.Equal(t, A_UNSUPPORTED, i.Op)
}

func TestMisdecodedBX(t *testing.T) {
	assert.True(t, IsMisdecodedBX(0xE12FFF1E))
	assert.True(t, IsMisdecodedBX(0xE12FFF13))
	assert.False(t, IsMisdecodedBX(0xE12FFF3E))
}

func TestImageBounds(t *testing.T) {
	im := NewImage(0x100, []byte{1, 2, 3, 4})
	b, err := im.ReadCode(0x102, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, b)
	_, err = im.ReadCode(0x103, 2)
	assert.Error(t, err)
	_, err = im.ReadCode(0xFF, 1)
	assert.Error(t, err)

	m, err := ParseMode("Thumb")
	require.NoError(t, err)
	assert.Equal(t, ModeThumb, m)
	_, err = ParseMode("mips")
	assert.Error(t, err)
}
