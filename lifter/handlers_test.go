package lifter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
)

// brokenDecoder rejects everything, like a disassembler without BX support.
type brokenDecoder struct{}

func (brokenDecoder) Decode(mem arm.CodeReader, addr uint32) (arm.Instruction, arm.DecodeStatus) {
	return arm.Instruction{Mode: arm.ModeARM, Addr: addr, Len: 4}, arm.DecodeFail
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name  string
		img   *arm.Image
		entry uint32
		want  error
	}{
		{"muls has no translator", thumbImage(base, 0x4348), base, lifterrors.ErrUnknownOpcode},
		{"udf", thumbImage(base, 0xDE00), base, lifterrors.ErrDecodeFailed},
		{"entry outside ranges", thumbImage(base, 0x4770), base + 2, lifterrors.ErrEntryOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTranslator(Config{Code: tc.img, Ranges: Ranges{{base, base + 2}}})
			fn, err := tr.Translate(tc.entry, arm.ModeThumb)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, fn)
		})
	}

	_, err := NewTranslator(Config{Ranges: Ranges{{base, base + 2}}}).Translate(base, arm.ModeThumb)
	assert.ErrorIs(t, err, lifterrors.ErrBadRequest)
}

func TestDecodeErrorCarriesPC(t *testing.T) {
	tr := NewTranslator(Config{Code: thumbImage(base, 0x2001, 0xDE00), Ranges: Ranges{{base, base + 4}}})
	_, err := tr.Translate(base, arm.ModeThumb)
	var de *lifterrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, base+2, de.PC)
}

func TestMisdecodedBXRepair(t *testing.T) {
	tr := NewTranslator(Config{
		Code:     armImage(base, 0xE12FFF1E),
		Ranges:   Ranges{{base, base + 4}},
		Decoders: map[arm.Mode]arm.Decoder{arm.ModeARM: brokenDecoder{}},
	})
	fn, err := tr.Translate(base, arm.ModeARM)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Stats.Repairs)

	ret, _ := execute(t, fn, arm.State{LR: 0x3000}, nil)
	assert.Equal(t, uint32(0x3000), ret)
}

// lengthlessDecoder fails without reporting an instruction length.
type lengthlessDecoder struct{ mode arm.Mode }

func (d lengthlessDecoder) Decode(mem arm.CodeReader, addr uint32) (arm.Instruction, arm.DecodeStatus) {
	return arm.Instruction{Mode: d.mode, Addr: addr}, arm.DecodeFail
}

func TestBXRepairOnlyInARMMode(t *testing.T) {
	// the bytes of an A32 "bx lr" seen as two Thumb halfwords
	img := thumbImage(base, 0xFF1E, 0xE12F)
	tr := NewTranslator(Config{
		Code:     img,
		Ranges:   Ranges{{base, base + 4}},
		Decoders: map[arm.Mode]arm.Decoder{arm.ModeThumb: lengthlessDecoder{arm.ModeThumb}},
	})
	_, err := tr.Translate(base, arm.ModeThumb)
	var de *lifterrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, base, de.PC)
	assert.Equal(t, []byte{0x1E, 0xFF, 0x2F, 0xE1}, de.Raw)
	assert.Equal(t, 0, tr.Stats.Repairs)
}

func TestDecodeErrorRawWithoutLength(t *testing.T) {
	tr := NewTranslator(Config{
		Code:     armImage(base, 0xE7F000F0),
		Ranges:   Ranges{{base, base + 4}},
		Decoders: map[arm.Mode]arm.Decoder{arm.ModeARM: lengthlessDecoder{arm.ModeARM}},
	})
	_, err := tr.Translate(base, arm.ModeARM)
	var de *lifterrors.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []byte{0xF0, 0x00, 0xF0, 0xE7}, de.Raw)
}

// TestConditionalBranchTruthTable runs b<cond> for every condition under
// every NZCV combination and checks which way the lifted code leaves.
func TestConditionalBranchTruthTable(t *testing.T) {
	ref := map[arm.Cond]func(n, z, c, v bool) bool{
		arm.CondEQ: func(n, z, c, v bool) bool { return z },
		arm.CondNE: func(n, z, c, v bool) bool { return !z },
		arm.CondHS: func(n, z, c, v bool) bool { return c },
		arm.CondLO: func(n, z, c, v bool) bool { return !c },
		arm.CondMI: func(n, z, c, v bool) bool { return n },
		arm.CondPL: func(n, z, c, v bool) bool { return !n },
		arm.CondVS: func(n, z, c, v bool) bool { return v },
		arm.CondVC: func(n, z, c, v bool) bool { return !v },
		arm.CondHI: func(n, z, c, v bool) bool { return c && !z },
		arm.CondLS: func(n, z, c, v bool) bool { return !c || z },
		arm.CondGE: func(n, z, c, v bool) bool { return n == v },
		arm.CondLT: func(n, z, c, v bool) bool { return n != v },
		arm.CondGT: func(n, z, c, v bool) bool { return !z && n == v },
		arm.CondLE: func(n, z, c, v bool) bool { return z || n != v },
	}
	require.Len(t, ref, 14)

	const (
		taken    = base + 4 | 1
		notTaken = base + 2 | 1
	)
	for cond, want := range ref {
		// b<cond> to pc+4; both successors lie outside the range
		hw := 0xD000 | uint16(cond)<<8
		tr, fn := translate(t, thumbImage(base, hw), arm.ModeThumb, base, Range{base, base + 2})
		assert.Equal(t, 3, tr.Cache().Len(), cond.String())

		for i := uint32(0); i < 16; i++ {
			n, z, c, v := i&8 != 0, i&4 != 0, i&2 != 0, i&1 != 0
			cpsr := i<<28 | 0x30
			ret, out := execute(t, fn, arm.State{CPSR: cpsr}, nil)
			exp := uint32(notTaken)
			if want(n, z, c, v) {
				exp = taken
			}
			assert.Equal(t, exp, ret, "b%s nzcv=%04b", cond, i)
			assert.Equal(t, cpsr, out.CPSR, "b%s nzcv=%04b", cond, i)
		}
	}
}

func TestBranchToNextInstruction(t *testing.T) {
	// beq to pc+2: the taken target is the fall-through address
	tr, fn := translate(t, thumbImage(base, 0xD0FF), arm.ModeThumb, base, Range{base, base + 2})
	require.Equal(t, 2, tr.Cache().Len())
	next, ok := tr.Cache().Lookup(0, base+2)
	require.True(t, ok)
	assert.Equal(t, 2, next.Edges)
	checkPhis(t, tr.Cache())

	for _, cpsr := range []uint32{0, 0x40000000} {
		ret, _ := execute(t, fn, arm.State{CPSR: cpsr}, nil)
		assert.Equal(t, base+2|1, ret)
	}
}

func TestSoftFailExits(t *testing.T) {
	// bx lr with nonzero should-be-zero bits
	tr, fn := translate(t, thumbImage(base, 0x4771), arm.ModeThumb, base, Range{base, base + 2})
	assert.Equal(t, 1, tr.Stats.SoftFails)
	assert.Equal(t, 0, tr.Stats.Instructions)

	ret, _ := execute(t, fn, arm.State{LR: 0x3000}, nil)
	assert.Equal(t, base|1, ret)
}

func TestThumbFlags(t *testing.T) {
	adds := thumbImage(base, 0x1842, 0x4770) // adds r2, r0, r1
	subs := thumbImage(base, 0x1A42, 0x4770) // subs r2, r0, r1
	_, addFn := translate(t, adds, arm.ModeThumb, base, Range{base, base + 4})
	_, subFn := translate(t, subs, arm.ModeThumb, base, Range{base, base + 4})

	pairs := [][2]uint32{
		{0, 0}, {1, 2}, {0xFFFFFFFF, 1}, {0x7FFFFFFF, 1}, {0x80000000, 0x80000000},
		{0x80000000, 1}, {5, 5}, {3, 7}, {0x12345678, 0x9ABCDEF0},
	}
	for _, p := range pairs {
		in := arm.State{R: [13]uint32{p[0], p[1]}, LR: 0x2001}

		_, out := execute(t, addFn, in, nil)
		res, flags := arm.AddWithFlags(p[0], p[1])
		assert.Equal(t, res, out.R[2], "adds %#x, %#x", p[0], p[1])
		assert.Equal(t, flags, out.Flags(), "adds %#x, %#x", p[0], p[1])

		_, out = execute(t, subFn, in, nil)
		res, flags = arm.SubWithFlags(p[0], p[1])
		assert.Equal(t, res, out.R[2], "subs %#x, %#x", p[0], p[1])
		assert.Equal(t, flags, out.Flags(), "subs %#x, %#x", p[0], p[1])
	}
}

func TestThumbShifts(t *testing.T) {
	tests := []struct {
		name  string
		hw    uint16
		r1    uint32
		r0    uint32
		carry bool
	}{
		{"lsls #4", 0x0108, 0xF0000001, 0x00000010, true},
		{"lsls #4 no carry", 0x0108, 0x01000001, 0x10000010, false},
		{"lsrs #32", 0x0808, 0x80000000, 0, true},
		{"asrs #1", 0x1048, 0x80000003, 0xC0000001, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, fn := translate(t, thumbImage(base, tc.hw, 0x4770), arm.ModeThumb, base, Range{base, base + 4})
			_, out := execute(t, fn, arm.State{R: [13]uint32{0, tc.r1}, LR: 0x2001}, nil)
			assert.Equal(t, tc.r0, out.R[0])
			assert.Equal(t, tc.carry, out.Flags().C)
			assert.Equal(t, tc.r0 == 0, out.Flags().Z)
		})
	}
}

func TestPushPop(t *testing.T) {
	img := thumbImage(base,
		0xB510, // push {r4, lr}
		0x2407, // movs r4, #7
		0xBD10, // pop {r4, pc}
	)
	_, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 6})
	mem := ir.NewSparseMemory()
	ret, out := execute(t, fn, arm.State{R: [13]uint32{4: 3}, SP: 0x8000, LR: 0x2001}, mem)

	assert.Equal(t, uint32(0x2001), ret)
	assert.Equal(t, uint32(3), out.R[4])
	assert.Equal(t, uint32(0x8000), out.SP)
	assert.Equal(t, []uint32{3, 0x2001}, mem.Uint32s(0x7FF8, 2))
}

func TestLiteralLoad(t *testing.T) {
	img := thumbImage(base,
		0x4801, // ldr r0, [pc, #4]
		0x4770, // bx lr
		0x0000,
		0x0000,
		0xBEEF, 0xDEAD,
	)
	tr, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 4})
	ret, out := execute(t, fn, arm.State{LR: 0x2001}, nil)
	assert.Equal(t, uint32(0x2001), ret)
	assert.Equal(t, uint32(0xDEADBEEF), out.R[0])

	tr.Function().Values(func(v *ir.Value) {
		assert.False(t, v.Tags.Has(ir.TagMemoryAccess), "literal read from guest memory: %s", v.Ref())
	})
}

func TestThumbMemory(t *testing.T) {
	img := thumbImage(base,
		0x6848, // ldr r0, [r1, #4]
		0x7088, // strb r0, [r1, #2]
		0x5E8A, // ldrsh r2, [r1, r2]
		0x4770, // bx lr
	)
	_, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 8})
	mem := ir.NewSparseMemory()
	mem.Write(0x8004, 4, 0x11223344)
	mem.Write(0x8010, 2, 0x8001)
	_, out := execute(t, fn, arm.State{R: [13]uint32{1: 0x8000, 2: 0x10}, LR: 0x2001}, mem)

	assert.Equal(t, uint32(0x11223344), out.R[0])
	assert.Equal(t, byte(0x44), mem.LoadByte(0x8002))
	assert.Equal(t, uint32(0xFFFF8001), out.R[2])
}

func TestA32Predication(t *testing.T) {
	img := armImage(base,
		0x03A00001, // moveq r0, #1
		0xE12FFF1E, // bx lr
	)
	tr, fn := translate(t, img, arm.ModeARM, base, Range{base, base + 8})
	next, ok := tr.Cache().Lookup(tr.fid, base+4)
	require.True(t, ok)
	assert.Equal(t, 2, next.Edges)
	checkPhis(t, tr.Cache())

	_, out := execute(t, fn, arm.State{R: [13]uint32{7}, LR: 0x4000, CPSR: 1 << arm.CPSRBitZ}, nil)
	assert.Equal(t, uint32(1), out.R[0])
	_, out = execute(t, fn, arm.State{R: [13]uint32{7}, LR: 0x4000}, nil)
	assert.Equal(t, uint32(7), out.R[0])
}

func TestA32Transfers(t *testing.T) {
	img := armImage(base,
		0xE4901004, // ldr r1, [r0], #4
		0xE5C01001, // strb r1, [r0, #1]
		0xE12FFF1E, // bx lr
	)
	_, fn := translate(t, img, arm.ModeARM, base, Range{base, base + 12})
	mem := ir.NewSparseMemory()
	mem.Write(0x8000, 4, 0xCAFEBABE)
	ret, out := execute(t, fn, arm.State{R: [13]uint32{0x8000}, LR: 0x4000}, mem)

	assert.Equal(t, uint32(0x4000), ret)
	assert.Equal(t, uint32(0xCAFEBABE), out.R[1])
	assert.Equal(t, uint32(0x8004), out.R[0])
	assert.Equal(t, byte(0xBE), mem.LoadByte(0x8005))
}

func TestA32BranchLeavesRange(t *testing.T) {
	img := armImage(base, 0xEA000000) // b .+8
	tr, fn := translate(t, img, arm.ModeARM, base, Range{base, base + 4})
	assert.Equal(t, 2, tr.Cache().Len())
	ret, _ := execute(t, fn, arm.State{}, nil)
	assert.Equal(t, base+8, ret)
}

func TestTableOpcodes(t *testing.T) {
	tbl := DefaultTable()
	ops := tbl.Opcodes()
	assert.Len(t, ops, len(thumbHandlers)+len(a32Handlers)+len(a32Branches))
	for i := 1; i < len(ops); i++ {
		assert.Less(t, ops[i-1], ops[i])
	}
	_, ok := tbl.Lookup(arm.T_MUL)
	assert.False(t, ok)

	called := false
	tbl.Register(arm.T_MUL, func(c *Context, inst *arm.Instruction) error {
		called = true
		c.ExitTo(inst.Addr)
		return nil
	})
	tr := NewTranslator(Config{Code: thumbImage(base, 0x4348), Ranges: Ranges{{base, base + 2}}, Table: tbl})
	_, err := tr.Translate(base, arm.ModeThumb)
	require.NoError(t, err)
	assert.True(t, called)
}
