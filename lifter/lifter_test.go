package lifter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

const (
	base      = uint32(0x1000)
	stateAddr = uint64(0x1_0000_0000)
	instrAddr = uint64(0x1_0000_1000)
)

func thumbImage(addr uint32, hws ...uint16) *arm.Image {
	code := make([]byte, 2*len(hws))
	for i, hw := range hws {
		binary.LittleEndian.PutUint16(code[2*i:], hw)
	}
	return arm.NewImage(addr, code)
}

func armImage(addr uint32, words ...uint32) *arm.Image {
	code := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(code[4*i:], w)
	}
	return arm.NewImage(addr, code)
}

func translate(t *testing.T, code arm.CodeReader, mode arm.Mode, entry uint32, ranges ...Range) (*Translator, *ir.Function) {
	t.Helper()
	tr := NewTranslator(Config{Code: code, Ranges: ranges})
	fn, err := tr.Translate(entry, mode)
	require.NoError(t, err)
	return tr, fn
}

// execute runs fn on the reference interpreter with the processor state at
// stateAddr and returns the exit address and the final state.
func execute(t *testing.T, fn *ir.Function, st arm.State, mem *ir.SparseMemory) (uint32, arm.State) {
	t.Helper()
	in := ir.NewInterpreter(mem)
	for i, w := range st.Words() {
		in.Mem.Write(stateAddr+uint64(4*i), 4, uint64(w))
	}
	ret, err := in.Run(fn, stateAddr, instrAddr)
	require.NoError(t, err)
	return uint32(ret), arm.StateFromWords(in.Mem.Uint32s(stateAddr, arm.StateWords))
}

// checkPhis asserts that every unit's phis have one input per predecessor.
func checkPhis(t *testing.T, c *Cache) {
	t.Helper()
	for _, u := range c.Units() {
		assert.True(t, u.Phis.Complete(), u.String())
		assert.Len(t, u.Head.Preds, u.Edges, u.String())
		for s := arm.Slot(0); s < arm.NumSlots; s++ {
			phi := u.Phis.Get(s)
			assert.Len(t, phi.Incoming, u.Edges, "%s %s", u, s)
			assert.Equal(t, u.Head, phi.Block)
		}
	}
}

func terminators(b *ir.Block) int {
	n := 0
	for _, v := range b.Instrs {
		if v.Op.IsTerminator() {
			n++
		}
	}
	return n
}

func TestStraightLine(t *testing.T) {
	// movs r0, #1; adds r0, #2; adds r0, #3
	img := thumbImage(base, 0x2001, 0x3002, 0x3003)
	tr, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 6})

	assert.Equal(t, 4, tr.Cache().Len())
	for i, u := range tr.Cache().Units() {
		assert.Equal(t, base+uint32(2*i), u.Addr)
		assert.Equal(t, 1, u.Edges)
		assert.True(t, u.Finished)
	}
	checkPhis(t, tr.Cache())
	assert.Equal(t, 3, tr.Stats.Instructions)
	assert.Equal(t, 1, tr.Stats.Exits)

	ret, out := execute(t, fn, arm.State{}, nil)
	assert.Equal(t, base+6|1, ret)
	assert.Equal(t, uint32(6), out.R[0])
}

func TestJoinDedup(t *testing.T) {
	img := thumbImage(base,
		0x2800, // 1000: cmp r0, #0
		0xD001, // 1002: beq 1008
		0x2101, // 1004: movs r1, #1
		0xE000, // 1006: b 100a
		0x2102, // 1008: movs r1, #2
		0x4770, // 100a: bx lr
	)
	tr, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 12})
	c := tr.Cache()

	assert.Equal(t, 6, c.Len())
	seen := make(map[uint32]bool)
	for _, u := range c.Units() {
		assert.False(t, seen[u.Addr], "duplicate unit at 0x%x", u.Addr)
		seen[u.Addr] = true
	}
	join, ok := c.Lookup(tr.fid, base+10)
	require.True(t, ok)
	assert.Equal(t, 2, join.Edges)
	checkPhis(t, c)

	branch, _ := c.Lookup(tr.fid, base+2)
	assert.Equal(t, 1, terminators(branch.Head))
	assert.Equal(t, ir.OpCondBr, branch.Head.Terminator().Op)

	for _, tc := range []struct{ r0, r1 uint32 }{{0, 2}, {5, 1}} {
		ret, out := execute(t, fn, arm.State{R: [13]uint32{tc.r0}, LR: 0x2001}, nil)
		assert.Equal(t, uint32(0x2001), ret)
		assert.Equal(t, tc.r1, out.R[1], "r0=%d", tc.r0)
	}
}

func TestLoopBackEdge(t *testing.T) {
	img := thumbImage(base,
		0x3801, // 1000: subs r0, #1
		0xD1FD, // 1002: bne 1000
		0x4770, // 1004: bx lr
	)
	tr, fn := translate(t, img, arm.ModeThumb, base, Range{base, base + 6})
	head, ok := tr.Cache().Lookup(tr.fid, base)
	require.True(t, ok)
	assert.Equal(t, 2, head.Edges)
	assert.Equal(t, 3, tr.Cache().Len())
	checkPhis(t, tr.Cache())

	ret, out := execute(t, fn, arm.State{R: [13]uint32{5}, LR: 0x4000}, nil)
	assert.Equal(t, uint32(0x4000), ret)
	assert.Equal(t, uint32(0), out.R[0])
	assert.True(t, out.Flags().Z)
	assert.True(t, out.Flags().C)
}

func TestConditionalBranchUnits(t *testing.T) {
	// beq at A with both successors outside the range
	img := thumbImage(base, 0xD001)
	tr, _ := translate(t, img, arm.ModeThumb, base, Range{base, base + 2})
	c := tr.Cache()

	require.Equal(t, 3, c.Len())
	a := c.Units()[0]
	assert.Equal(t, 1, terminators(a.Head))
	assert.Equal(t, ir.OpCondBr, a.Head.Terminator().Op)
	for _, u := range c.Units()[1:] {
		assert.Equal(t, 1, u.Edges)
		assert.Contains(t, a.Head.Succs(), u.Head)
	}
	taken, ok := c.Lookup(tr.fid, base+6)
	require.True(t, ok)
	assert.Equal(t, ir.OpRet, taken.Head.Terminator().Op)
	_, ok = c.Lookup(tr.fid, base+2)
	assert.True(t, ok)
}

func TestAddsOutOfRange(t *testing.T) {
	img := armImage(base, 0xE2900001) // adds r0, r0, #1
	tr, fn := translate(t, img, arm.ModeARM, base, Range{base, base + 4})
	assert.Equal(t, 2, tr.Cache().Len())
	next, ok := tr.Cache().Lookup(tr.fid, base+4)
	require.True(t, ok)
	assert.Equal(t, 1, next.Edges)

	ret, out := execute(t, fn, arm.State{R: [13]uint32{0xFFFFFFFF}, CPSR: 0x10}, nil)
	assert.Equal(t, base+4, ret)
	assert.Equal(t, uint32(0), out.R[0])
	assert.Equal(t, uint32(0x60000010), out.CPSR)
}

func TestRangesFromList(t *testing.T) {
	rs := RangesFromList([]Range{{0x10, 0x20}, {0x40, 0x50}, {0, 0}, {0x60, 0x70}})
	assert.Len(t, rs, 2)
	assert.True(t, rs.Contains(0x10))
	assert.False(t, rs.Contains(0x20))
	assert.True(t, rs.Contains(0x4f))
	assert.False(t, rs.Contains(0x60))
}
