package arm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allFlags() []Flags {
	var out []Flags
	for i := 0; i < 16; i++ {
		out = append(out, Flags{N: i&8 != 0, Z: i&4 != 0, C: i&2 != 0, V: i&1 != 0})
	}
	return out
}

func TestConditionTruthTable(t *testing.T) {
	ref := map[Cond]func(f Flags) bool{
		CondEQ: func(f Flags) bool { return f.Z },
		CondNE: func(f Flags) bool { return !f.Z },
		CondHS: func(f Flags) bool { return f.C },
		CondLO: func(f Flags) bool { return !f.C },
		CondMI: func(f Flags) bool { return f.N },
		CondPL: func(f Flags) bool { return !f.N },
		CondVS: func(f Flags) bool { return f.V },
		CondVC: func(f Flags) bool { return !f.V },
		CondHI: func(f Flags) bool { return !f.Z && f.C },
		CondLS: func(f Flags) bool { return !f.C || f.Z },
		CondGE: func(f Flags) bool { return f.N == f.V },
		CondLT: func(f Flags) bool { return f.N != f.V },
		CondGT: func(f Flags) bool { return f.N == f.V && !f.Z },
		CondLE: func(f Flags) bool { return f.N != f.V || f.Z },
	}
	assert.Len(t, ref, 14)
	for c, want := range ref {
		for _, f := range allFlags() {
			assert.Equal(t, want(f), EvalCondition(c, f), "%s under %s", c, f)
		}
	}
	for _, f := range allFlags() {
		assert.True(t, EvalCondition(CondAL, f))
	}
}

var flagOperands = []uint32{0, 1, 2, 0x7FFFFFFF, 0x80000000, 0x80000001, 0xFFFFFFFE, 0xFFFFFFFF, 0x12345678}

func TestAddFlagsMatchReference(t *testing.T) {
	for _, a := range flagOperands {
		for _, b := range flagOperands {
			res, f := AddWithFlags(a, b)
			wide := uint64(a) + uint64(b)
			signed := int64(int32(a)) + int64(int32(b))
			name := fmt.Sprintf("%#x+%#x", a, b)
			assert.Equal(t, uint32(wide), res, name)
			assert.Equal(t, wide>>32 != 0, f.C, name)
			assert.Equal(t, signed != int64(int32(res)), f.V, name)
			assert.Equal(t, res == 0, f.Z, name)
			assert.Equal(t, int32(res) < 0, f.N, name)
		}
	}
}

func TestSubFlagsMatchReference(t *testing.T) {
	for _, a := range flagOperands {
		for _, b := range flagOperands {
			res, f := SubWithFlags(a, b)
			signed := int64(int32(a)) - int64(int32(b))
			name := fmt.Sprintf("%#x-%#x", a, b)
			assert.Equal(t, a-b, res, name)
			// ARM carry is NOT borrow.
			assert.Equal(t, a >= b, f.C, name)
			assert.Equal(t, signed != int64(int32(res)), f.V, name)
			assert.Equal(t, a == b, f.Z, name)
			assert.Equal(t, int32(res) < 0, f.N, name)
		}
	}
}

func TestCPSRRoundTrip(t *testing.T) {
	for _, f := range allFlags() {
		cpsr := f.EncodeCPSR(0x000001D3)
		assert.Equal(t, uint32(0x1D3), cpsr&0x0FFFFFFF)
		assert.Equal(t, f, FlagsFromCPSR(cpsr))
	}
	assert.Equal(t, uint32(0x60000010), Flags{Z: true, C: true}.EncodeCPSR(0xF0000010))
}

func TestSlotTable(t *testing.T) {
	for i, info := range Slots {
		assert.Equal(t, Slot(i), info.Slot)
	}
	assert.Equal(t, int64(13*4), SP.StateOffset())
	assert.Equal(t, int64(15*4), CPSR.StateOffset())
	assert.Equal(t, int64(-1), FlagZ.StateOffset())
	assert.True(t, FlagV.IsFlag())
	assert.False(t, CPSR.IsFlag())
	assert.Equal(t, LR, RegSlot(RegLR))
	assert.Panics(t, func() { RegSlot(RegPC) })

	s := State{SP: 0x8000, CPSR: 0x40000000}
	s.R[3] = 7
	w := s.Words()
	assert.Equal(t, uint32(7), w[3])
	assert.Equal(t, s, StateFromWords(w[:]))
	assert.True(t, s.Flags().Z)
}
