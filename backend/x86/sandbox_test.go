//go:build unicorn
// +build unicorn

package x86

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/armlift/ir"
)

func TestSandboxState(t *testing.T) {
	m := ir.NewModule("test")
	g := m.NewFunction("entry", ir.I32, ir.Ptr, ir.Ptr)
	b := ir.NewBuilder(g)
	b.SetInsertPoint(g.NewBlock("entry"))
	n := b.Load(ir.I32, b.FieldPtr(g.Params[0], 0))
	b.Store(b.Add(n, b.Int32(1)), b.FieldPtr(g.Params[0], 4))
	b.Ret(n)

	s, err := NewSandbox()
	require.NoError(t, err)
	defer s.Close()

	obj, err := NewGenerator().Generate(g, 0)
	require.NoError(t, err)
	ret, words, err := s.Run(obj.Sections[0].Data, []uint32{41, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(41), ret)
	assert.Equal(t, []uint32{41, 42}, words)
}

func TestSandboxHandlerCall(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", ir.I32, ir.Ptr, ir.Ptr)
	b := ir.NewBuilder(f)
	b.SetInsertPoint(f.NewBlock("entry"))
	h := b.Load(ir.Ptr, b.FieldPtr(f.Params[1], 0))
	r := b.Call(ir.I32, h, b.Int32(0x1000), b.Int32(2))
	b.Ret(b.Add(r, b.Int32(1)))

	s, err := NewSandbox()
	require.NoError(t, err)
	defer s.Close()
	var seen [MaxCallArgs]uint64
	addr, err := s.AddHandler(func(args [MaxCallArgs]uint64) uint64 {
		seen = args
		return 0xffff
	})
	require.NoError(t, err)

	obj, err := NewGenerator().Generate(f, 0)
	require.NoError(t, err)
	ret, _, err := s.Run(obj.Sections[0].Data, make([]uint32, 16), []uint64{addr, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10000), ret)
	assert.Equal(t, uint64(0x1000), seen[0])
	assert.Equal(t, uint64(2), seen[1])
}
