package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSum builds: sum = 0; for i = n; i != 0; i-- { sum += i }; return sum
// with the loop phis receiving their back-edge input after being used.
func buildSum(t *testing.T) *Function {
	m := NewModule("test")
	f := m.NewFunction("sum", I32, I32)
	b := NewBuilder(f)

	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	exit := f.NewBlock("exit")

	b.SetInsertPoint(entry)
	b.Br(loop)

	b.SetInsertPoint(loop)
	i := b.Phi(I32, "i")
	sum := b.Phi(I32, "sum")
	i.AddIncoming(entry, f.Params[0])
	sum.AddIncoming(entry, b.Int32(0))
	nextSum := b.Add(sum, i)
	nextI := b.Sub(i, b.Int32(1))
	done := b.ICmp(PredEQ, nextI, b.Int32(0))
	b.CondBr(done, exit, loop)
	i.AddIncoming(loop, nextI)
	sum.AddIncoming(loop, nextSum)

	b.SetInsertPoint(exit)
	b.Ret(nextSum)

	require.NoError(t, Verify(f))
	return f
}

func TestInterpreterLoop(t *testing.T) {
	f := buildSum(t)
	in := NewInterpreter(nil)
	got, err := in.Run(f, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), got)
}

func TestSecondTerminatorPanics(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("f", Void)
	b := NewBuilder(f)
	entry := f.NewBlock("entry")
	other := f.NewBlock("other")
	b.SetInsertPoint(entry)
	b.Br(other)
	assert.Panics(t, func() { b.Br(other) })
	assert.Panics(t, func() { b.Add(b.Int32(1), b.Int32(2)) })
	assert.Len(t, entry.Instrs, 1)
}

func TestVerifyMissingPhiInput(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("f", I32)
	b := NewBuilder(f)
	a := f.NewBlock("a")
	c := f.NewBlock("c")
	join := f.NewBlock("join")

	b.SetInsertPoint(a)
	b.CondBr(b.Bool(true), c, join)
	b.SetInsertPoint(c)
	b.Br(join)
	b.SetInsertPoint(join)
	p := b.Phi(I32, "x")
	p.AddIncoming(a, b.Int32(1))
	b.Ret(p)

	err := Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 inputs for 2 predecessors")

	p.AddIncoming(c, b.Int32(2))
	assert.NoError(t, Verify(f))
}

func TestInsertBeforeAndRAUW(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("f", I32, Ptr)
	b := NewBuilder(f)
	entry := f.NewBlock("entry")
	b.SetInsertPoint(entry)
	ld := b.Load(I32, f.Params[0])
	ld.Tags |= TagMemoryAccess
	sum := b.Add(ld, b.Int32(1))
	b.Ret(sum)

	b.SetInsertBefore(ld)
	repl := b.Add(b.Int32(40), b.Int32(1))
	f.ReplaceAllUsesWith(ld, repl)
	entry.Remove(ld)
	require.NoError(t, Verify(f))
	assert.Equal(t, repl, entry.Instrs[0])

	got, err := NewInterpreter(nil).Run(f, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got)
}

func TestCallsAndMemory(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("f", I32, Ptr)
	b := NewBuilder(f)
	b.SetInsertPoint(f.NewBlock("entry"))
	handler := b.Load(Ptr, b.FieldPtr(f.Params[0], 8))
	r := b.Call(I32, handler, b.Int32(0x1234), b.Int32(2))
	b.Store(b.Trunc(r, I16), b.IntToPtr(b.Int32(0x100)))
	wide := b.ZExt(b.Load(I16, b.IntToPtr(b.Int32(0x100))), I32)
	neg := b.SExt(b.Trunc(b.Int32(0x80), I8), I32)
	b.Ret(b.Add(wide, neg))

	mem := NewSparseMemory()
	mem.Write(0x2008, 8, 0xdead0000)
	in := NewInterpreter(mem)
	var seen []uint64
	in.Externs[0xdead0000] = func(args []uint64) uint64 {
		seen = args
		return 0x1ffff
	}
	got, err := in.Run(f, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x1234, 2}, seen)
	// 0xffff + 0xffffff80 wraps to 0xff7f.
	assert.Equal(t, uint64(0xff7f), got)
}

func TestSignedCompareAndShifts(t *testing.T) {
	assert.True(t, compare(PredSLT, I32, 0xffffffff, 0))
	assert.False(t, compare(PredULT, I32, 0xffffffff, 0))
	assert.True(t, compare(PredSGE, I8, 0x7f, 0x80))

	m := NewModule("test")
	f := m.NewFunction("f", I32)
	b := NewBuilder(f)
	b.SetInsertPoint(f.NewBlock("entry"))
	b.Ret(b.AShr(b.Int32(0x80000000), b.Int32(4)))
	got, err := NewInterpreter(nil).Run(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xf8000000), got)
}

func TestStepLimit(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("spin", Void)
	b := NewBuilder(f)
	blk := f.NewBlock("spin")
	b.SetInsertPoint(blk)
	b.Br(blk)
	in := NewInterpreter(nil)
	in.MaxSteps = 100
	_, err := in.Run(f)
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestPrinting(t *testing.T) {
	f := buildSum(t)
	text := f.Module.String()
	assert.Contains(t, text, "define i32 @sum(i32 %p0)")
	assert.Contains(t, text, "phi i32 [ %p0, %entry ], [ %")
	assert.Contains(t, text, "br i1 %")

	dot := f.ToDot()
	assert.Contains(t, dot, "digraph CFG")
	assert.Contains(t, dot, "b1 -> b2 [label=\"T\"]")

	tree := f.Module.Tree()
	assert.Contains(t, tree, "@sum (3 blocks)")
	assert.Contains(t, tree, "loop preds=2")
}

func TestBlockNamesUnique(t *testing.T) {
	m := NewModule("test")
	f := m.NewFunction("f", Void)
	a := f.NewBlock("exit")
	b := f.NewBlock("exit")
	assert.NotEqual(t, a.Name, b.Name)
	assert.Equal(t, "exit.1", b.Name)
}
