package x86

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
)

func buildSum(t *testing.T) *ir.Function {
	m := ir.NewModule("test")
	f := m.NewFunction("sum", ir.I32, ir.I32)
	b := ir.NewBuilder(f)
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	exit := f.NewBlock("exit")

	b.SetInsertPoint(entry)
	b.Br(loop)
	b.SetInsertPoint(loop)
	i := b.Phi(ir.I32, "i")
	sum := b.Phi(ir.I32, "sum")
	i.AddIncoming(entry, f.Params[0])
	sum.AddIncoming(entry, b.Int32(0))
	nextSum := b.Add(sum, i)
	nextI := b.Sub(i, b.Int32(1))
	b.CondBr(b.ICmp(ir.PredEQ, nextI, b.Int32(0)), exit, loop)
	i.AddIncoming(loop, nextI)
	sum.AddIncoming(loop, nextSum)
	b.SetInsertPoint(exit)
	b.Ret(nextSum)
	require.NoError(t, ir.Verify(f))
	return f
}

func TestEncoders(t *testing.T) {
	cases := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"mov rax, imm64", encodeMovImm(RAX, 1), []byte{0x48, 0xb8, 1, 0, 0, 0, 0, 0, 0, 0}},
		{"mov r11, imm64", encodeMovImm(R11, 2), []byte{0x49, 0xbb, 2, 0, 0, 0, 0, 0, 0, 0}},
		{"add rax, rcx", encodeALU(X86_OP_ADD_RM_R, RAX, RCX), []byte{0x48, 0x01, 0xc8}},
		{"cmp rax, rcx", encodeALU(X86_OP_CMP_RM_R, RAX, RCX), []byte{0x48, 0x39, 0xc8}},
		{"shl rax, cl", encodeShiftCL(X86_REG_SHL, RAX), []byte{0x48, 0xd3, 0xe0}},
		{"sar rax, cl", encodeShiftCL(X86_REG_SAR, RAX), []byte{0x48, 0xd3, 0xf8}},
		{"mov rcx, [rbp-8]", encodeLoadSlot(RCX, -8), []byte{0x48, 0x8b, 0x8d, 0xf8, 0xff, 0xff, 0xff}},
		{"mov [rbp-16], rax", encodeStoreSlot(-16, RAX), []byte{0x48, 0x89, 0x85, 0xf0, 0xff, 0xff, 0xff}},
		{"mov [rbp-8], r9", encodeStoreSlot(-8, R9), []byte{0x4c, 0x89, 0x8d, 0xf8, 0xff, 0xff, 0xff}},
		{"call r11", encodeCallReg(R11), []byte{0x41, 0xff, 0xd3}},
		{"mov eax, eax", zeroExtend(RAX, 32), []byte{0x89, 0xc0}},
		{"movzx eax, ax", zeroExtend(RAX, 16), []byte{0x0f, 0xb7, 0xc0}},
		{"and eax, 1", zeroExtend(RAX, 1), []byte{0x83, 0xe0, 0x01}},
		{"movsxd rax, eax", signExtend(RAX, 32), []byte{0x48, 0x63, 0xc0}},
		{"movsx rcx, cl", signExtend(RCX, 8), []byte{0x48, 0x0f, 0xbe, 0xc9}},
		{"mov word [rax], cx", encodeStoreIndirect(RAX, RCX, 2), []byte{0x66, 0x89, 0x08}},
		{"movzx eax, byte [rax]", encodeLoadIndirect(RAX, 1), []byte{0x0f, 0xb6, 0x00}},
		{"cmove rax, rcx", encodeCmove(RAX, RCX), []byte{0x48, 0x0f, 0x44, 0xc1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
			inst, err := x86asm.Decode(tc.got, 64)
			require.NoError(t, err)
			assert.Equal(t, len(tc.got), inst.Len)
		})
	}
}

func TestGenerateDecodes(t *testing.T) {
	f := buildSum(t)
	obj, err := NewGenerator().Generate(f, 0x1000)
	require.NoError(t, err)
	code, err := Compile(obj)
	require.NoError(t, err)

	insts, err := Instructions(code.Data)
	require.NoError(t, err, Disassemble(code.Data, obj.Base))
	require.NotEmpty(t, insts)
	assert.Equal(t, x86asm.PUSH, insts[0].Op)
	assert.Equal(t, x86asm.RET, insts[len(insts)-1].Op)

	var jumps int
	for _, in := range insts {
		if in.Op == x86asm.JMP || in.Op == x86asm.JE {
			jumps++
		}
	}
	// entry->loop, loop->loop, loop->exit and the je around the true edge
	assert.Equal(t, 4, jumps)
	assert.Contains(t, obj.Blocks, "loop")
	assert.True(t, strings.Contains(Disassemble(code.Data, obj.Base), "ret"))
}

func TestGenerateBranchTargets(t *testing.T) {
	f := buildSum(t)
	obj, err := NewGenerator().Generate(f, 0)
	require.NoError(t, err)
	code := obj.Sections[0].Data

	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		require.NoError(t, err)
		if inst.Op == x86asm.JMP {
			rel, ok := inst.Args[0].(x86asm.Rel)
			require.True(t, ok)
			target := offset + inst.Len + int(rel)
			found := false
			for _, off := range obj.Blocks {
				found = found || off == target
			}
			assert.True(t, found, "jmp at +0x%x lands at +0x%x", offset, target)
		}
		offset += inst.Len
	}
}

func TestGenerateCall(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", ir.I32, ir.Ptr)
	b := ir.NewBuilder(f)
	b.SetInsertPoint(f.NewBlock("entry"))
	h := b.Load(ir.Ptr, b.FieldPtr(f.Params[0], 8))
	r := b.Call(ir.I32, h, b.Int32(0x1234), b.Int32(4))
	b.Ret(r)

	obj, err := NewGenerator().Generate(f, 0)
	require.NoError(t, err)
	listing := Disassemble(obj.Sections[0].Data, 0)
	assert.Contains(t, listing, "call r11")

	g := m.NewFunction("g", ir.Void, ir.Ptr)
	b = ir.NewBuilder(g)
	b.SetInsertPoint(g.NewBlock("entry"))
	args := make([]*ir.Value, MaxCallArgs+1)
	for i := range args {
		args[i] = b.Int32(uint32(i))
	}
	b.Call(ir.Void, g.Params[0], args...)
	b.Ret(nil)
	_, err = NewGenerator().Generate(g, 0)
	assert.ErrorIs(t, err, lifterrors.ErrUnsupported)
}

func TestCompileSections(t *testing.T) {
	text := Section{Name: ".text", Kind: SectionCode, Data: []byte{X86_OP_RET}}
	data := Section{Name: ".data", Kind: SectionData}

	_, err := Compile(&Object{})
	assert.ErrorIs(t, err, lifterrors.ErrNoCodeSection)
	_, err = Compile(&Object{Sections: []Section{text, text}})
	assert.ErrorIs(t, err, lifterrors.ErrMultipleCodeSections)
	_, err = Compile(&Object{Sections: []Section{text, data}})
	assert.ErrorIs(t, err, lifterrors.ErrDataSection)

	s, err := Compile(&Object{Sections: []Section{text}})
	require.NoError(t, err)
	assert.Equal(t, ".text", s.Name)
}

func TestMap(t *testing.T) {
	code := []byte{0x48, 0x89, 0xf8, X86_OP_RET} // mov rax, rdi; ret
	m, err := Map(code)
	require.NoError(t, err)
	defer m.Close()
	assert.NotZero(t, m.Addr())
	assert.Equal(t, code, m.Bytes())
	assert.Equal(t, len(code), m.Size())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = Map(nil)
	assert.Error(t, err)
}
