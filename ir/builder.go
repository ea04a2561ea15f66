package ir

import "fmt"

// Builder appends instructions to a block, or inserts them before an
// existing instruction. A block accepts exactly one terminator: appending
// anything after it panics.
type Builder struct {
	fn     *Function
	block  *Block
	before *Value
}

func NewBuilder(f *Function) *Builder {
	return &Builder{fn: f}
}

func (b *Builder) Func() *Function { return b.fn }
func (b *Builder) Block() *Block   { return b.block }

// SetInsertPoint makes b append to the end of block.
func (b *Builder) SetInsertPoint(block *Block) {
	b.block = block
	b.before = nil
}

// SetInsertBefore makes b insert new instructions immediately before v.
func (b *Builder) SetInsertBefore(v *Value) {
	if v.Block == nil {
		panic(fmt.Sprintf("ir: %s is not in a block", v.Ref()))
	}
	b.block = v.Block
	b.before = v
}

func (b *Builder) insert(v *Value) *Value {
	if b.block == nil {
		panic("ir: builder has no insert point")
	}
	blk := b.block
	v.Block = blk
	if b.before != nil {
		if v.Op.IsTerminator() {
			panic(fmt.Sprintf("ir: cannot insert terminator %s mid-block in %s", v.Op, blk.Name))
		}
		i := blk.indexOf(b.before)
		if i < 0 {
			panic(fmt.Sprintf("ir: insert point %s left block %s", b.before.Ref(), blk.Name))
		}
		blk.Instrs = append(blk.Instrs, nil)
		copy(blk.Instrs[i+1:], blk.Instrs[i:])
		blk.Instrs[i] = v
		return v
	}
	if blk.Terminated() {
		panic(fmt.Sprintf("ir: block %s already has a terminator, cannot append %s", blk.Name, v.Op))
	}
	blk.Instrs = append(blk.Instrs, v)
	return v
}

func (b *Builder) value(op Op, t Type, args ...*Value) *Value {
	v := b.fn.newValue(op, t)
	v.Args = args
	return v
}

func (b *Builder) Const(t Type, bits uint64) *Value {
	return b.fn.Const(t, bits)
}

func (b *Builder) Int32(x uint32) *Value { return b.fn.Const(I32, uint64(x)) }

func (b *Builder) Bool(x bool) *Value {
	if x {
		return b.fn.Const(I1, 1)
	}
	return b.fn.Const(I1, 0)
}

// Phi adds an empty phi after the existing phis of the current block.
func (b *Builder) Phi(t Type, name string) *Value {
	blk := b.block
	if blk == nil {
		panic("ir: builder has no insert point")
	}
	v := b.value(OpPhi, t)
	v.Name = name
	v.Block = blk
	n := len(blk.Phis())
	blk.Instrs = append(blk.Instrs, nil)
	copy(blk.Instrs[n+1:], blk.Instrs[n:])
	blk.Instrs[n] = v
	return v
}

func (b *Builder) binary(op Op, x, y *Value) *Value {
	if x.Type != y.Type {
		panic(fmt.Sprintf("ir: %s operand types differ: %s vs %s", op, x.Type, y.Type))
	}
	return b.insert(b.value(op, x.Type, x, y))
}

func (b *Builder) Add(x, y *Value) *Value  { return b.binary(OpAdd, x, y) }
func (b *Builder) Sub(x, y *Value) *Value  { return b.binary(OpSub, x, y) }
func (b *Builder) And(x, y *Value) *Value  { return b.binary(OpAnd, x, y) }
func (b *Builder) Or(x, y *Value) *Value   { return b.binary(OpOr, x, y) }
func (b *Builder) Xor(x, y *Value) *Value  { return b.binary(OpXor, x, y) }
func (b *Builder) Shl(x, y *Value) *Value  { return b.binary(OpShl, x, y) }
func (b *Builder) LShr(x, y *Value) *Value { return b.binary(OpLShr, x, y) }
func (b *Builder) AShr(x, y *Value) *Value { return b.binary(OpAShr, x, y) }

func (b *Builder) Not(x *Value) *Value {
	return b.insert(b.value(OpNot, x.Type, x))
}

func (b *Builder) ICmp(p Predicate, x, y *Value) *Value {
	if x.Type != y.Type {
		panic(fmt.Sprintf("ir: icmp operand types differ: %s vs %s", x.Type, y.Type))
	}
	v := b.value(OpICmp, I1, x, y)
	v.Pred = p
	return b.insert(v)
}

func (b *Builder) ZExt(x *Value, t Type) *Value {
	if x.Type == t {
		return x
	}
	return b.insert(b.value(OpZExt, t, x))
}

func (b *Builder) SExt(x *Value, t Type) *Value {
	if x.Type == t {
		return x
	}
	return b.insert(b.value(OpSExt, t, x))
}

func (b *Builder) Trunc(x *Value, t Type) *Value {
	if x.Type == t {
		return x
	}
	return b.insert(b.value(OpTrunc, t, x))
}

func (b *Builder) Select(c, x, y *Value) *Value {
	if c.Type != I1 || x.Type != y.Type {
		panic(fmt.Sprintf("ir: bad select operands %s ? %s : %s", c.Type, x.Type, y.Type))
	}
	return b.insert(b.value(OpSelect, x.Type, c, x, y))
}

// IntToPtr zero-extends an integer into a pointer.
func (b *Builder) IntToPtr(x *Value) *Value {
	return b.insert(b.value(OpIntToPtr, Ptr, x))
}

// FieldPtr returns base+offset.
func (b *Builder) FieldPtr(base *Value, offset int64) *Value {
	v := b.value(OpFieldPtr, Ptr, base)
	v.Aux = offset
	return b.insert(v)
}

func (b *Builder) Load(t Type, ptr *Value) *Value {
	return b.insert(b.value(OpLoad, t, ptr))
}

func (b *Builder) Store(val, ptr *Value) *Value {
	return b.insert(b.value(OpStore, Void, ptr, val))
}

// Call calls the function whose address is callee.
func (b *Builder) Call(ret Type, callee *Value, args ...*Value) *Value {
	return b.insert(b.value(OpCall, ret, append([]*Value{callee}, args...)...))
}

func (b *Builder) Br(dest *Block) *Value {
	v := b.value(OpBr, Void)
	v.Succs = []*Block{dest}
	b.insert(v)
	dest.Preds = append(dest.Preds, v.Block)
	return v
}

func (b *Builder) CondBr(c *Value, t, f *Block) *Value {
	if c.Type != I1 {
		panic(fmt.Sprintf("ir: condbr on %s", c.Type))
	}
	v := b.value(OpCondBr, Void, c)
	v.Succs = []*Block{t, f}
	b.insert(v)
	t.Preds = append(t.Preds, v.Block)
	f.Preds = append(f.Preds, v.Block)
	return v
}

// Ret returns x, or nothing when x is nil.
func (b *Builder) Ret(x *Value) *Value {
	if x == nil {
		return b.insert(b.value(OpRet, Void))
	}
	return b.insert(b.value(OpRet, Void, x))
}

// Named gives v a debug name unless it already has one.
func Named(v *Value, name string) *Value {
	if v.Op != OpConst && v.Name == "" {
		v.Name = name
	}
	return v
}
