package ir

import (
	"fmt"
)

// Value is both an SSA value and the instruction that defines it.
// Constants and parameters have no block.
type Value struct {
	ID    int
	Op    Op
	Type  Type
	Args  []*Value
	Aux   int64 // constant bits, parameter index or field offset
	Pred  Predicate
	Name  string
	Tags  Tags
	Block *Block

	// Succs holds the destinations of Br (one) and CondBr (true, false).
	Succs []*Block

	// Incoming holds the inputs of a phi, one per predecessor edge.
	Incoming []PhiEdge
}

// PhiEdge is one input of a phi node.
type PhiEdge struct {
	Pred  *Block
	Value *Value
}

// AddIncoming appends an input to the phi v. It is legal to call this after v
// has been used by other instructions.
func (v *Value) AddIncoming(pred *Block, val *Value) {
	if v.Op != OpPhi {
		panic(fmt.Sprintf("ir: AddIncoming on %s", v.Op))
	}
	if val.Type != v.Type {
		panic(fmt.Sprintf("ir: phi %s of type %s given %s input", v.Ref(), v.Type, val.Type))
	}
	v.Incoming = append(v.Incoming, PhiEdge{Pred: pred, Value: val})
}

// IncomingFor returns the phi input for an edge from pred.
func (v *Value) IncomingFor(pred *Block) (*Value, bool) {
	for _, e := range v.Incoming {
		if e.Pred == pred {
			return e.Value, true
		}
	}
	return nil, false
}

// Const returns the bits of a constant value.
func (v *Value) Const() uint64 {
	return uint64(v.Aux)
}

func (v *Value) IsConst() bool { return v.Op == OpConst }

// Ref is the printed name of v as an operand.
func (v *Value) Ref() string {
	switch v.Op {
	case OpConst:
		if v.Type == I1 {
			if v.Aux != 0 {
				return "true"
			}
			return "false"
		}
		return fmt.Sprintf("%d", v.Type.SignExtend(uint64(v.Aux)))
	case OpParam:
		if v.Name != "" {
			return "%" + v.Name
		}
		return fmt.Sprintf("%%p%d", v.Aux)
	}
	if v.Name != "" {
		return fmt.Sprintf("%%%s.%d", v.Name, v.ID)
	}
	return fmt.Sprintf("%%%d", v.ID)
}

// Block is a basic block: phis first, then ordinary instructions, then one terminator.
type Block struct {
	ID     int
	Name   string
	Func   *Function
	Instrs []*Value
	Preds  []*Block
}

// Terminator returns the last instruction of b if it ends the block.
func (b *Block) Terminator() *Value {
	if n := len(b.Instrs); n > 0 && b.Instrs[n-1].Op.IsTerminator() {
		return b.Instrs[n-1]
	}
	return nil
}

func (b *Block) Terminated() bool { return b.Terminator() != nil }

// Phis returns the phi nodes at the head of b.
func (b *Block) Phis() []*Value {
	n := 0
	for n < len(b.Instrs) && b.Instrs[n].Op == OpPhi {
		n++
	}
	return b.Instrs[:n]
}

// Succs returns the successor blocks of b.
func (b *Block) Succs() []*Block {
	if t := b.Terminator(); t != nil {
		return t.Succs
	}
	return nil
}

func (b *Block) String() string {
	return b.Name
}

func (b *Block) indexOf(v *Value) int {
	for i, x := range b.Instrs {
		if x == v {
			return i
		}
	}
	return -1
}

// Remove deletes v from b. Uses of v must already be gone.
func (b *Block) Remove(v *Value) {
	if i := b.indexOf(v); i >= 0 {
		b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
		v.Block = nil
	}
}

// Function is a single IR function. Params are pointer or integer arguments.
type Function struct {
	Name   string
	Ret    Type
	Params []*Value
	Blocks []*Block
	Module *Module

	nextValue int
	nextBlock int
	names     map[string]int
}

// NewFunction creates a function and adds it to m.
func (m *Module) NewFunction(name string, ret Type, params ...Type) *Function {
	f := &Function{Name: name, Ret: ret, Module: m, names: make(map[string]int)}
	for i, t := range params {
		p := f.newValue(OpParam, t)
		p.Aux = int64(i)
		f.Params = append(f.Params, p)
	}
	m.Functions = append(m.Functions, f)
	return f
}

func (f *Function) newValue(op Op, t Type) *Value {
	v := &Value{ID: f.nextValue, Op: op, Type: t}
	f.nextValue++
	return v
}

// NumValues is an upper bound on value IDs in f.
func (f *Function) NumValues() int { return f.nextValue }

// NewBlock appends an empty block. Names are made unique with a numeric suffix.
func (f *Function) NewBlock(name string) *Block {
	if name == "" {
		name = "bb"
	}
	if n, ok := f.names[name]; ok {
		f.names[name] = n + 1
		name = fmt.Sprintf("%s.%d", name, n+1)
	} else {
		f.names[name] = 0
	}
	b := &Block{ID: f.nextBlock, Name: name, Func: f}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the first block of f.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Const creates a constant of type t.
func (f *Function) Const(t Type, bits uint64) *Value {
	v := f.newValue(OpConst, t)
	v.Aux = int64(t.Mask(bits))
	return v
}

// Values calls fn for every instruction of f in block order.
func (f *Function) Values(fn func(*Value)) {
	for _, b := range f.Blocks {
		for _, v := range b.Instrs {
			fn(v)
		}
	}
}

// ReplaceAllUsesWith rewrites every use of old in f to use repl.
func (f *Function) ReplaceAllUsesWith(old, repl *Value) {
	f.Values(func(v *Value) {
		for i, a := range v.Args {
			if a == old {
				v.Args[i] = repl
			}
		}
		for i, e := range v.Incoming {
			if e.Value == old {
				v.Incoming[i].Value = repl
			}
		}
	})
}

// Module is a collection of functions.
type Module struct {
	Name      string
	Functions []*Function
}

func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Function returns the function called name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
