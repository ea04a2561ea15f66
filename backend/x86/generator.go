package x86

import (
	"fmt"

	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
	"github.com/colorfulnotion/armlift/log"
)

// Generator lowers IR functions to x86-64 machine code following the
// System V calling convention. Every non-constant value lives in an 8-byte
// stack slot below rbp, kept zero-extended to its type's width. Phi inputs
// are copied on each edge through a scratch slot per phi so that phis of one
// block are assigned in parallel.
type Generator struct{}

func NewGenerator() *Generator { return &Generator{} }

type fixup struct {
	pos   int // offset of the rel32 field
	block *ir.Block
}

type genState struct {
	fn      *ir.Function
	code    []byte
	slots   map[*ir.Value]int32
	scratch map[*ir.Value]int32
	blocks  map[*ir.Block]int
	fixups  []fixup
}

func (g *genState) emit(b ...[]byte) {
	for _, x := range b {
		g.code = append(g.code, x...)
	}
}

// Generate compiles f into an object whose code section is meant to be
// mapped at base.
func (gen *Generator) Generate(f *ir.Function, base uint64) (*Object, error) {
	if len(f.Params) > MaxCallArgs {
		return nil, fmt.Errorf("%w: %d parameters", lifterrors.ErrUnsupported, len(f.Params))
	}
	g := &genState{
		fn:      f,
		slots:   make(map[*ir.Value]int32),
		scratch: make(map[*ir.Value]int32),
		blocks:  make(map[*ir.Block]int),
	}
	next := int32(0)
	alloc := func() int32 {
		next -= 8
		return next
	}
	for _, p := range f.Params {
		g.slots[p] = alloc()
	}
	for _, b := range f.Blocks {
		for _, v := range b.Instrs {
			if v.Type != ir.Void {
				g.slots[v] = alloc()
			}
			if v.Op == ir.OpPhi {
				g.scratch[v] = alloc()
			}
		}
	}
	frame := uint32(-next+15) &^ 15

	g.emit(encodePrologue(frame))
	for i, p := range f.Params {
		g.emit(encodeStoreSlot(g.slots[p], argRegs[i]))
	}
	for _, b := range f.Blocks {
		g.blocks[b] = len(g.code)
		for _, v := range b.Instrs {
			if err := g.lower(v); err != nil {
				return nil, fmt.Errorf("x86: %s in %s: %w", v.Ref(), b.Name, err)
			}
		}
	}
	for _, fx := range g.fixups {
		target, ok := g.blocks[fx.block]
		if !ok {
			return nil, fmt.Errorf("x86: branch to unknown block %s", fx.block.Name)
		}
		copy(g.code[fx.pos:], encodeU32(uint32(int32(target-(fx.pos+4)))))
	}

	names := make(map[string]int, len(g.blocks))
	for b, off := range g.blocks {
		names[b.Name] = off
	}
	log.Debug(log.Backend, "generated function", "name", f.Name, "bytes", len(g.code), "frame", frame, "blocks", len(f.Blocks))
	return &Object{
		Base:     base,
		Sections: []Section{{Name: ".text", Kind: SectionCode, Data: g.code}},
		Blocks:   names,
	}, nil
}

// load places v in r, zero-extended.
func (g *genState) load(r Reg, v *ir.Value) error {
	if v.IsConst() {
		g.emit(encodeMovImm(r, v.Type.Mask(v.Const())))
		return nil
	}
	disp, ok := g.slots[v]
	if !ok {
		return fmt.Errorf("operand %s has no slot", v.Ref())
	}
	g.emit(encodeLoadSlot(r, disp))
	return nil
}

// result normalizes rax to v's width and stores it in v's slot.
func (g *genState) result(v *ir.Value) {
	g.emit(zeroExtend(RAX, v.Type.Bits()), encodeStoreSlot(g.slots[v], RAX))
}

func (g *genState) load2(x, y *ir.Value) error {
	if err := g.load(RAX, x); err != nil {
		return err
	}
	return g.load(RCX, y)
}

var aluOps = map[ir.Op]byte{
	ir.OpAdd: X86_OP_ADD_RM_R,
	ir.OpSub: X86_OP_SUB_RM_R,
	ir.OpAnd: X86_OP_AND_RM_R,
	ir.OpOr:  X86_OP_OR_RM_R,
	ir.OpXor: X86_OP_XOR_RM_R,
}

var shiftOps = map[ir.Op]byte{
	ir.OpShl:  X86_REG_SHL,
	ir.OpLShr: X86_REG_SHR,
	ir.OpAShr: X86_REG_SAR,
}

var setccOps = map[ir.Predicate]byte{
	ir.PredEQ:  X86_OP2_SETE,
	ir.PredNE:  X86_OP2_SETNE,
	ir.PredULT: X86_OP2_SETB,
	ir.PredULE: X86_OP2_SETBE,
	ir.PredUGT: X86_OP2_SETA,
	ir.PredUGE: X86_OP2_SETAE,
	ir.PredSLT: X86_OP2_SETL,
	ir.PredSLE: X86_OP2_SETLE,
	ir.PredSGT: X86_OP2_SETG,
	ir.PredSGE: X86_OP2_SETGE,
}

func (g *genState) lower(v *ir.Value) error {
	switch v.Op {
	case ir.OpPhi:
		// filled in by the edge copies of each predecessor
		return nil
	case ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor:
		if err := g.load2(v.Args[0], v.Args[1]); err != nil {
			return err
		}
		g.emit(encodeALU(aluOps[v.Op], RAX, RCX))
		g.result(v)
	case ir.OpShl, ir.OpLShr, ir.OpAShr:
		if err := g.load2(v.Args[0], v.Args[1]); err != nil {
			return err
		}
		if v.Op == ir.OpAShr {
			g.emit(signExtend(RAX, v.Type.Bits()))
		}
		g.emit(encodeShiftCL(shiftOps[v.Op], RAX))
		g.result(v)
	case ir.OpNot:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		g.emit(encodeNot(RAX))
		g.result(v)
	case ir.OpICmp:
		if err := g.load2(v.Args[0], v.Args[1]); err != nil {
			return err
		}
		if v.Pred.Signed() {
			bits := v.Args[0].Type.Bits()
			g.emit(signExtend(RAX, bits), signExtend(RCX, bits))
		}
		g.emit(encodeALU(X86_OP_CMP_RM_R, RAX, RCX), encodeSetcc(setccOps[v.Pred]))
		g.result(v)
	case ir.OpZExt, ir.OpTrunc, ir.OpIntToPtr:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		g.result(v)
	case ir.OpSExt:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		g.emit(signExtend(RAX, v.Args[0].Type.Bits()))
		g.result(v)
	case ir.OpSelect:
		if err := g.load2(v.Args[1], v.Args[2]); err != nil {
			return err
		}
		if err := g.load(RDX, v.Args[0]); err != nil {
			return err
		}
		g.emit(encodeTest32(RDX), encodeCmove(RAX, RCX))
		g.result(v)
	case ir.OpFieldPtr:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		g.emit(encodeAddImm32(RAX, int32(v.Aux)))
		g.result(v)
	case ir.OpLoad:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		g.emit(encodeLoadIndirect(RAX, v.Type.Bytes()))
		g.result(v)
	case ir.OpStore:
		if err := g.load2(v.Args[0], v.Args[1]); err != nil {
			return err
		}
		g.emit(encodeStoreIndirect(RAX, RCX, v.Args[1].Type.Bytes()))
	case ir.OpCall:
		return g.call(v)
	case ir.OpBr:
		if err := g.edge(v.Block, v.Succs[0]); err != nil {
			return err
		}
		g.jump(v.Succs[0])
	case ir.OpCondBr:
		if err := g.load(RAX, v.Args[0]); err != nil {
			return err
		}
		// test eax, eax; je false
		g.emit(encodeTest32(RAX), []byte{X86_PREFIX_0F, X86_OP2_JE})
		pos := len(g.code)
		g.emit(encodeU32(0))
		if err := g.edge(v.Block, v.Succs[0]); err != nil {
			return err
		}
		g.jump(v.Succs[0])
		copy(g.code[pos:], encodeU32(uint32(len(g.code)-(pos+4))))
		if err := g.edge(v.Block, v.Succs[1]); err != nil {
			return err
		}
		g.jump(v.Succs[1])
	case ir.OpRet:
		if len(v.Args) == 1 {
			if err := g.load(RAX, v.Args[0]); err != nil {
				return err
			}
		}
		g.emit(encodeEpilogue())
	case ir.OpConst, ir.OpParam:
		return nil
	default:
		return fmt.Errorf("%w: %s", lifterrors.ErrUnsupported, v.Op)
	}
	return nil
}

func (g *genState) call(v *ir.Value) error {
	args := v.Args[1:]
	if len(args) > MaxCallArgs {
		return fmt.Errorf("%w: call with %d arguments", lifterrors.ErrUnsupported, len(args))
	}
	if err := g.load(R11, v.Args[0]); err != nil {
		return err
	}
	for i, a := range args {
		if err := g.load(argRegs[i], a); err != nil {
			return err
		}
	}
	g.emit(encodeCallReg(R11))
	if v.Type != ir.Void {
		g.result(v)
	}
	return nil
}

// edge copies the incoming values of succ's phis for the edge from pred.
func (g *genState) edge(pred, succ *ir.Block) error {
	phis := succ.Phis()
	for _, phi := range phis {
		in, ok := phi.IncomingFor(pred)
		if !ok {
			return fmt.Errorf("phi %s has no input from %s", phi.Ref(), pred.Name)
		}
		if err := g.load(RAX, in); err != nil {
			return err
		}
		g.emit(encodeStoreSlot(g.scratch[phi], RAX))
	}
	for _, phi := range phis {
		g.emit(encodeLoadSlot(RAX, g.scratch[phi]), encodeStoreSlot(g.slots[phi], RAX))
	}
	return nil
}

func (g *genState) jump(target *ir.Block) {
	g.emit([]byte{X86_OP_JMP_REL32})
	g.fixups = append(g.fixups, fixup{pos: len(g.code), block: target})
	g.emit(encodeU32(0))
}
