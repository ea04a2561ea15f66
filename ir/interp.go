package ir

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrStepLimit     = errors.New("ir: step limit exceeded")
	ErrUnknownCallee = errors.New("ir: call to unknown address")
)

const pageSize = 4096

// SparseMemory is a little-endian, page-granular flat address space.
type SparseMemory struct {
	pages map[uint64]*[pageSize]byte
}

func NewSparseMemory() *SparseMemory {
	return &SparseMemory{pages: make(map[uint64]*[pageSize]byte)}
}

func (m *SparseMemory) page(addr uint64) *[pageSize]byte {
	base := addr &^ (pageSize - 1)
	p, ok := m.pages[base]
	if !ok {
		p = new([pageSize]byte)
		m.pages[base] = p
	}
	return p
}

func (m *SparseMemory) LoadByte(addr uint64) byte {
	return m.page(addr)[addr%pageSize]
}

func (m *SparseMemory) StoreByte(addr uint64, b byte) {
	m.page(addr)[addr%pageSize] = b
}

// Read returns size bytes at addr as a little-endian integer.
func (m *SparseMemory) Read(addr uint64, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(m.LoadByte(addr+uint64(i)))
	}
	return v
}

func (m *SparseMemory) Write(addr uint64, size int, v uint64) {
	for i := 0; i < size; i++ {
		m.StoreByte(addr+uint64(i), byte(v>>(8*i)))
	}
}

func (m *SparseMemory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.StoreByte(addr+uint64(i), b)
	}
}

func (m *SparseMemory) ReadBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = m.LoadByte(addr + uint64(i))
	}
	return out
}

// Uint32s reads n consecutive little-endian words.
func (m *SparseMemory) Uint32s(addr uint64, n int) []uint32 {
	raw := m.ReadBytes(addr, 4*n)
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return out
}

// ExternFunc services a call made by interpreted code.
type ExternFunc func(args []uint64) uint64

// Interpreter executes IR functions directly. Pointers are addresses in Mem;
// calls are dispatched on the callee address through Externs.
type Interpreter struct {
	Mem      *SparseMemory
	Externs  map[uint64]ExternFunc
	MaxSteps int

	Steps int
}

func NewInterpreter(mem *SparseMemory) *Interpreter {
	if mem == nil {
		mem = NewSparseMemory()
	}
	return &Interpreter{Mem: mem, Externs: make(map[uint64]ExternFunc), MaxSteps: 1 << 20}
}

type frame struct {
	vals []uint64
	args []uint64
}

func (fr *frame) get(v *Value) uint64 {
	switch v.Op {
	case OpConst:
		return uint64(v.Aux)
	case OpParam:
		return fr.args[v.Aux]
	}
	return fr.vals[v.ID]
}

// Run executes f with the given arguments and returns its result (0 for void).
func (in *Interpreter) Run(f *Function, args ...uint64) (uint64, error) {
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("ir: %s takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}
	fr := &frame{vals: make([]uint64, f.NumValues()), args: args}
	var prev *Block
	b := f.Entry()
	if b == nil {
		return 0, fmt.Errorf("ir: %s has no blocks", f.Name)
	}
	for {
		phis := b.Phis()
		if len(phis) > 0 {
			// Phis read their inputs simultaneously.
			next := make([]uint64, len(phis))
			for i, p := range phis {
				in, ok := p.IncomingFor(prev)
				if !ok {
					return 0, fmt.Errorf("ir: phi %s in %s has no input for %v", p.Ref(), b.Name, prev)
				}
				next[i] = fr.get(in)
			}
			for i, p := range phis {
				fr.vals[p.ID] = next[i]
			}
		}
		for _, v := range b.Instrs[len(phis):] {
			in.Steps++
			if in.MaxSteps > 0 && in.Steps > in.MaxSteps {
				return 0, ErrStepLimit
			}
			switch v.Op {
			case OpBr:
				prev, b = b, v.Succs[0]
			case OpCondBr:
				if fr.get(v.Args[0])&1 != 0 {
					prev, b = b, v.Succs[0]
				} else {
					prev, b = b, v.Succs[1]
				}
			case OpRet:
				if len(v.Args) == 0 {
					return 0, nil
				}
				return fr.get(v.Args[0]), nil
			default:
				r, err := in.eval(fr, v)
				if err != nil {
					return 0, fmt.Errorf("%s: %s: %w", b.Name, v.LongString(), err)
				}
				fr.vals[v.ID] = v.Type.Mask(r)
				continue
			}
			break
		}
	}
}

func (in *Interpreter) eval(fr *frame, v *Value) (uint64, error) {
	arg := func(i int) uint64 { return fr.get(v.Args[i]) }
	switch v.Op {
	case OpAdd:
		return arg(0) + arg(1), nil
	case OpSub:
		return arg(0) - arg(1), nil
	case OpAnd:
		return arg(0) & arg(1), nil
	case OpOr:
		return arg(0) | arg(1), nil
	case OpXor:
		return arg(0) ^ arg(1), nil
	case OpShl:
		return arg(0) << arg(1), nil
	case OpLShr:
		return arg(0) >> arg(1), nil
	case OpAShr:
		return uint64(v.Type.SignExtend(arg(0)) >> arg(1)), nil
	case OpNot:
		return ^arg(0), nil
	case OpICmp:
		if compare(v.Pred, v.Args[0].Type, arg(0), arg(1)) {
			return 1, nil
		}
		return 0, nil
	case OpZExt, OpTrunc, OpIntToPtr:
		return arg(0), nil
	case OpSExt:
		return uint64(v.Args[0].Type.SignExtend(arg(0))), nil
	case OpSelect:
		if arg(0)&1 != 0 {
			return arg(1), nil
		}
		return arg(2), nil
	case OpFieldPtr:
		return arg(0) + uint64(v.Aux), nil
	case OpLoad:
		return in.Mem.Read(arg(0), v.Type.Bytes()), nil
	case OpStore:
		val := v.Args[1]
		in.Mem.Write(arg(0), val.Type.Bytes(), fr.get(val))
		return 0, nil
	case OpCall:
		addr := arg(0)
		fn, ok := in.Externs[addr]
		if !ok {
			return 0, fmt.Errorf("%w 0x%x", ErrUnknownCallee, addr)
		}
		args := make([]uint64, len(v.Args)-1)
		for i := range args {
			args[i] = arg(i + 1)
		}
		return fn(args), nil
	}
	return 0, fmt.Errorf("ir: cannot interpret %s", v.Op)
}

// compare evaluates an integer predicate on operands of type t.
func compare(p Predicate, t Type, x, y uint64) bool {
	sx, sy := t.SignExtend(x), t.SignExtend(y)
	switch p {
	case PredEQ:
		return x == y
	case PredNE:
		return x != y
	case PredULT:
		return x < y
	case PredULE:
		return x <= y
	case PredUGT:
		return x > y
	case PredUGE:
		return x >= y
	case PredSLT:
		return sx < sy
	case PredSLE:
		return sx <= sy
	case PredSGT:
		return sx > sy
	case PredSGE:
		return sx >= sy
	}
	return false
}
