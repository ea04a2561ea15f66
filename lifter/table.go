package lifter

import (
	"golang.org/x/exp/slices"

	"github.com/colorfulnotion/armlift/arm"
)

// Handler emits the IR of one instruction and requests its continuations.
type Handler func(c *Context, inst *arm.Instruction) error

// Table maps opcodes to their translators.
type Table map[arm.Opcode]Handler

func (t Table) Lookup(op arm.Opcode) (Handler, bool) {
	h, ok := t[op]
	return h, ok
}

func (t Table) Register(op arm.Opcode, h Handler) {
	t[op] = h
}

// Opcodes lists the opcodes that have a translator, in opcode order.
func (t Table) Opcodes() []arm.Opcode {
	ops := make([]arm.Opcode, 0, len(t))
	for op := range t {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// DefaultTable returns a fresh table with every Thumb and A32 translator.
func DefaultTable() Table {
	t := make(Table, len(thumbHandlers)+len(a32Handlers))
	for op, h := range thumbHandlers {
		t[op] = h
	}
	for op, h := range a32Handlers {
		t[op] = predicated(h)
	}
	for op, h := range a32Branches {
		t[op] = h
	}
	return t
}
