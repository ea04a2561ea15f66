package lifter

import (
	"fmt"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
)

// Context is what a translator sees while handling one instruction: the unit
// being translated, the current environment and a builder positioned in the
// block that receives the instruction's IR.
type Context struct {
	t    *Translator
	Unit *Unit
	Env  Env
	B    *ir.Builder
	inst *arm.Instruction
}

func (c *Context) Block() *ir.Block { return c.B.Block() }

func (c *Context) Const(x uint32) *ir.Value { return c.B.Int32(x) }

// Code returns the code memory being translated.
func (c *Context) Code() arm.CodeReader { return c.t.cfg.Code }

// Reg reads a core register; pc reads as the address of the instruction plus
// the pipeline offset of its mode.
func (c *Context) Reg(r arm.Reg) *ir.Value {
	if r == arm.RegPC {
		return c.Const(c.inst.PC())
	}
	return c.Env.Get(arm.RegSlot(r))
}

// SetReg writes a core register other than pc.
func (c *Context) SetReg(r arm.Reg, v *ir.Value) {
	c.Env.Set(arm.RegSlot(r), ir.Named(v, r.String()))
}

// SetNZ updates N and Z from res.
func (c *Context) SetNZ(res *ir.Value) {
	c.Env.Set(arm.FlagN, ir.Named(isNegative(c.B, res), "n"))
	c.Env.Set(arm.FlagZ, ir.Named(isZero(c.B, res), "z"))
}

// SetAddFlags sets NZCV for res = op1 + op2.
func (c *Context) SetAddFlags(op1, op2, res *ir.Value) {
	c.SetNZ(res)
	c.Env.Set(arm.FlagC, ir.Named(addCarry(c.B, op1, res), "c"))
	c.Env.Set(arm.FlagV, ir.Named(addOverflow(c.B, op1, op2, res), "v"))
}

// SetSubFlags sets NZCV for res = lhs - rhs.
func (c *Context) SetSubFlags(lhs, rhs, res *ir.Value) {
	c.SetNZ(res)
	c.Env.Set(arm.FlagC, ir.Named(subCarry(c.B, lhs, rhs), "c"))
	c.Env.Set(arm.FlagV, ir.Named(subOverflow(c.B, lhs, rhs, res), "v"))
}

// Condition evaluates cond on the current flags.
func (c *Context) Condition(cond arm.Cond) *ir.Value {
	return condition(c.B, cond, &c.Env)
}

// guestPtr turns a guest address into a pointer.
func (c *Context) guestPtr(addr *ir.Value) *ir.Value {
	return c.B.IntToPtr(addr)
}

// LoadMem reads guest memory; the access is tagged for instrumentation.
func (c *Context) LoadMem(t ir.Type, addr *ir.Value) *ir.Value {
	v := c.B.Load(t, c.guestPtr(addr))
	v.Tags |= ir.TagMemoryAccess
	return v
}

// StoreMem writes the low bits of v, as type t, to guest memory.
func (c *Context) StoreMem(t ir.Type, v, addr *ir.Value) {
	st := c.B.Store(c.B.Trunc(v, t), c.guestPtr(addr))
	st.Tags |= ir.TagMemoryAccess
}

// ReadLiteral reads a word of code memory at translation time.
func (c *Context) ReadLiteral(addr uint32) (uint32, error) {
	w, err := arm.ReadU32(c.t.cfg.Code, addr)
	if err != nil {
		return 0, c.Precondition(fmt.Sprintf("literal at 0x%08x unreadable: %v", addr, err))
	}
	return w, nil
}

// Continue ends the instruction with a fall-through or unconditional edge to addr.
func (c *Context) Continue(addr uint32) error {
	id, err := c.t.cache.FindOrCreate(c.Unit.Func, addr, c.Unit.Mode)
	if err != nil {
		return err
	}
	return c.t.cache.RegisterEdge(id, c.Block(), c.Env, true)
}

// Branch ends the instruction with a two-way branch on cond, decided by the
// flags as they are before the branch.
func (c *Context) Branch(cond arm.Cond, taken, next uint32) error {
	if cond == arm.CondAL {
		return c.Continue(taken)
	}
	pred := c.Block()
	cv := c.Condition(cond)
	cache := c.t.cache
	takenID, err := cache.FindOrCreate(c.Unit.Func, taken, c.Unit.Mode)
	if err != nil {
		return err
	}
	fallID, err := cache.FindOrCreate(c.Unit.Func, next, c.Unit.Mode)
	if err != nil {
		return err
	}
	if err := cache.RegisterEdge(takenID, pred, c.Env, false); err != nil {
		return err
	}
	if err := cache.RegisterEdge(fallID, pred, c.Env, false); err != nil {
		return err
	}
	c.B.SetInsertPoint(pred)
	c.B.CondBr(cv, cache.Unit(takenID).Head, cache.Unit(fallID).Head)
	return nil
}

// Predicate splits control flow on cond: the fall-through edge to the next
// instruction is registered from the current block, and the builder moves
// into a fresh block that only runs when cond holds.
func (c *Context) Predicate(cond arm.Cond) error {
	if cond == arm.CondAL {
		return nil
	}
	pred := c.Block()
	cv := c.Condition(cond)
	next, err := c.t.cache.FindOrCreate(c.Unit.Func, c.inst.Next(), c.Unit.Mode)
	if err != nil {
		return err
	}
	if err := c.t.cache.RegisterEdge(next, pred, c.Env, false); err != nil {
		return err
	}
	exec := c.t.fn.NewBlock(fmt.Sprintf("0x%08x.%s", c.inst.Addr, cond))
	c.B.SetInsertPoint(pred)
	c.B.CondBr(cv, exec, c.t.cache.Unit(next).Head)
	c.B.SetInsertPoint(exec)
	return nil
}

// Exit stores the environment back into the processor state and returns pc.
func (c *Context) Exit(pc *ir.Value) {
	c.t.emitExit(c.B, &c.Env, pc)
}

// ExitTo leaves translated code, continuing at a known address.
func (c *Context) ExitTo(addr uint32) {
	c.Exit(c.Const(exitAddress(addr, c.Unit.Mode)))
}

// Precondition reports an instruction shape the translator does not handle.
func (c *Context) Precondition(reason string) error {
	return &lifterrors.PreconditionError{PC: c.inst.Addr, Opcode: c.inst.Op.String(), Reason: reason}
}

// exitAddress gives the interworking form of addr: bit 0 is set for Thumb.
func exitAddress(addr uint32, mode arm.Mode) uint32 {
	if mode == arm.ModeThumb {
		return addr | 1
	}
	return addr
}
