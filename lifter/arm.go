package lifter

import (
	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

// a32Handlers run inside the block selected by predicated, so they never
// look at inst.Cond themselves.
var a32Handlers = map[arm.Opcode]Handler{
	arm.A_ADD:  a32Arith,
	arm.A_SUB:  a32Arith,
	arm.A_RSB:  a32Arith,
	arm.A_CMP:  a32Arith,
	arm.A_CMN:  a32Arith,
	arm.A_AND:  a32Logical,
	arm.A_ORR:  a32Logical,
	arm.A_EOR:  a32Logical,
	arm.A_BIC:  a32Logical,
	arm.A_MOV:  a32Logical,
	arm.A_MVN:  a32Logical,
	arm.A_TST:  a32Logical,
	arm.A_LDR:  a32Transfer(ir.I32, true),
	arm.A_LDRB: a32Transfer(ir.I8, true),
	arm.A_STR:  a32Transfer(ir.I32, false),
	arm.A_STRB: a32Transfer(ir.I8, false),
	arm.A_PUSH: a32Push,
	arm.A_POP:  a32Pop,
	arm.A_BX:   branchExchange,
	arm.A_NOP:  nop,
}

// a32Branches handle their own condition.
var a32Branches = map[arm.Opcode]Handler{
	arm.A_B: a32Branch,
}

// predicated wraps an A32 handler so that it only executes when the
// instruction's condition holds.
func predicated(h Handler) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if err := c.Predicate(inst.Cond); err != nil {
			return err
		}
		return h(c, inst)
	}
}

func a32Branch(c *Context, inst *arm.Instruction) error {
	taken := uint32(int64(inst.PC()) + int64(inst.Offset))
	return c.Branch(inst.Cond, taken, inst.Next())
}

// operand2 evaluates the shifter operand. The carry is nil when C is left as it was.
func operand2(c *Context, inst *arm.Instruction) (val, carry *ir.Value, err error) {
	if inst.ImmOperand {
		if inst.ImmCarry >= 0 {
			carry = c.B.Bool(inst.ImmCarry == 1)
		}
		return c.Const(inst.Imm), carry, nil
	}
	if inst.ShiftByReg {
		return nil, nil, c.Precondition("register-controlled shift")
	}
	rm := c.Reg(inst.Rm)
	amount := uint32(inst.ShiftAmount)
	switch inst.Shift {
	case arm.ShiftLSR, arm.ShiftASR:
		if amount == 0 {
			amount = 32
		}
	case arm.ShiftROR:
		if amount == 0 {
			val, carry = shiftImm(c, rm, arm.ShiftRRX, 1)
			return val, carry, nil
		}
	}
	val, carry = shiftImm(c, rm, inst.Shift, amount)
	return val, carry, nil
}

func a32Arith(c *Context, inst *arm.Instruction) error {
	op2, _, err := operand2(c, inst)
	if err != nil {
		return err
	}
	rn := c.Reg(inst.Rn)
	var res *ir.Value
	switch inst.Op {
	case arm.A_ADD, arm.A_CMN:
		res = c.B.Add(rn, op2)
		if inst.SetFlags {
			c.SetAddFlags(rn, op2, res)
		}
	case arm.A_SUB, arm.A_CMP:
		res = c.B.Sub(rn, op2)
		if inst.SetFlags {
			c.SetSubFlags(rn, op2, res)
		}
	case arm.A_RSB:
		res = c.B.Sub(op2, rn)
		if inst.SetFlags {
			c.SetSubFlags(op2, rn, res)
		}
	}
	if inst.Op == arm.A_CMP || inst.Op == arm.A_CMN {
		return c.Continue(inst.Next())
	}
	if inst.SetFlags && inst.Rd == arm.RegPC {
		return c.Precondition("flag-setting write to pc")
	}
	return writeRegOrExit(c, inst, inst.Rd, res)
}

func a32Logical(c *Context, inst *arm.Instruction) error {
	op2, carry, err := operand2(c, inst)
	if err != nil {
		return err
	}
	var res *ir.Value
	switch inst.Op {
	case arm.A_AND, arm.A_TST:
		res = c.B.And(c.Reg(inst.Rn), op2)
	case arm.A_ORR:
		res = c.B.Or(c.Reg(inst.Rn), op2)
	case arm.A_EOR:
		res = c.B.Xor(c.Reg(inst.Rn), op2)
	case arm.A_BIC:
		res = c.B.And(c.Reg(inst.Rn), c.B.Not(op2))
	case arm.A_MOV:
		res = op2
	case arm.A_MVN:
		res = c.B.Not(op2)
	}
	if inst.SetFlags {
		c.SetNZ(res)
		if carry != nil {
			c.Env.Set(arm.FlagC, ir.Named(carry, "c"))
		}
	}
	if inst.Op == arm.A_TST {
		return c.Continue(inst.Next())
	}
	if inst.SetFlags && inst.Rd == arm.RegPC {
		return c.Precondition("flag-setting write to pc")
	}
	return writeRegOrExit(c, inst, inst.Rd, res)
}

// a32Transfer handles single loads and stores with an immediate offset.
// Pre- and post-indexed forms write the updated address back to the base.
func a32Transfer(t ir.Type, load bool) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if inst.RegOffset {
			return c.Precondition("register offset")
		}
		if inst.Rn == arm.RegPC {
			if !load || inst.Index != arm.AddrOffset {
				return c.Precondition("pc-relative store or writeback")
			}
			addr := uint32(int64(inst.PC()) + int64(inst.Offset))
			w, err := c.ReadLiteral(addr &^ 3)
			if err != nil {
				return err
			}
			if t == ir.I8 {
				w = w >> (8 * (addr & 3)) & 0xFF
			} else if addr&3 != 0 {
				return c.Precondition("unaligned literal")
			}
			return writeRegOrExit(c, inst, inst.Rd, c.Const(w))
		}
		if inst.Index != arm.AddrOffset && inst.Rn == inst.Rd {
			return c.Precondition("writeback to the transfer register")
		}
		base := c.Reg(inst.Rn)
		updated := c.B.Add(base, c.Const(uint32(inst.Offset)))
		addr := updated
		if inst.Index == arm.AddrPostIndex {
			addr = base
		}
		if load {
			v := c.B.ZExt(c.LoadMem(t, addr), ir.I32)
			if inst.Index != arm.AddrOffset {
				c.SetReg(inst.Rn, updated)
			}
			return writeRegOrExit(c, inst, inst.Rd, v)
		}
		if inst.Rd == arm.RegPC {
			return c.Precondition("store of pc")
		}
		c.StoreMem(t, c.Reg(inst.Rd), addr)
		if inst.Index != arm.AddrOffset {
			c.SetReg(inst.Rn, updated)
		}
		return c.Continue(inst.Next())
	}
}

func a32Push(c *Context, inst *arm.Instruction) error {
	if inst.RegList&(1<<arm.RegPC|1<<arm.RegSP) != 0 {
		return c.Precondition("push of sp or pc")
	}
	pushRegs(c, inst.RegList)
	return c.Continue(inst.Next())
}

func a32Pop(c *Context, inst *arm.Instruction) error {
	if pc := popRegs(c, inst.RegList); pc != nil {
		c.Exit(pc)
		return nil
	}
	return c.Continue(inst.Next())
}
