package lifter

import (
	"fmt"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

var thumbHandlers = map[arm.Opcode]Handler{
	arm.T_PUSH:    thumbPush,
	arm.T_POP:     thumbPop,
	arm.T_LDR_PCI: thumbLoadLiteral,
	arm.T_LDR_I:   thumbLoadImm(ir.I32, false),
	arm.T_LDRH_I:  thumbLoadImm(ir.I16, false),
	arm.T_LDRB_I:  thumbLoadImm(ir.I8, false),
	arm.T_LDR_SPI: thumbLoadImm(ir.I32, false),
	arm.T_STR_I:   thumbStoreImm(ir.I32),
	arm.T_STRH_I:  thumbStoreImm(ir.I16),
	arm.T_STRB_I:  thumbStoreImm(ir.I8),
	arm.T_STR_SPI: thumbStoreImm(ir.I32),
	arm.T_LDR_R:   thumbLoadReg(ir.I32, false),
	arm.T_LDRH_R:  thumbLoadReg(ir.I16, false),
	arm.T_LDRB_R:  thumbLoadReg(ir.I8, false),
	arm.T_LDRSH_R: thumbLoadReg(ir.I16, true),
	arm.T_LDRSB_R: thumbLoadReg(ir.I8, true),
	arm.T_STR_R:   thumbStoreReg(ir.I32),
	arm.T_STRH_R:  thumbStoreReg(ir.I16),
	arm.T_STRB_R:  thumbStoreReg(ir.I8),
	arm.T_CMP_R:   thumbCompare,
	arm.T_CMP_HI:  thumbCompare,
	arm.T_CMP_I8:  thumbCompare,
	arm.T_CMN:     thumbCompareNegative,
	arm.T_TST:     thumbTest,
	arm.T_BCC:     thumbCondBranch,
	arm.T_B:       thumbBranch,
	arm.T_ADD_I8:  thumbAdd,
	arm.T_ADD_I3:  thumbAdd,
	arm.T_ADD_RR:  thumbAdd,
	arm.T_SUB_I8:  thumbSub,
	arm.T_SUB_I3:  thumbSub,
	arm.T_SUB_RR:  thumbSub,
	arm.T_RSB:     thumbNegate,
	arm.T_MOV_I8:  thumbMovImm,
	arm.T_MOV_R:   thumbMovReg,
	arm.T_ADD_HI:  thumbAddHigh,
	arm.T_ADR:     thumbAdr,
	arm.T_ADD_SPI: thumbAddSPImm,
	arm.T_ADD_SP:  thumbAdjustSP,
	arm.T_SUB_SP:  thumbAdjustSP,
	arm.T_LSL_RI:  thumbShiftImm,
	arm.T_LSR_RI:  thumbShiftImm,
	arm.T_ASR_RI:  thumbShiftImm,
	arm.T_AND:     thumbLogical,
	arm.T_EOR:     thumbLogical,
	arm.T_ORR:     thumbLogical,
	arm.T_BIC:     thumbLogical,
	arm.T_MVN:     thumbLogical,
	arm.T_BX:      branchExchange,
	arm.T_NOP:     nop,
}

// requireAL rejects conditional Thumb instructions. A32 conditions are
// handled by predicated before the handler runs.
func requireAL(c *Context, inst *arm.Instruction) error {
	if inst.Mode == arm.ModeThumb && inst.Cond != arm.CondAL {
		return c.Precondition(fmt.Sprintf("condition %s outside an IT block", inst.Cond))
	}
	return nil
}

func requireLowRegs(c *Context, regs ...arm.Reg) error {
	for _, r := range regs {
		if r > 7 {
			return c.Precondition(fmt.Sprintf("%s is not a low register", r))
		}
	}
	return nil
}

// operand2 is the second source operand of a Thumb data-processing
// instruction: an immediate for the _I forms, Rm otherwise.
func thumbOperand2(c *Context, inst *arm.Instruction) *ir.Value {
	switch inst.Op {
	case arm.T_ADD_I8, arm.T_ADD_I3, arm.T_SUB_I8, arm.T_SUB_I3, arm.T_CMP_I8, arm.T_MOV_I8:
		return c.Const(inst.Imm)
	}
	return c.Reg(inst.Rm)
}

// pushRegs stores the registers of list at ascending addresses ending just
// below sp, then lowers sp. The lowest register lands at the lowest address.
func pushRegs(c *Context, list uint16) {
	regs := arm.RegListRegs(list)
	sp := c.Reg(arm.RegSP)
	base := c.B.Sub(sp, c.Const(uint32(4*len(regs))))
	for i, r := range regs {
		addr := c.B.Add(base, c.Const(uint32(4*i)))
		c.StoreMem(ir.I32, c.Reg(r), addr)
	}
	c.SetReg(arm.RegSP, base)
}

// popRegs loads the registers of list from ascending addresses at sp and
// raises sp. It returns the loaded pc when list contains pc.
func popRegs(c *Context, list uint16) *ir.Value {
	regs := arm.RegListRegs(list)
	sp := c.Reg(arm.RegSP)
	var pc *ir.Value
	loaded := make(map[arm.Reg]*ir.Value, len(regs))
	for i, r := range regs {
		addr := c.B.Add(sp, c.Const(uint32(4*i)))
		loaded[r] = c.LoadMem(ir.I32, addr)
	}
	c.SetReg(arm.RegSP, c.B.Add(sp, c.Const(uint32(4*len(regs)))))
	for _, r := range regs {
		if r == arm.RegPC {
			pc = ir.Named(loaded[r], "pc")
			continue
		}
		if r == arm.RegSP {
			continue
		}
		c.SetReg(r, loaded[r])
	}
	return pc
}

func thumbPush(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	if inst.RegList == 0 {
		return c.Precondition("empty register list")
	}
	if inst.RegList&(1<<arm.RegPC|1<<arm.RegSP) != 0 {
		return c.Precondition("push of sp or pc")
	}
	pushRegs(c, inst.RegList)
	return c.Continue(inst.Next())
}

func thumbPop(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	if inst.RegList == 0 {
		return c.Precondition("empty register list")
	}
	if pc := popRegs(c, inst.RegList); pc != nil {
		c.Exit(pc)
		return nil
	}
	return c.Continue(inst.Next())
}

// thumbLoadLiteral resolves the literal pool entry while translating.
func thumbLoadLiteral(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	addr := inst.PC()&^3 + inst.Imm
	w, err := c.ReadLiteral(addr)
	if err != nil {
		return err
	}
	c.SetReg(inst.Rd, c.Const(w))
	return c.Continue(inst.Next())
}

func loadInto(c *Context, rd arm.Reg, t ir.Type, signed bool, addr *ir.Value) {
	v := c.LoadMem(t, addr)
	if signed {
		c.SetReg(rd, c.B.SExt(v, ir.I32))
		return
	}
	c.SetReg(rd, c.B.ZExt(v, ir.I32))
}

func thumbLoadImm(t ir.Type, signed bool) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if err := requireAL(c, inst); err != nil {
			return err
		}
		addr := c.B.Add(c.Reg(inst.Rn), c.Const(inst.Imm))
		loadInto(c, inst.Rd, t, signed, addr)
		return c.Continue(inst.Next())
	}
}

func thumbLoadReg(t ir.Type, signed bool) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if err := requireAL(c, inst); err != nil {
			return err
		}
		addr := c.B.Add(c.Reg(inst.Rn), c.Reg(inst.Rm))
		loadInto(c, inst.Rd, t, signed, addr)
		return c.Continue(inst.Next())
	}
}

func thumbStoreImm(t ir.Type) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if err := requireAL(c, inst); err != nil {
			return err
		}
		addr := c.B.Add(c.Reg(inst.Rn), c.Const(inst.Imm))
		c.StoreMem(t, c.Reg(inst.Rd), addr)
		return c.Continue(inst.Next())
	}
}

func thumbStoreReg(t ir.Type) Handler {
	return func(c *Context, inst *arm.Instruction) error {
		if err := requireAL(c, inst); err != nil {
			return err
		}
		addr := c.B.Add(c.Reg(inst.Rn), c.Reg(inst.Rm))
		c.StoreMem(t, c.Reg(inst.Rd), addr)
		return c.Continue(inst.Next())
	}
}

func thumbCompare(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	if !inst.SetFlags {
		return c.Precondition("compare without flag update")
	}
	lhs := c.Reg(inst.Rn)
	rhs := thumbOperand2(c, inst)
	c.SetSubFlags(lhs, rhs, c.B.Sub(lhs, rhs))
	return c.Continue(inst.Next())
}

func thumbCompareNegative(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	lhs, rhs := c.Reg(inst.Rn), c.Reg(inst.Rm)
	c.SetAddFlags(lhs, rhs, c.B.Add(lhs, rhs))
	return c.Continue(inst.Next())
}

func thumbTest(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	c.SetNZ(c.B.And(c.Reg(inst.Rn), c.Reg(inst.Rm)))
	return c.Continue(inst.Next())
}

func thumbCondBranch(c *Context, inst *arm.Instruction) error {
	if inst.Cond == arm.CondAL {
		return c.Precondition("conditional branch with condition al")
	}
	taken := uint32(int64(inst.PC()) + int64(inst.Offset))
	return c.Branch(inst.Cond, taken, inst.Next())
}

func thumbBranch(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	return c.Continue(uint32(int64(inst.PC()) + int64(inst.Offset)))
}

func thumbAdd(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	if err := requireLowRegs(c, inst.Rd, inst.Rn); err != nil {
		return err
	}
	op1 := c.Reg(inst.Rn)
	op2 := thumbOperand2(c, inst)
	res := c.B.Add(op1, op2)
	if inst.SetFlags {
		c.SetAddFlags(op1, op2, res)
	}
	c.SetReg(inst.Rd, res)
	return c.Continue(inst.Next())
}

func thumbSub(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	if err := requireLowRegs(c, inst.Rd, inst.Rn); err != nil {
		return err
	}
	lhs := c.Reg(inst.Rn)
	rhs := thumbOperand2(c, inst)
	res := c.B.Sub(lhs, rhs)
	if inst.SetFlags {
		c.SetSubFlags(lhs, rhs, res)
	}
	c.SetReg(inst.Rd, res)
	return c.Continue(inst.Next())
}

// thumbNegate is RSBS Rd, Rm, #0.
func thumbNegate(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	zero := c.Const(0)
	rm := c.Reg(inst.Rm)
	res := c.B.Sub(zero, rm)
	c.SetSubFlags(zero, rm, res)
	c.SetReg(inst.Rd, res)
	return c.Continue(inst.Next())
}

func thumbMovImm(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	v := c.Const(inst.Imm)
	if inst.SetFlags {
		c.SetNZ(v)
	}
	c.SetReg(inst.Rd, v)
	return c.Continue(inst.Next())
}

// writeRegOrExit writes rd, or leaves translated code when rd is pc.
func writeRegOrExit(c *Context, inst *arm.Instruction, rd arm.Reg, v *ir.Value) error {
	if rd == arm.RegPC {
		if inst.Mode == arm.ModeThumb {
			v = c.B.Or(v, c.Const(1))
		}
		c.Exit(v)
		return nil
	}
	c.SetReg(rd, v)
	return c.Continue(inst.Next())
}

func thumbMovReg(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	return writeRegOrExit(c, inst, inst.Rd, c.Reg(inst.Rm))
}

func thumbAddHigh(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	return writeRegOrExit(c, inst, inst.Rd, c.B.Add(c.Reg(inst.Rn), c.Reg(inst.Rm)))
}

func thumbAdr(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	c.SetReg(inst.Rd, c.Const(inst.PC()&^3+inst.Imm))
	return c.Continue(inst.Next())
}

func thumbAddSPImm(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	c.SetReg(inst.Rd, c.B.Add(c.Reg(arm.RegSP), c.Const(inst.Imm)))
	return c.Continue(inst.Next())
}

func thumbAdjustSP(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	sp := c.Reg(arm.RegSP)
	if inst.Op == arm.T_SUB_SP {
		c.SetReg(arm.RegSP, c.B.Sub(sp, c.Const(inst.Imm)))
	} else {
		c.SetReg(arm.RegSP, c.B.Add(sp, c.Const(inst.Imm)))
	}
	return c.Continue(inst.Next())
}

// thumbShiftImm handles LSLS/LSRS/ASRS with an immediate amount. C receives
// the last bit shifted out; LSL #0 is MOVS and leaves C alone; LSR and ASR
// encode a shift by 32 as #0.
func thumbShiftImm(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	rm := c.Reg(inst.Rm)
	kind := map[arm.Opcode]arm.ShiftKind{
		arm.T_LSL_RI: arm.ShiftLSL,
		arm.T_LSR_RI: arm.ShiftLSR,
		arm.T_ASR_RI: arm.ShiftASR,
	}[inst.Op]
	amount := inst.Imm
	if amount == 0 && kind != arm.ShiftLSL {
		amount = 32
	}
	res, carry := shiftImm(c, rm, kind, amount)
	if inst.SetFlags {
		c.SetNZ(res)
		if carry != nil {
			c.Env.Set(arm.FlagC, ir.Named(carry, "c"))
		}
	}
	c.SetReg(inst.Rd, res)
	return c.Continue(inst.Next())
}

// shiftImm applies a constant shift. The carry is nil when the shift leaves
// C unchanged.
func shiftImm(c *Context, rm *ir.Value, kind arm.ShiftKind, amount uint32) (res, carry *ir.Value) {
	b := c.B
	bitAt := func(x *ir.Value, n uint32) *ir.Value {
		return b.Trunc(b.LShr(x, c.Const(n)), ir.I1)
	}
	switch kind {
	case arm.ShiftLSL:
		if amount == 0 {
			return rm, nil
		}
		if amount == 32 {
			return c.Const(0), bitAt(rm, 0)
		}
		return b.Shl(rm, c.Const(amount)), bitAt(rm, 32-amount)
	case arm.ShiftLSR:
		if amount == 32 {
			return c.Const(0), bitAt(rm, 31)
		}
		return b.LShr(rm, c.Const(amount)), bitAt(rm, amount-1)
	case arm.ShiftASR:
		if amount >= 32 {
			return b.AShr(rm, c.Const(31)), bitAt(rm, 31)
		}
		return b.AShr(rm, c.Const(amount)), bitAt(rm, amount-1)
	case arm.ShiftROR:
		amount &= 31
		if amount == 0 {
			return rm, nil
		}
		res := b.Or(b.LShr(rm, c.Const(amount)), b.Shl(rm, c.Const(32-amount)))
		return res, bitAt(res, 31)
	case arm.ShiftRRX:
		carryIn := b.ZExt(c.Env.Get(arm.FlagC), ir.I32)
		res := b.Or(b.LShr(rm, c.Const(1)), b.Shl(carryIn, c.Const(31)))
		return res, bitAt(rm, 0)
	}
	panic(fmt.Sprintf("lifter: shift %s", kind))
}

func thumbLogical(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	rdn, rm := c.Reg(inst.Rn), c.Reg(inst.Rm)
	var res *ir.Value
	switch inst.Op {
	case arm.T_AND:
		res = c.B.And(rdn, rm)
	case arm.T_EOR:
		res = c.B.Xor(rdn, rm)
	case arm.T_ORR:
		res = c.B.Or(rdn, rm)
	case arm.T_BIC:
		res = c.B.And(rdn, c.B.Not(rm))
	case arm.T_MVN:
		res = c.B.Not(rm)
	}
	if inst.SetFlags {
		c.SetNZ(res)
	}
	c.SetReg(inst.Rd, res)
	return c.Continue(inst.Next())
}

// branchExchange leaves translated code for the address in Rm.
func branchExchange(c *Context, inst *arm.Instruction) error {
	if err := requireAL(c, inst); err != nil {
		return err
	}
	c.Exit(ir.Named(c.Reg(inst.Rm), "target"))
	return nil
}

func nop(c *Context, inst *arm.Instruction) error {
	return c.Continue(inst.Next())
}
