package lifter

import (
	"fmt"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

func bit31(b *ir.Builder, x *ir.Value) *ir.Value {
	return b.Trunc(b.LShr(x, b.Int32(31)), ir.I1)
}

// isZero and isNegative give the Z and N flags of a result.
func isZero(b *ir.Builder, res *ir.Value) *ir.Value {
	return b.ICmp(ir.PredEQ, res, b.Int32(0))
}

func isNegative(b *ir.Builder, res *ir.Value) *ir.Value {
	return b.ICmp(ir.PredSLT, res, b.Int32(0))
}

// addCarry is the unsigned overflow of op1+op2: the sum wrapped below op1.
func addCarry(b *ir.Builder, op1, res *ir.Value) *ir.Value {
	return b.ICmp(ir.PredULT, res, op1)
}

// subCarry is ARM's NOT-borrow of lhs-rhs.
func subCarry(b *ir.Builder, lhs, rhs *ir.Value) *ir.Value {
	return b.ICmp(ir.PredUGE, lhs, rhs)
}

// addOverflow: operands agree in sign and the result does not.
func addOverflow(b *ir.Builder, op1, op2, res *ir.Value) *ir.Value {
	sl, sr, sres := bit31(b, op1), bit31(b, op2), bit31(b, res)
	return b.And(b.Not(b.Xor(sl, sr)), b.Xor(sl, sres))
}

// subOverflow: operands differ in sign and the result differs from lhs.
func subOverflow(b *ir.Builder, lhs, rhs, res *ir.Value) *ir.Value {
	sl, sr, sres := bit31(b, lhs), bit31(b, rhs), bit31(b, res)
	return b.And(b.Xor(sl, sr), b.Xor(sl, sres))
}

// condition evaluates cond against the flags in env. AL is not handled here.
func condition(b *ir.Builder, cond arm.Cond, env *Env) *ir.Value {
	n, z, c, v := env.Flags()
	switch cond {
	case arm.CondEQ:
		return z
	case arm.CondNE:
		return b.Not(z)
	case arm.CondHS:
		return c
	case arm.CondLO:
		return b.Not(c)
	case arm.CondMI:
		return n
	case arm.CondPL:
		return b.Not(n)
	case arm.CondVS:
		return v
	case arm.CondVC:
		return b.Not(v)
	case arm.CondHI:
		return b.And(b.Not(z), c)
	case arm.CondLS:
		return b.Or(b.Not(c), z)
	case arm.CondGE:
		return b.ICmp(ir.PredEQ, n, v)
	case arm.CondLT:
		return b.ICmp(ir.PredNE, n, v)
	case arm.CondGT:
		return b.And(b.ICmp(ir.PredEQ, n, v), b.Not(z))
	case arm.CondLE:
		return b.Or(b.ICmp(ir.PredNE, n, v), z)
	}
	panic(fmt.Sprintf("lifter: condition %s has no flag formula", cond))
}

// decodeCPSR splits the status register into the four flag slots.
func decodeCPSR(b *ir.Builder, env *Env) {
	cpsr := env.Get(arm.CPSR)
	flag := func(bit uint32, name string) *ir.Value {
		return ir.Named(b.Trunc(b.LShr(cpsr, b.Int32(bit)), ir.I1), name)
	}
	env.Set(arm.FlagN, flag(arm.CPSRBitN, "n"))
	env.Set(arm.FlagZ, flag(arm.CPSRBitZ, "z"))
	env.Set(arm.FlagC, flag(arm.CPSRBitC, "c"))
	env.Set(arm.FlagV, flag(arm.CPSRBitV, "v"))
}

// encodeCPSR folds the flag slots back into the status register.
func encodeCPSR(b *ir.Builder, env *Env) *ir.Value {
	cpsr := b.And(env.Get(arm.CPSR), b.Int32(^uint32(arm.CPSRFlagsMask)))
	n, z, c, v := env.Flags()
	place := func(f *ir.Value, bit uint32) *ir.Value {
		return b.Shl(b.ZExt(f, ir.I32), b.Int32(bit))
	}
	cpsr = b.Or(cpsr, place(n, arm.CPSRBitN))
	cpsr = b.Or(cpsr, place(z, arm.CPSRBitZ))
	cpsr = b.Or(cpsr, place(c, arm.CPSRBitC))
	cpsr = b.Or(cpsr, place(v, arm.CPSRBitV))
	return ir.Named(cpsr, "cpsr")
}
