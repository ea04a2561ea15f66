package arm

import "fmt"

// Cond is an ARM condition code.
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondHS
	CondLO
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
)

var condNames = [...]string{"eq", "ne", "hs", "lo", "mi", "pl", "vs", "vc", "hi", "ls", "ge", "lt", "gt", "le", "al"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Flags holds the four condition flags.
type Flags struct {
	N, Z, C, V bool
}

func (f Flags) String() string {
	b := []byte("nzcv")
	if f.N {
		b[0] = 'N'
	}
	if f.Z {
		b[1] = 'Z'
	}
	if f.C {
		b[2] = 'C'
	}
	if f.V {
		b[3] = 'V'
	}
	return string(b)
}

func FlagsFromCPSR(cpsr uint32) Flags {
	return Flags{
		N: cpsr>>CPSRBitN&1 != 0,
		Z: cpsr>>CPSRBitZ&1 != 0,
		C: cpsr>>CPSRBitC&1 != 0,
		V: cpsr>>CPSRBitV&1 != 0,
	}
}

// EncodeCPSR replaces the flag bits of cpsr with f.
func (f Flags) EncodeCPSR(cpsr uint32) uint32 {
	cpsr &^= CPSRFlagsMask
	if f.N {
		cpsr |= 1 << CPSRBitN
	}
	if f.Z {
		cpsr |= 1 << CPSRBitZ
	}
	if f.C {
		cpsr |= 1 << CPSRBitC
	}
	if f.V {
		cpsr |= 1 << CPSRBitV
	}
	return cpsr
}

// EvalCondition reports whether c passes under f.
func EvalCondition(c Cond, f Flags) bool {
	switch c {
	case CondEQ:
		return f.Z
	case CondNE:
		return !f.Z
	case CondHS:
		return f.C
	case CondLO:
		return !f.C
	case CondMI:
		return f.N
	case CondPL:
		return !f.N
	case CondVS:
		return f.V
	case CondVC:
		return !f.V
	case CondHI:
		return f.C && !f.Z
	case CondLS:
		return !f.C || f.Z
	case CondGE:
		return f.N == f.V
	case CondLT:
		return f.N != f.V
	case CondGT:
		return !f.Z && f.N == f.V
	case CondLE:
		return f.Z || f.N != f.V
	case CondAL:
		return true
	}
	panic(fmt.Sprintf("arm: invalid condition %d", c))
}

// AddWithFlags computes op1+op2 and the flags an ADDS would set.
func AddWithFlags(op1, op2 uint32) (uint32, Flags) {
	res := op1 + op2
	return res, Flags{
		N: res>>31 != 0,
		Z: res == 0,
		C: res < op1,
		V: (op1^op2)>>31 == 0 && (op1^res)>>31 != 0,
	}
}

// SubWithFlags computes lhs-rhs and the flags a SUBS/CMP would set.
func SubWithFlags(lhs, rhs uint32) (uint32, Flags) {
	res := lhs - rhs
	return res, Flags{
		N: res>>31 != 0,
		Z: res == 0,
		C: lhs >= rhs,
		V: (lhs^rhs)>>31 != 0 && (lhs^res)>>31 != 0,
	}
}
