package ir

import "fmt"

// Type is the IR type of a value. Integer values are always kept zero-extended
// to their width; pointers are 64 bits wide.
type Type uint8

const (
	Void Type = iota
	I1
	I8
	I16
	I32
	I64
	Ptr
)

var typeNames = map[Type]string{
	Void: "void",
	I1:   "i1",
	I8:   "i8",
	I16:  "i16",
	I32:  "i32",
	I64:  "i64",
	Ptr:  "ptr",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Bits returns the width of t in bits.
func (t Type) Bits() int {
	switch t {
	case I1:
		return 1
	case I8:
		return 8
	case I16:
		return 16
	case I32:
		return 32
	case I64, Ptr:
		return 64
	}
	return 0
}

// Bytes returns the in-memory size of t.
func (t Type) Bytes() int {
	switch t {
	case I1, I8:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	case I64, Ptr:
		return 8
	}
	return 0
}

// Mask truncates v to the width of t.
func (t Type) Mask(v uint64) uint64 {
	bits := t.Bits()
	if bits == 0 || bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}

// SignExtend interprets v as a signed value of width t.
func (t Type) SignExtend(v uint64) int64 {
	bits := t.Bits()
	if bits == 0 || bits >= 64 {
		return int64(v)
	}
	shift := uint(64 - bits)
	return int64(v<<shift) >> shift
}

func (t Type) IsInt() bool {
	return t >= I1 && t <= I64
}

type Op uint8

const (
	OpInvalid Op = iota
	OpConst
	OpParam
	OpPhi

	OpAdd
	OpSub
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpNot

	OpICmp
	OpZExt
	OpSExt
	OpTrunc
	OpSelect

	OpIntToPtr
	OpFieldPtr
	OpLoad
	OpStore
	OpCall

	OpBr
	OpCondBr
	OpRet
)

var opNames = map[Op]string{
	OpInvalid:  "invalid",
	OpConst:    "const",
	OpParam:    "param",
	OpPhi:      "phi",
	OpAdd:      "add",
	OpSub:      "sub",
	OpAnd:      "and",
	OpOr:       "or",
	OpXor:      "xor",
	OpShl:      "shl",
	OpLShr:     "lshr",
	OpAShr:     "ashr",
	OpNot:      "not",
	OpICmp:     "icmp",
	OpZExt:     "zext",
	OpSExt:     "sext",
	OpTrunc:    "trunc",
	OpSelect:   "select",
	OpIntToPtr: "inttoptr",
	OpFieldPtr: "fieldptr",
	OpLoad:     "load",
	OpStore:    "store",
	OpCall:     "call",
	OpBr:       "br",
	OpCondBr:   "condbr",
	OpRet:      "ret",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsTerminator reports whether op ends a block.
func (op Op) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpRet
}

func (op Op) IsBinary() bool {
	return op >= OpAdd && op <= OpAShr
}

// Predicate selects the comparison performed by OpICmp.
type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredULT
	PredULE
	PredUGT
	PredUGE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
)

var predNames = [...]string{"eq", "ne", "ult", "ule", "ugt", "uge", "slt", "sle", "sgt", "sge"}

func (p Predicate) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("pred(%d)", uint8(p))
}

// Signed reports whether p compares its operands as signed integers.
func (p Predicate) Signed() bool {
	return p >= PredSLT
}

// Tags mark values for later passes.
type Tags uint8

const (
	// TagMemoryAccess marks a load or store of guest memory performed by
	// translated code, as opposed to processor state traffic.
	TagMemoryAccess Tags = 1 << iota
)

func (t Tags) Has(tag Tags) bool { return t&tag != 0 }
