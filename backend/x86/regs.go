package x86

// Reg is an x86-64 general purpose register with its encoding bits.
type Reg struct {
	Name    string
	RegBits byte // 3-bit code for ModRM/SIB
	REXBit  byte // 1 if register index >= 8
}

var (
	RAX = Reg{"rax", 0, 0} // return value
	RCX = Reg{"rcx", 1, 0} // fourth argument, shift count
	RDX = Reg{"rdx", 2, 0} // third argument
	RBX = Reg{"rbx", 3, 0}
	RSP = Reg{"rsp", 4, 0}
	RBP = Reg{"rbp", 5, 0} // frame base for value slots
	RSI = Reg{"rsi", 6, 0} // second argument
	RDI = Reg{"rdi", 7, 0} // first argument
	R8  = Reg{"r8", 0, 1}
	R9  = Reg{"r9", 1, 1}
	R10 = Reg{"r10", 2, 1}
	R11 = Reg{"r11", 3, 1} // call target scratch
)

// argRegs are the System V integer argument registers in order.
var argRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

// MaxCallArgs is the number of call arguments passed in registers.
const MaxCallArgs = 6

func (r Reg) String() string { return r.Name }
