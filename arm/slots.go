package arm

import (
	"fmt"

	"github.com/colorfulnotion/armlift/ir"
)

// Slot names one piece of architectural state tracked through translation.
type Slot uint8

const (
	R0 Slot = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	CPSR
	FlagZ
	FlagN
	FlagC
	FlagV

	NumSlots
)

// Processor state layout: 16 little-endian u32 words.
const (
	StateWords = 16
	StateSize  = StateWords * 4
)

// Instrumentation struct layout: two function pointers.
const (
	ReadHandlerOffset  = 0
	WriteHandlerOffset = 8
	InstrumentSize     = 16
)

// SlotInfo describes one tracked slot. StateIndex is -1 for slots that are
// not stored in the processor state.
type SlotInfo struct {
	Slot       Slot
	Name       string
	Type       ir.Type
	StateIndex int
}

// Slots enumerates every tracked slot in id order.
var Slots = [NumSlots]SlotInfo{
	{R0, "r0", ir.I32, 0},
	{R1, "r1", ir.I32, 1},
	{R2, "r2", ir.I32, 2},
	{R3, "r3", ir.I32, 3},
	{R4, "r4", ir.I32, 4},
	{R5, "r5", ir.I32, 5},
	{R6, "r6", ir.I32, 6},
	{R7, "r7", ir.I32, 7},
	{R8, "r8", ir.I32, 8},
	{R9, "r9", ir.I32, 9},
	{R10, "r10", ir.I32, 10},
	{R11, "r11", ir.I32, 11},
	{R12, "r12", ir.I32, 12},
	{SP, "sp", ir.I32, 13},
	{LR, "lr", ir.I32, 14},
	{CPSR, "cpsr", ir.I32, 15},
	{FlagZ, "flag_z", ir.I1, -1},
	{FlagN, "flag_n", ir.I1, -1},
	{FlagC, "flag_c", ir.I1, -1},
	{FlagV, "flag_v", ir.I1, -1},
}

func (s Slot) String() string {
	if s < NumSlots {
		return Slots[s].Name
	}
	return fmt.Sprintf("slot(%d)", uint8(s))
}

func (s Slot) Type() ir.Type { return Slots[s].Type }

func (s Slot) IsFlag() bool { return s >= FlagZ && s < NumSlots }

// StateOffset is the byte offset of s in the processor state, or -1.
func (s Slot) StateOffset() int64 {
	if idx := Slots[s].StateIndex; idx >= 0 {
		return int64(idx) * 4
	}
	return -1
}

// RegSlot maps a core register number (0..14) to its slot.
func RegSlot(r Reg) Slot {
	if r > RegLR {
		panic(fmt.Sprintf("arm: register %s has no slot", r))
	}
	return Slot(r)
}

// CPSR flag bit positions.
const (
	CPSRBitN = 31
	CPSRBitZ = 30
	CPSRBitC = 29
	CPSRBitV = 28

	CPSRFlagsMask = 0xF0000000
)

// State is the processor state in the order of its memory layout.
type State struct {
	R    [13]uint32 `json:"r"`
	SP   uint32     `json:"sp"`
	LR   uint32     `json:"lr"`
	CPSR uint32     `json:"cpsr"`
}

// Words returns s in memory layout order.
func (s *State) Words() [StateWords]uint32 {
	var w [StateWords]uint32
	copy(w[:13], s.R[:])
	w[13], w[14], w[15] = s.SP, s.LR, s.CPSR
	return w
}

// StateFromWords is the inverse of Words.
func StateFromWords(w []uint32) State {
	var s State
	copy(s.R[:], w[:13])
	s.SP, s.LR, s.CPSR = w[13], w[14], w[15]
	return s
}

// Flags returns the NZCV bits of the CPSR.
func (s *State) Flags() Flags {
	return FlagsFromCPSR(s.CPSR)
}
