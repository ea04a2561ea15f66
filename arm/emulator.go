//go:build unicorn
// +build unicorn

package arm

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

const emuPage = 0x1000

var emuRegs = [StateWords]int{
	uc.ARM_REG_R0, uc.ARM_REG_R1, uc.ARM_REG_R2, uc.ARM_REG_R3,
	uc.ARM_REG_R4, uc.ARM_REG_R5, uc.ARM_REG_R6, uc.ARM_REG_R7,
	uc.ARM_REG_R8, uc.ARM_REG_R9, uc.ARM_REG_R10, uc.ARM_REG_R11,
	uc.ARM_REG_R12, uc.ARM_REG_SP, uc.ARM_REG_LR, uc.ARM_REG_CPSR,
}

// Emulator executes guest code on unicorn. It is the reference the lifted
// code is checked against.
type Emulator struct {
	mu     uc.Unicorn
	mode   Mode
	mapped map[uint64]bool
}

func NewEmulator(mode Mode) (*Emulator, error) {
	ucMode := uc.MODE_ARM
	if mode == ModeThumb {
		ucMode = uc.MODE_THUMB
	}
	mu, err := uc.NewUnicorn(uc.ARCH_ARM, ucMode)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	return &Emulator{mu: mu, mode: mode, mapped: make(map[uint64]bool)}, nil
}

// Write copies data into guest memory, mapping pages as needed.
func (e *Emulator) Write(addr uint32, data []byte) error {
	start := uint64(addr) &^ (emuPage - 1)
	end := (uint64(addr) + uint64(len(data)) + emuPage - 1) &^ (emuPage - 1)
	for p := start; p < end; p += emuPage {
		if e.mapped[p] {
			continue
		}
		if err := e.mu.MemMap(p, emuPage); err != nil {
			return fmt.Errorf("map 0x%x: %w", p, err)
		}
		e.mapped[p] = true
	}
	return e.mu.MemWrite(uint64(addr), data)
}

func (e *Emulator) Read(addr uint32, n int) ([]byte, error) {
	return e.mu.MemRead(uint64(addr), uint64(n))
}

// Run starts at entry with state st and stops when execution reaches stop.
// Only the NZCV bits of st.CPSR are applied.
func (e *Emulator) Run(entry uint32, st State, stop uint32) (State, error) {
	words := st.Words()
	for i, reg := range emuRegs {
		v := uint64(words[i])
		if reg == uc.ARM_REG_CPSR {
			cur, err := e.mu.RegRead(reg)
			if err != nil {
				return State{}, err
			}
			v = cur&^CPSRFlagsMask | v&CPSRFlagsMask
		}
		if err := e.mu.RegWrite(reg, v); err != nil {
			return State{}, fmt.Errorf("write register %d: %w", i, err)
		}
	}
	begin := uint64(entry)
	if e.mode == ModeThumb {
		begin |= 1
	}
	if err := e.mu.Start(begin, uint64(stop)&^1); err != nil {
		return State{}, fmt.Errorf("emulate from 0x%08x: %w", entry, err)
	}
	var out [StateWords]uint32
	for i, reg := range emuRegs {
		v, err := e.mu.RegRead(reg)
		if err != nil {
			return State{}, err
		}
		out[i] = uint32(v)
	}
	return StateFromWords(out[:]), nil
}

func (e *Emulator) Close() error {
	return e.mu.Close()
}
