package lifter

import (
	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
)

// Env maps every tracked slot to its current SSA value. It is a value type:
// assigning or cloning an Env gives an independent copy.
type Env struct {
	vals [arm.NumSlots]*ir.Value
}

func (e *Env) Get(s arm.Slot) *ir.Value {
	return e.vals[s]
}

func (e *Env) Set(s arm.Slot, v *ir.Value) {
	if v.Type != s.Type() {
		panic("lifter: " + s.String() + " expects " + s.Type().String() + ", got " + v.Type.String())
	}
	e.vals[s] = v
}

func (e Env) Clone() Env {
	return e
}

// Complete reports whether every slot has a value.
func (e *Env) Complete() bool {
	return len(e.Missing()) == 0
}

func (e *Env) Missing() []arm.Slot {
	var missing []arm.Slot
	for s := arm.Slot(0); s < arm.NumSlots; s++ {
		if e.vals[s] == nil {
			missing = append(missing, s)
		}
	}
	return missing
}

// Flags returns the current flag values.
func (e *Env) Flags() (n, z, c, v *ir.Value) {
	return e.vals[arm.FlagN], e.vals[arm.FlagZ], e.vals[arm.FlagC], e.vals[arm.FlagV]
}
