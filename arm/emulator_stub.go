//go:build !unicorn
// +build !unicorn

package arm

import "errors"

var errNoEmulator = errors.New("arm: emulator requires the unicorn build tag")

// Emulator needs the unicorn build tag.
type Emulator struct{}

func NewEmulator(mode Mode) (*Emulator, error) { return nil, errNoEmulator }

func (e *Emulator) Write(addr uint32, data []byte) error { return errNoEmulator }

func (e *Emulator) Read(addr uint32, n int) ([]byte, error) { return nil, errNoEmulator }

func (e *Emulator) Run(entry uint32, st State, stop uint32) (State, error) {
	return State{}, errNoEmulator
}

func (e *Emulator) Close() error { return nil }
