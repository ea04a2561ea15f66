//go:build !unicorn
// +build !unicorn

package x86

import (
	"fmt"

	"github.com/colorfulnotion/armlift/lifterrors"
)

type HandlerFunc func(args [MaxCallArgs]uint64) uint64

// Sandbox needs the unicorn build tag.
type Sandbox struct{}

func NewSandbox() (*Sandbox, error) {
	return nil, fmt.Errorf("%w: x86 sandbox requires the unicorn build tag", lifterrors.ErrUnsupported)
}

func (s *Sandbox) AddHandler(fn HandlerFunc) (uint64, error) {
	return 0, lifterrors.ErrUnsupported
}

func (s *Sandbox) MapGuest(addr uint64, data []byte) error {
	return lifterrors.ErrUnsupported
}

func (s *Sandbox) Run(code []byte, words []uint32, instrumentation []uint64) (uint64, []uint32, error) {
	return 0, nil, lifterrors.ErrUnsupported
}

func (s *Sandbox) Close() error { return nil }
