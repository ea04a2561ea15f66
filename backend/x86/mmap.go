package x86

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is generated code copied into executable memory.
type Mapping struct {
	mem []byte
}

// Map copies code into a fresh anonymous mapping and makes it read-only
// and executable.
func Map(code []byte) (*Mapping, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("x86: empty code")
	}
	mem, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap exec code: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, fmt.Errorf("failed to mprotect exec code: %w", err)
	}
	return &Mapping{mem: mem}, nil
}

// Addr is the address of the first byte of the mapped code.
func (m *Mapping) Addr() uintptr {
	return uintptr(unsafe.Pointer(&m.mem[0]))
}

func (m *Mapping) Size() int { return len(m.mem) }

// Bytes returns the mapped code.
func (m *Mapping) Bytes() []byte { return m.mem }

func (m *Mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	return err
}
