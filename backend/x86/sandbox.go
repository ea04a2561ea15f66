//go:build unicorn
// +build unicorn

package x86

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/colorfulnotion/armlift/log"
)

const (
	pageSize = uint64(0x1000)

	sandboxCodeBase  = uint64(0x7f0000000000)
	sandboxStateBase = uint64(0x7f1000000000)
	sandboxTrapBase  = uint64(0x7f2000000000)
	sandboxStackTop  = uint64(0x7f3000100000)
	sandboxStackSize = uint64(0x100000)
	sandboxCodeSize  = uint64(0x1000000)
)

// HandlerFunc is a host function reachable from sandboxed code. It receives
// the integer argument registers and returns rax.
type HandlerFunc func(args [MaxCallArgs]uint64) uint64

// Sandbox runs generated code inside a unicorn x86-64 emulator. Guest memory
// is identity mapped on demand; host handlers are reached through trap
// addresses that hold a single ret.
type Sandbox struct {
	uc.Unicorn
	mapped   map[uint64]bool
	handlers []HandlerFunc
}

func NewSandbox() (*Sandbox, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}
	s := &Sandbox{Unicorn: mu, mapped: make(map[uint64]bool)}
	regions := []struct {
		base, size uint64
		prot       int
	}{
		{sandboxCodeBase, sandboxCodeSize, uc.PROT_READ | uc.PROT_EXEC},
		{sandboxStateBase, pageSize, uc.PROT_READ | uc.PROT_WRITE},
		{sandboxTrapBase, pageSize, uc.PROT_ALL},
		{sandboxStackTop - sandboxStackSize, sandboxStackSize, uc.PROT_READ | uc.PROT_WRITE},
	}
	for _, r := range regions {
		if err := mu.MemMapProt(r.base, r.size, r.prot); err != nil {
			mu.Close()
			return nil, fmt.Errorf("map 0x%x: %w", r.base, err)
		}
	}
	if _, err := mu.HookAdd(uc.HOOK_CODE, s.trap, sandboxTrapBase, sandboxTrapBase+pageSize-1); err != nil {
		mu.Close()
		return nil, fmt.Errorf("add trap hook: %w", err)
	}
	return s, nil
}

// AddHandler registers fn and returns the address sandboxed code calls.
func (s *Sandbox) AddHandler(fn HandlerFunc) (uint64, error) {
	addr := sandboxTrapBase + uint64(len(s.handlers))*16
	if err := s.MemWrite(addr, []byte{X86_OP_RET}); err != nil {
		return 0, fmt.Errorf("write trap: %w", err)
	}
	s.handlers = append(s.handlers, fn)
	return addr, nil
}

func (s *Sandbox) trap(mu uc.Unicorn, addr uint64, size uint32) {
	idx := int((addr - sandboxTrapBase) / 16)
	if idx >= len(s.handlers) || (addr-sandboxTrapBase)%16 != 0 {
		return
	}
	var args [MaxCallArgs]uint64
	for i, r := range []int{uc.X86_REG_RDI, uc.X86_REG_RSI, uc.X86_REG_RDX, uc.X86_REG_RCX, uc.X86_REG_R8, uc.X86_REG_R9} {
		args[i], _ = mu.RegRead(r)
	}
	if err := mu.RegWrite(uc.X86_REG_RAX, s.handlers[idx](args)); err != nil {
		log.Error(log.Backend, "sandbox handler result", "err", err)
	}
}

// MapGuest identity maps the pages covering [addr, addr+len(data)) and
// writes data there.
func (s *Sandbox) MapGuest(addr uint64, data []byte) error {
	start := addr &^ (pageSize - 1)
	end := (addr + uint64(len(data)) + pageSize - 1) &^ (pageSize - 1)
	for p := start; p < end; p += pageSize {
		if s.mapped[p] {
			continue
		}
		if err := s.MemMap(p, pageSize); err != nil {
			return fmt.Errorf("map guest page 0x%x: %w", p, err)
		}
		s.mapped[p] = true
	}
	return s.MemWrite(addr, data)
}

// Run loads code and calls it as fn(state, instrumentation) with state
// holding words. It returns rax and the state after the call.
func (s *Sandbox) Run(code []byte, words []uint32, instrumentation []uint64) (uint64, []uint32, error) {
	if uint64(len(code)) > sandboxCodeSize {
		return 0, nil, fmt.Errorf("code too large: %d bytes", len(code))
	}
	if err := s.MemWrite(sandboxCodeBase, code); err != nil {
		return 0, nil, fmt.Errorf("write code: %w", err)
	}
	buf := make([]byte, 4*len(words)+8*len(instrumentation))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	instrAddr := sandboxStateBase + uint64(4*len(words))
	for i, p := range instrumentation {
		binary.LittleEndian.PutUint64(buf[4*len(words)+8*i:], p)
	}
	if err := s.MemWrite(sandboxStateBase, buf); err != nil {
		return 0, nil, fmt.Errorf("write state: %w", err)
	}

	// return into the first trap slot past the handlers
	retAddr := sandboxTrapBase + pageSize - 16
	if err := s.MemWrite(retAddr, []byte{X86_OP_RET}); err != nil {
		return 0, nil, err
	}
	rsp := sandboxStackTop - 16
	if err := s.MemWrite(rsp, encodeU64(retAddr)); err != nil {
		return 0, nil, fmt.Errorf("write return address: %w", err)
	}
	regs := map[int]uint64{
		uc.X86_REG_RSP: rsp,
		uc.X86_REG_RDI: sandboxStateBase,
		uc.X86_REG_RSI: instrAddr,
	}
	for r, v := range regs {
		if err := s.RegWrite(r, v); err != nil {
			return 0, nil, fmt.Errorf("set register %d: %w", r, err)
		}
	}
	if err := s.Start(sandboxCodeBase, retAddr); err != nil {
		rip, _ := s.RegRead(uc.X86_REG_RIP)
		return 0, nil, fmt.Errorf("emulation failed at rip 0x%x: %w", rip, err)
	}
	rax, err := s.RegRead(uc.X86_REG_RAX)
	if err != nil {
		return 0, nil, err
	}
	raw, err := s.MemRead(sandboxStateBase, uint64(4*len(words)))
	if err != nil {
		return 0, nil, fmt.Errorf("read state: %w", err)
	}
	out := make([]uint32, len(words))
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return rax, out, nil
}

func (s *Sandbox) Close() error {
	if s.Unicorn != nil {
		return s.Unicorn.Close()
	}
	return nil
}
