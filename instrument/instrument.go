// Package instrument routes guest memory accesses of lifted code through
// host callbacks.
//
// The second parameter of an instrumented function points at
//
//	struct { read_handler, write_handler uintptr }
//
// and every load or store tagged ir.TagMemoryAccess becomes
//
//	read_handler(addr i32, width i32) i32
//	write_handler(addr i32, width i32, value i32)
//
// with width 1, 2 or 4 taken from the access type.
package instrument

import (
	"fmt"

	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/log"
)

const (
	ReadHandlerOffset  = 0
	WriteHandlerOffset = 8
)

// Stats reports what one run of the pass rewrote.
type Stats struct {
	Loads  int
	Stores int
}

// Run rewrites the tagged memory accesses of f in place.
func Run(f *ir.Function) (Stats, error) {
	var stats Stats
	var accesses []*ir.Value
	f.Values(func(v *ir.Value) {
		if v.Tags&ir.TagMemoryAccess != 0 && (v.Op == ir.OpLoad || v.Op == ir.OpStore) {
			accesses = append(accesses, v)
		}
	})
	if len(accesses) == 0 {
		return stats, nil
	}
	if len(f.Params) < 2 || f.Params[1].Type != ir.Ptr {
		return stats, fmt.Errorf("instrument: %s has no instrumentation parameter", f.Name)
	}
	entry := f.Entry()
	first := firstNonPhi(entry)
	if first == nil {
		return stats, fmt.Errorf("instrument: entry block of %s is empty", f.Name)
	}

	b := ir.NewBuilder(f)
	b.SetInsertBefore(first)
	table := f.Params[1]
	read := ir.Named(b.Load(ir.Ptr, b.FieldPtr(table, ReadHandlerOffset)), "read_handler")
	write := ir.Named(b.Load(ir.Ptr, b.FieldPtr(table, WriteHandlerOffset)), "write_handler")

	for _, v := range accesses {
		b.SetInsertBefore(v)
		addr := guestAddress(b, v.Args[0])
		switch v.Op {
		case ir.OpLoad:
			width, err := accessWidth(v.Type)
			if err != nil {
				return stats, fmt.Errorf("instrument: %s: %w", v.LongString(), err)
			}
			res := b.Call(ir.I32, read, addr, b.Int32(width))
			repl := b.Trunc(res, v.Type)
			f.ReplaceAllUsesWith(v, repl)
			stats.Loads++
		case ir.OpStore:
			val := v.Args[1]
			width, err := accessWidth(val.Type)
			if err != nil {
				return stats, fmt.Errorf("instrument: %s: %w", v.LongString(), err)
			}
			b.Call(ir.Void, write, addr, b.Int32(width), b.ZExt(val, ir.I32))
			stats.Stores++
		}
		v.Block.Remove(v)
	}
	log.Debug(log.Instrument, "instrumented memory accesses", "func", f.Name, "loads", stats.Loads, "stores", stats.Stores)
	return stats, nil
}

func firstNonPhi(b *ir.Block) *ir.Value {
	if b == nil {
		return nil
	}
	for _, v := range b.Instrs {
		if v.Op != ir.OpPhi {
			return v
		}
	}
	return nil
}

// guestAddress recovers the 32-bit guest address behind a pointer.
func guestAddress(b *ir.Builder, ptr *ir.Value) *ir.Value {
	if ptr.Op == ir.OpIntToPtr {
		return b.Trunc(ptr.Args[0], ir.I32)
	}
	return b.Trunc(ptr, ir.I32)
}

func accessWidth(t ir.Type) (uint32, error) {
	switch t {
	case ir.I8, ir.I16, ir.I32:
		return uint32(t.Bytes()), nil
	}
	return 0, fmt.Errorf("unsupported access type %s", t)
}
