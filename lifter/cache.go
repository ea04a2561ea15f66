package lifter

import (
	"fmt"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
	"github.com/colorfulnotion/armlift/log"
)

type FuncID int

type UnitID int

// Unit is the translation of the code starting at one address of one function.
// Its phis are created with it, one per slot, and accept inputs for as long as
// the pass runs.
type Unit struct {
	ID       UnitID
	Func     FuncID
	Addr     uint32
	Mode     arm.Mode
	Head     *ir.Block
	Phis     Env
	Edges    int
	Finished bool
}

func (u *Unit) String() string {
	return fmt.Sprintf("unit#%d@0x%08x(%s)", u.ID, u.Addr, u.Mode)
}

// WorkItem asks for u to be translated starting from Env.
type WorkItem struct {
	Unit UnitID
	Env  Env
}

type unitKey struct {
	fn   FuncID
	addr uint32
}

// Cache deduplicates units by (function, address) and owns the FIFO worklist.
type Cache struct {
	funcs    []*ir.Function
	builders []*ir.Builder
	units    []*Unit
	index    map[unitKey]UnitID
	queue    []WorkItem
}

func NewCache() *Cache {
	return &Cache{index: make(map[unitKey]UnitID)}
}

// AddFunction registers f as a function context for units.
func (c *Cache) AddFunction(f *ir.Function) FuncID {
	c.funcs = append(c.funcs, f)
	c.builders = append(c.builders, ir.NewBuilder(f))
	return FuncID(len(c.funcs) - 1)
}

func (c *Cache) Function(id FuncID) *ir.Function {
	return c.funcs[id]
}

// FindOrCreate returns the unit for (fn, addr), creating it with a full set of
// phis and enqueueing its single work item when it does not exist yet.
func (c *Cache) FindOrCreate(fn FuncID, addr uint32, mode arm.Mode) (UnitID, error) {
	if fn < 0 || int(fn) >= len(c.funcs) {
		return 0, fmt.Errorf("%w: function %d", lifterrors.ErrNoFunctionContext, fn)
	}
	key := unitKey{fn, addr}
	if id, ok := c.index[key]; ok {
		return id, nil
	}

	f := c.funcs[fn]
	b := c.builders[fn]
	u := &Unit{
		ID:   UnitID(len(c.units)),
		Func: fn,
		Addr: addr,
		Mode: mode,
		Head: f.NewBlock(fmt.Sprintf("0x%08x", addr)),
	}
	b.SetInsertPoint(u.Head)
	for s := arm.Slot(0); s < arm.NumSlots; s++ {
		u.Phis.Set(s, b.Phi(s.Type(), s.String()))
	}
	c.units = append(c.units, u)
	c.index[key] = u.ID
	c.queue = append(c.queue, WorkItem{Unit: u.ID, Env: u.Phis})
	log.Trace(log.Cache, "unit created", "unit", u.String(), "pending", len(c.queue))
	return u.ID, nil
}

// RegisterEdge feeds env into the phis of unit id as the values flowing in
// from pred. With emitTerminator the edge also gets its branch; otherwise the
// caller emits a single multi-way terminator in pred itself.
func (c *Cache) RegisterEdge(id UnitID, pred *ir.Block, env Env, emitTerminator bool) error {
	u := c.Unit(id)
	if missing := env.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %v on edge %s -> %s", lifterrors.ErrIncompleteEnv, missing, pred.Name, u.Head.Name)
	}
	if emitTerminator && pred.Terminated() {
		return fmt.Errorf("%w: %s", lifterrors.ErrBlockTerminated, pred.Name)
	}
	for s := arm.Slot(0); s < arm.NumSlots; s++ {
		u.Phis.Get(s).AddIncoming(pred, env.Get(s))
	}
	u.Edges++
	if emitTerminator {
		b := c.builders[u.Func]
		b.SetInsertPoint(pred)
		b.Br(u.Head)
	}
	log.Trace(log.Cache, "edge registered", "from", pred.Name, "to", u.String(), "edges", u.Edges)
	return nil
}

func (c *Cache) HasPendingWork() bool {
	return len(c.queue) > 0
}

// TakeNextWorkItem pops the oldest work item.
func (c *Cache) TakeNextWorkItem() (WorkItem, bool) {
	if len(c.queue) == 0 {
		return WorkItem{}, false
	}
	item := c.queue[0]
	c.queue[0] = WorkItem{}
	c.queue = c.queue[1:]
	return item, true
}

func (c *Cache) Unit(id UnitID) *Unit {
	return c.units[id]
}

// Lookup returns the unit for (fn, addr) without creating it.
func (c *Cache) Lookup(fn FuncID, addr uint32) (*Unit, bool) {
	id, ok := c.index[unitKey{fn, addr}]
	if !ok {
		return nil, false
	}
	return c.units[id], true
}

// Units returns every unit in creation order.
func (c *Cache) Units() []*Unit {
	return c.units
}

func (c *Cache) Len() int { return len(c.units) }
