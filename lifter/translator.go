package lifter

import (
	"fmt"
	"runtime/debug"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
	"github.com/colorfulnotion/armlift/log"
)

// Range is a half-open interval [Start, End) of addresses that may be translated.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

type Ranges []Range

// RangesFromList copies ranges up to the first entry whose End is 0.
func RangesFromList(list []Range) Ranges {
	var out Ranges
	for _, r := range list {
		if r.End == 0 {
			break
		}
		out = append(out, r)
	}
	return out
}

func (rs Ranges) Contains(addr uint32) bool {
	for _, r := range rs {
		if addr >= r.Start && addr < r.End {
			return true
		}
	}
	return false
}

// Config holds everything a translation pass reads.
type Config struct {
	Code       arm.CodeReader
	Ranges     Ranges
	Table      Table
	Decoders   map[arm.Mode]arm.Decoder
	ModuleName string
}

// Stats counts what one pass did.
type Stats struct {
	Units        int
	Instructions int
	Exits        int
	SoftFails    int
	Repairs      int
}

// Translator lifts one region of code into a single IR function
//
//	i32 translated(ptr state, ptr instrumentation)
//
// which runs until the program counter leaves the translated ranges and
// returns the address it left at.
type Translator struct {
	cfg   Config
	mod   *ir.Module
	fn    *ir.Function
	fid   FuncID
	cache *Cache
	b     *ir.Builder
	Stats Stats
}

func NewTranslator(cfg Config) *Translator {
	if cfg.Table == nil {
		cfg.Table = DefaultTable()
	}
	if cfg.ModuleName == "" {
		cfg.ModuleName = "armlift"
	}
	return &Translator{cfg: cfg}
}

func (t *Translator) Cache() *Cache { return t.cache }

func (t *Translator) Module() *ir.Module { return t.mod }

func (t *Translator) Function() *ir.Function { return t.fn }

func (t *Translator) decoder(m arm.Mode) arm.Decoder {
	if d, ok := t.cfg.Decoders[m]; ok {
		return d
	}
	return arm.DecoderFor(m)
}

// Translate runs one pass from entry. Any error aborts the whole pass.
func (t *Translator) Translate(entry uint32, mode arm.Mode) (fn *ir.Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.Lifter, "translation panicked", "entry", fmt.Sprintf("0x%08x", entry), "panic", r)
			log.Debug(log.Lifter, "panic stack", "stack", string(debug.Stack()))
			fn, err = nil, fmt.Errorf("lifter: translation from 0x%08x aborted: %v", entry, r)
		}
	}()
	if t.cfg.Code == nil {
		return nil, fmt.Errorf("%w: no code reader", lifterrors.ErrBadRequest)
	}
	if !t.cfg.Ranges.Contains(entry) {
		return nil, fmt.Errorf("%w: 0x%08x", lifterrors.ErrEntryOutOfRange, entry)
	}

	t.mod = ir.NewModule(t.cfg.ModuleName)
	t.fn = t.mod.NewFunction("translated", ir.I32, ir.Ptr, ir.Ptr)
	t.fn.Params[0].Name = "state"
	t.fn.Params[1].Name = "instrumentation"
	t.cache = NewCache()
	t.fid = t.cache.AddFunction(t.fn)
	t.b = ir.NewBuilder(t.fn)
	t.Stats = Stats{}

	head := t.fn.NewBlock("entry")
	t.b.SetInsertPoint(head)
	env := t.loadState()
	id, err := t.cache.FindOrCreate(t.fid, entry, mode)
	if err != nil {
		return nil, err
	}
	if err := t.cache.RegisterEdge(id, head, env, true); err != nil {
		return nil, err
	}

	for t.cache.HasPendingWork() {
		item, _ := t.cache.TakeNextWorkItem()
		if err := t.process(item); err != nil {
			log.Error(log.Lifter, "translation failed", "entry", fmt.Sprintf("0x%08x", entry),
				"code", lifterrors.GetErrorCodeWithName(err), "err", err)
			return nil, err
		}
	}

	if err := ir.Verify(t.fn); err != nil {
		return nil, fmt.Errorf("lifter: malformed IR: %w", err)
	}
	t.Stats.Units = t.cache.Len()
	log.Debug(log.Lifter, "translation complete", "entry", fmt.Sprintf("0x%08x", entry),
		"units", t.Stats.Units, "instructions", t.Stats.Instructions, "exits", t.Stats.Exits)
	return t.fn, nil
}

// loadState reads every stored slot out of the processor state and splits
// the status register into flags.
func (t *Translator) loadState() Env {
	var env Env
	state := t.fn.Params[0]
	for _, info := range arm.Slots {
		if info.StateIndex < 0 {
			continue
		}
		v := t.b.Load(info.Type, t.b.FieldPtr(state, info.Slot.StateOffset()))
		env.Set(info.Slot, ir.Named(v, info.Name))
	}
	decodeCPSR(t.b, &env)
	return env
}

func (t *Translator) emitExit(b *ir.Builder, env *Env, pc *ir.Value) {
	state := t.fn.Params[0]
	cpsr := encodeCPSR(b, env)
	for _, info := range arm.Slots {
		if info.StateIndex < 0 {
			continue
		}
		v := env.Get(info.Slot)
		if info.Slot == arm.CPSR {
			v = cpsr
		}
		b.Store(v, b.FieldPtr(state, info.Slot.StateOffset()))
	}
	b.Ret(pc)
	t.Stats.Exits++
}

func (t *Translator) process(item WorkItem) error {
	u := t.cache.Unit(item.Unit)
	defer func() { u.Finished = true }()

	t.b.SetInsertPoint(u.Head)
	ctx := &Context{t: t, Unit: u, Env: item.Env, B: t.b}

	if !t.cfg.Ranges.Contains(u.Addr) {
		log.Trace(log.Lifter, "left translated ranges", "unit", u.String())
		ctx.ExitTo(u.Addr)
		return nil
	}

	inst, status := t.decoder(u.Mode).Decode(t.cfg.Code, u.Addr)
	switch status {
	case arm.DecodeFail:
		var word uint32
		repair := false
		if u.Mode == arm.ModeARM {
			w, err := arm.ReadU32(t.cfg.Code, u.Addr)
			word, repair = w, err == nil && arm.IsMisdecodedBX(w)
		}
		if !repair {
			return &lifterrors.DecodeError{PC: u.Addr, Raw: t.rawBytes(u.Addr, inst.Len)}
		}
		inst = arm.Instruction{
			Op:   arm.A_BX,
			Mode: u.Mode,
			Addr: u.Addr,
			Len:  4,
			Cond: arm.CondAL,
			Rm:   arm.Reg(word & 0xF),
			Raw:  word,
		}
		inst.Text = "bx " + inst.Rm.String()
		t.Stats.Repairs++
		log.Warn(log.Decoder, "repaired misdecoded bx", "pc", fmt.Sprintf("0x%08x", u.Addr), "word", fmt.Sprintf("0x%08x", word))
	case arm.DecodeSoftFail:
		t.Stats.SoftFails++
		log.Warn(log.Decoder, "soft decode failure, leaving translated code", "pc", fmt.Sprintf("0x%08x", u.Addr), "inst", inst.Text)
		ctx.ExitTo(u.Addr)
		return nil
	}

	ctx.inst = &inst
	h, ok := t.cfg.Table.Lookup(inst.Op)
	if !ok {
		return &lifterrors.UnknownOpcodeError{PC: inst.Addr, Opcode: inst.Op.String(), Text: inst.Text}
	}
	log.Trace(log.Lifter, "translating", "inst", inst.String(), "unit", u.String())
	t.Stats.Instructions++
	return h(ctx, &inst)
}

// rawBytes returns the bytes of a failed instruction for diagnostics. A
// decoder that reports no length gets a full word.
func (t *Translator) rawBytes(addr uint32, n int) []byte {
	if n <= 0 {
		n = 4
	}
	raw, err := t.cfg.Code.ReadCode(addr, n)
	if err != nil {
		log.Debug(log.Lifter, "reading failed instruction", "pc", fmt.Sprintf("0x%08x", addr), "err", err)
		return nil
	}
	return raw
}
