package lifter

import (
	"fmt"
	"io"
	"os"

	"github.com/xyproto/env/v2"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/backend/x86"
	"github.com/colorfulnotion/armlift/instrument"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifterrors"
	"github.com/colorfulnotion/armlift/log"
)

// Option keys understood by OptionsFromDict.
const (
	OptDebug                  = "debug"
	OptPrintIR                = "print_ir"
	OptInstrumentMemoryAccess = "instrument_memory_access"
)

// Environment variables that override options.
const (
	EnvDebug      = "ARMLIFT_DEBUG"
	EnvPrintIR    = "ARMLIFT_PRINT_IR"
	EnvInstrument = "ARMLIFT_INSTRUMENT"
)

type Options struct {
	Debug                  bool // disassemble the generated code to Output
	PrintIR                bool // print the lifted module to Output
	InstrumentMemoryAccess bool

	Output io.Writer
}

// OptionsFromDict reads options from a key/value dictionary. A key that is
// present enables its option whatever its value.
func OptionsFromDict(dict map[string]string) Options {
	var o Options
	_, o.Debug = dict[OptDebug]
	_, o.PrintIR = dict[OptPrintIR]
	_, o.InstrumentMemoryAccess = dict[OptInstrumentMemoryAccess]
	return o
}

// WithEnv returns o with the ARMLIFT_* environment variables applied.
func (o Options) WithEnv() Options {
	if env.Has(EnvDebug) {
		o.Debug = env.Bool(EnvDebug)
	}
	if env.Has(EnvPrintIR) {
		o.PrintIR = env.Bool(EnvPrintIR)
	}
	if env.Has(EnvInstrument) {
		o.InstrumentMemoryAccess = env.Bool(EnvInstrument)
	}
	return o
}

func (o Options) output() io.Writer {
	if o.Output != nil {
		return o.Output
	}
	return os.Stdout
}

// Request describes one region of guest code to translate.
type Request struct {
	Architecture string // "thumb" or "arm"
	Entry        uint32
	// Ranges lists the translatable regions; a {0, 0} entry ends the list.
	Ranges []Range
	// CodeAddress is the address the generated code will run at. Zero maps
	// the code into executable memory of this process.
	CodeAddress uint64
	Code        arm.CodeReader
	Options     Options
}

// CodeGenerator turns a lifted function into machine code.
type CodeGenerator interface {
	Generate(f *ir.Function, base uint64) (*x86.Object, error)
}

// GeneratedCode is the compiled form of a request.
type GeneratedCode struct {
	Address uint64
	Size    int
	Code    []byte

	Func  *ir.Function
	Stats Stats

	mapping *x86.Mapping
}

// Close releases the executable mapping, if any.
func (g *GeneratedCode) Close() error {
	if g.mapping == nil {
		return nil
	}
	err := g.mapping.Close()
	g.mapping = nil
	return err
}

// Lift translates a request without generating code.
func Lift(req Request) (*Translator, *ir.Function, error) {
	mode, err := arm.ParseMode(req.Architecture)
	if err != nil {
		return nil, nil, err
	}
	if req.Code == nil {
		return nil, nil, fmt.Errorf("%w: no code reader", lifterrors.ErrBadRequest)
	}
	t := NewTranslator(Config{Code: req.Code, Ranges: RangesFromList(req.Ranges)})
	fn, err := t.Translate(req.Entry, mode)
	if err != nil {
		return nil, nil, err
	}
	return t, fn, nil
}

// Instrument lifts the code described by req, optionally instruments its
// memory accesses, and compiles it with gen.
func Instrument(req Request, gen CodeGenerator) (*GeneratedCode, error) {
	opts := req.Options
	out := opts.output()

	t, fn, err := Lift(req)
	if err != nil {
		return nil, err
	}
	if opts.PrintIR {
		fmt.Fprintln(out, t.Module().String())
	}
	if opts.InstrumentMemoryAccess {
		if _, err := instrument.Run(fn); err != nil {
			return nil, err
		}
		if err := ir.Verify(fn); err != nil {
			return nil, fmt.Errorf("lifter: instrumented IR: %w", err)
		}
	}

	obj, err := gen.Generate(fn, req.CodeAddress)
	if err != nil {
		return nil, fmt.Errorf("lifter: code generation: %w", err)
	}
	sec, err := x86.Compile(obj)
	if err != nil {
		return nil, err
	}
	gc := &GeneratedCode{
		Address: req.CodeAddress,
		Size:    len(sec.Data),
		Code:    sec.Data,
		Func:    fn,
		Stats:   t.Stats,
	}
	if gc.Address == 0 {
		m, err := x86.Map(sec.Data)
		if err != nil {
			return nil, err
		}
		gc.mapping = m
		gc.Address = uint64(m.Addr())
	}
	if opts.Debug {
		fmt.Fprint(out, x86.Disassemble(gc.Code, gc.Address))
	}
	log.Info(log.Lifter, "generated code", "entry", fmt.Sprintf("0x%08x", req.Entry),
		"address", fmt.Sprintf("0x%x", gc.Address), "size", gc.Size, "units", t.Stats.Units)
	return gc, nil
}
