package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dop251/goja"
	"github.com/spf13/cobra"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifter"
)

const replHelp = `functions:
  code(hex, base)            load little-endian code bytes at base
  load(path, base)           load a raw image file at base
  lift(arch, entry[, end])   translate from entry; end bounds the range
  ir()                       the lifted module as text
  dot()                      the control flow graph in Graphviz format
  units()                    translation units with their edge counts
  run(regs)                  execute with e.g. {r0: 1, lr: 0x2001}
  poke(addr, word) / peek(addr)  guest memory words used by run
`

// session is the state behind the JavaScript console.
type session struct {
	vm  *goja.Runtime
	out io.Writer

	img *arm.Image
	t   *lifter.Translator
	fn  *ir.Function
	mem *ir.SparseMemory
}

func newSession(out io.Writer) *session {
	s := &session{vm: goja.New(), out: out, mem: ir.NewSparseMemory()}
	s.vm.Set("help", func() string { return replHelp })
	s.vm.Set("code", s.code)
	s.vm.Set("load", s.load)
	s.vm.Set("lift", s.lift)
	s.vm.Set("ir", func() (string, error) {
		if s.t == nil {
			return "", errors.New("nothing lifted")
		}
		return s.t.Module().String(), nil
	})
	s.vm.Set("dot", func() (string, error) {
		if s.fn == nil {
			return "", errors.New("nothing lifted")
		}
		return s.fn.ToDot(), nil
	})
	s.vm.Set("units", s.units)
	s.vm.Set("run", s.run)
	s.vm.Set("poke", func(addr, word int64) { s.mem.Write(uint64(addr), 4, uint64(uint32(word))) })
	s.vm.Set("peek", func(addr int64) int64 { return int64(s.mem.Read(uint64(addr), 4)) })
	s.vm.Set("print", func(args ...goja.Value) {
		for _, a := range args {
			fmt.Fprintln(s.out, a.String())
		}
	})
	return s
}

func (s *session) setImage(base uint32, data []byte) {
	s.img = arm.NewImage(base, data)
	s.mem.WriteBytes(uint64(base), data)
	s.t, s.fn = nil, nil
}

func (s *session) code(h string, base int64) error {
	data, err := hex.DecodeString(strings.Join(strings.Fields(h), ""))
	if err != nil {
		return err
	}
	s.setImage(uint32(base), data)
	return nil
}

func (s *session) load(path string, base int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.setImage(uint32(base), data)
	return nil
}

func (s *session) lift(arch string, entry int64, end goja.Value) (map[string]interface{}, error) {
	if s.img == nil {
		return nil, errors.New("no code loaded")
	}
	r := lifter.Range{Start: s.img.Base, End: s.img.Base + uint32(len(s.img.Bytes))}
	if end != nil && !goja.IsUndefined(end) && !goja.IsNull(end) {
		r.End = uint32(end.ToInteger())
	}
	t, fn, err := lifter.Lift(lifter.Request{
		Architecture: arch,
		Entry:        uint32(entry),
		Ranges:       []lifter.Range{r},
		Code:         s.img,
	})
	if err != nil {
		return nil, err
	}
	s.t, s.fn = t, fn
	return map[string]interface{}{
		"units":        t.Stats.Units,
		"instructions": t.Stats.Instructions,
		"exits":        t.Stats.Exits,
		"softFails":    t.Stats.SoftFails,
		"repairs":      t.Stats.Repairs,
	}, nil
}

func (s *session) units() ([]string, error) {
	if s.t == nil {
		return nil, errors.New("nothing lifted")
	}
	var out []string
	for _, u := range s.t.Cache().Units() {
		out = append(out, fmt.Sprintf("%s edges=%d", u, u.Edges))
	}
	return out, nil
}

func (s *session) run(regs map[string]interface{}) (map[string]interface{}, error) {
	if s.fn == nil {
		return nil, errors.New("nothing lifted")
	}
	var assigns []string
	for name, v := range regs {
		assigns = append(assigns, fmt.Sprintf("%s=%v", name, v))
	}
	st, err := parseState(strings.Join(assigns, ","))
	if err != nil {
		return nil, err
	}
	ret, final, err := execute(s.fn, st, s.mem, 0)
	if err != nil {
		return nil, err
	}
	state := map[string]interface{}{
		"exit":  int64(ret),
		"sp":    int64(final.SP),
		"lr":    int64(final.LR),
		"cpsr":  int64(final.CPSR),
		"flags": final.Flags().String(),
	}
	for i, r := range final.R {
		state[fmt.Sprintf("r%d", i)] = int64(r)
	}
	return state, nil
}

// eval runs one line and returns its printable result.
func (s *session) eval(line string) (string, error) {
	v, err := s.vm.RunString(line)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	if _, isObj := v.(*goja.Object); isObj {
		if b, err := v.ToObject(s.vm).MarshalJSON(); err == nil {
			return string(b), nil
		}
	}
	return v.String(), nil
}

func newReplCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive JavaScript console for lifting and running code",
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "armlift> ",
				HistoryFile: history,
				Stdout:      cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("starting readline: %w", err)
			}
			defer rl.Close()

			s := newSession(rl.Stdout())
			fmt.Fprint(rl.Stdout(), "type help() for the available functions\n")
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				res, err := s.eval(line)
				if err != nil {
					fmt.Fprintln(rl.Stderr(), "error:", err)
					continue
				}
				if res != "" {
					fmt.Fprintln(rl.Stdout(), res)
				}
			}
		},
	}
	cmd.Flags().StringVar(&history, "history", filepath.Join(os.TempDir(), "armlift_history.txt"), "history file")
	return cmd
}
