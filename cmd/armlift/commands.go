package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/backend/x86"
	"github.com/colorfulnotion/armlift/codecache"
	"github.com/colorfulnotion/armlift/common"
	"github.com/colorfulnotion/armlift/ir"
	"github.com/colorfulnotion/armlift/lifter"
	log "github.com/colorfulnotion/armlift/log"
)

func newTranslateCmd() *cobra.Command {
	var (
		in          inputFlags
		codeAddress uint64
		out         string
		cacheDir    string
		instrument  bool
		printIR     bool
		disasm      bool
	)
	cmd := &cobra.Command{
		Use:   "translate <image>",
		Short: "Lift an image and compile it to x86-64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := in.request(args[0])
			if err != nil {
				return err
			}
			req.CodeAddress = codeAddress
			req.Options = lifter.Options{
				Debug:                  disasm,
				PrintIR:                printIR,
				InstrumentMemoryAccess: instrument,
				Output:                 cmd.OutOrStdout(),
			}.WithEnv()

			var gc *lifter.GeneratedCode
			hit := false
			if cacheDir != "" {
				store, err := codecache.Open(cacheDir)
				if err != nil {
					return err
				}
				defer store.Close()
				gc, hit, err = codecache.New(store).GetOrInstrument(req, x86.NewGenerator())
				if err != nil {
					return err
				}
			} else if gc, err = lifter.Instrument(req, x86.NewGenerator()); err != nil {
				return err
			}
			defer gc.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "address 0x%x size %d units %d instructions %d exits %d cached %v\n",
				gc.Address, gc.Size, gc.Stats.Units, gc.Stats.Instructions, gc.Stats.Exits, hit)
			if out != "" {
				return os.WriteFile(out, gc.Code, 0o644)
			}
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().Uint64Var(&codeAddress, "code-address", 0x400000, "address the code will run at (0 maps it here)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the machine code to this file")
	cmd.Flags().StringVar(&cacheDir, "cache", env.Str(envCacheDir), "compiled code cache directory")
	cmd.Flags().BoolVar(&instrument, "instrument", false, "route memory accesses through handlers")
	cmd.Flags().BoolVar(&printIR, "print-ir", false, "print the lifted IR")
	cmd.Flags().BoolVar(&disasm, "disasm", false, "disassemble the generated code")
	return cmd
}

// lift is shared by the commands that only need the IR.
func lift(in *inputFlags, path string) (*lifter.Translator, *ir.Function, error) {
	req, err := in.request(path)
	if err != nil {
		return nil, nil, err
	}
	return lifter.Lift(req)
}

func newIRCmd() *cobra.Command {
	var (
		in   inputFlags
		tree bool
	)
	cmd := &cobra.Command{
		Use:   "ir <image>",
		Short: "Print the lifted IR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, _, err := lift(&in, args[0])
			if err != nil {
				return err
			}
			if tree {
				fmt.Fprint(cmd.OutOrStdout(), t.Module().Tree())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Module().String())
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().BoolVar(&tree, "tree", false, "print a block summary instead")
	return cmd
}

func newDotCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "dot <image>",
		Short: "Print the control flow graph in Graphviz format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, fn, err := lift(&in, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), fn.ToDot())
			return nil
		},
	}
	in.register(cmd)
	return cmd
}

func newGraphCmd() *cobra.Command {
	var (
		in  inputFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "graph <image>",
		Short: "Render the control flow graph as an HTML page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, fn, err := lift(&in, args[0])
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return lifter.RenderCFG(w, fn, t.Cache())
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

var regNames = map[string]int{
	"sp": 13, "lr": 14, "cpsr": 15,
}

// parseState parses "r0=1,sp=0x8000" into a state.
func parseState(s string) (arm.State, error) {
	var words [arm.StateWords]uint32
	for _, kv := range strings.Split(s, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return arm.State{}, fmt.Errorf("register %q: want name=value", kv)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		idx, ok := regNames[name]
		if !ok {
			var n int
			if _, err := fmt.Sscanf(name, "r%d", &n); err != nil || n < 0 || n > 12 || fmt.Sprintf("r%d", n) != name {
				return arm.State{}, fmt.Errorf("unknown register %q", name)
			}
			idx = n
		}
		v, err := parseU32(val)
		if err != nil {
			return arm.State{}, fmt.Errorf("register %s: %w", name, err)
		}
		words[idx] = v
	}
	return arm.StateFromWords(words[:]), nil
}

const (
	runStateAddr = 0x1_0000_0000
	runInstrAddr = 0x1_0000_1000
)

// execute runs fn on the IR interpreter with guest memory mem.
func execute(fn *ir.Function, st arm.State, mem *ir.SparseMemory, maxSteps int) (uint32, arm.State, error) {
	in := ir.NewInterpreter(mem)
	if maxSteps > 0 {
		in.MaxSteps = maxSteps
	}
	for i, w := range st.Words() {
		in.Mem.Write(runStateAddr+uint64(4*i), 4, uint64(w))
	}
	ret, err := in.Run(fn, runStateAddr, runInstrAddr)
	if err != nil {
		return 0, arm.State{}, err
	}
	return uint32(ret), arm.StateFromWords(in.Mem.Uint32s(runStateAddr, arm.StateWords)), nil
}

func newRunCmd() *cobra.Command {
	var (
		in       inputFlags
		regs     string
		expect   string
		maxSteps int
		plain    bool
	)
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Lift an image and execute it on the IR interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := in.request(args[0])
			if err != nil {
				return err
			}
			_, fn, err := lifter.Lift(req)
			if err != nil {
				return err
			}
			st, err := parseState(regs)
			if err != nil {
				return err
			}
			img := req.Code.(*arm.Image)
			mem := ir.NewSparseMemory()
			mem.WriteBytes(uint64(img.Base), img.Bytes)

			ret, final, err := execute(fn, st, mem, maxSteps)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "exit 0x%08x\n", ret)
			state, _ := json.MarshalIndent(final, "", "  ")
			fmt.Fprintln(w, string(state))
			log.Debug(log.CLI, "run finished", "exit", fmt.Sprintf("0x%08x", ret), "flags", final.Flags().String())

			if expect == "" {
				return nil
			}
			want, err := parseState(expect)
			if err != nil {
				return fmt.Errorf("--expect: %w", err)
			}
			diff, err := lifter.DiffStates(want, final, !plain)
			if err != nil {
				return err
			}
			if diff != "" {
				fmt.Fprint(w, diff)
				return fmt.Errorf("final state differs from expected")
			}
			fmt.Fprintln(w, common.Colorize("state matches", common.ColorGreen, plain))
			return nil
		},
	}
	in.register(cmd)
	cmd.Flags().StringVar(&regs, "regs", "", "initial registers, e.g. r0=1,sp=0x8000,lr=0x2001")
	cmd.Flags().StringVar(&expect, "expect", "", "expected final registers, compared in full")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "interpreter step limit")
	cmd.Flags().BoolVar(&plain, "no-color", false, "disable colored output")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "armlift %s (%s)\n", common.Version, common.GetCommitHash())
		},
	}
}
