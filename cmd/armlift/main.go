// armlift lifts ARM and Thumb code into SSA IR and compiles it to x86-64.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/colorfulnotion/armlift/arm"
	"github.com/colorfulnotion/armlift/lifter"
	log "github.com/colorfulnotion/armlift/log"
)

const (
	envLogLevel = "ARMLIFT_LOG_LEVEL"
	envCacheDir = "ARMLIFT_CACHE_DIR"
	envModules  = "ARMLIFT_LOG_MODULES"
)

// inputFlags select the code a command works on.
type inputFlags struct {
	arch   string
	base   uint32
	entry  string
	ranges []string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.arch, "arch", "thumb", "instruction set: thumb or arm")
	cmd.Flags().Uint32Var(&f.base, "base", 0x1000, "address the image is loaded at")
	cmd.Flags().StringVar(&f.entry, "entry", "", "entry address (default: base)")
	cmd.Flags().StringSliceVar(&f.ranges, "range", nil, "translatable range start:end, repeatable (default: whole image)")
}

// request builds a translation request for the raw image in path.
func (f *inputFlags) request(path string) (lifter.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lifter.Request{}, err
	}
	if len(data) == 0 {
		return lifter.Request{}, fmt.Errorf("%s: empty image", path)
	}
	req := lifter.Request{
		Architecture: f.arch,
		Entry:        f.base,
		Code:         arm.NewImage(f.base, data),
	}
	if f.entry != "" {
		if req.Entry, err = parseU32(f.entry); err != nil {
			return req, fmt.Errorf("--entry: %w", err)
		}
	}
	if len(f.ranges) == 0 {
		req.Ranges = []lifter.Range{{Start: f.base, End: f.base + uint32(len(data))}}
		return req, nil
	}
	for _, s := range f.ranges {
		r, err := parseRange(s)
		if err != nil {
			return req, err
		}
		req.Ranges = append(req.Ranges, r)
	}
	return req, nil
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	return uint32(v), err
}

func parseRange(s string) (lifter.Range, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return lifter.Range{}, fmt.Errorf("range %q: want start:end", s)
	}
	start, err := parseU32(lo)
	if err != nil {
		return lifter.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	end, err := parseU32(hi)
	if err != nil {
		return lifter.Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	if end <= start {
		return lifter.Range{}, fmt.Errorf("range %q is empty", s)
	}
	return lifter.Range{Start: start, End: end}, nil
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		modules  string
	)
	rootCmd := &cobra.Command{
		Use:           "armlift",
		Short:         "Lift ARM/Thumb code to SSA IR and x86-64",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := log.ParseLevel(logLevel); err != nil {
				return err
			}
			log.InitLogger(logLevel)
			log.EnableModules(modules)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env.Str(envLogLevel, "info"), "trace, debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&modules, "debug", env.Str(envModules), "comma-separated log modules to enable")

	rootCmd.AddCommand(
		newTranslateCmd(),
		newIRCmd(),
		newDotCmd(),
		newGraphCmd(),
		newRunCmd(),
		newReplCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "armlift:", err)
		os.Exit(1)
	}
}
