package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/xcalcc/llvm-project/internal/asm"
	"github.com/xcalcc/llvm-project/internal/driver"
	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/observ"
	"github.com/xcalcc/llvm-project/internal/peephole"
	"github.com/xcalcc/llvm-project/internal/trace"
)

// runEnv is what opt and check share once flags and xpeep.toml are resolved.
type runEnv struct {
	cmd      *cobra.Command
	settings settings
	timer    *observ.Timer
	timings  bool
	quiet    bool
}

func newRunEnv(cmd *cobra.Command, inputs []string) (*runEnv, error) {
	s, err := resolveSettings(cmd, inputs)
	if err != nil {
		return nil, err
	}
	if err := setupTracing(cmd, s.TraceLevel); err != nil {
		return nil, err
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	return &runEnv{cmd: cmd, settings: s, timer: observ.NewTimer(), timings: timings, quiet: quiet}, nil
}

func (e *runEnv) ctx() context.Context {
	if ctx := e.cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (e *runEnv) target() peephole.Target {
	t := peephole.RISCV()
	t.Zero = e.settings.Zero
	return t
}

func (e *runEnv) driverOptions() (driver.Options, error) {
	opts := driver.Options{
		Target: e.target(),
		Pass:   e.settings.Pass,
		Rounds: e.settings.Rounds,
		Jobs:   e.settings.Jobs,
	}
	if e.settings.Cache {
		cache, err := driver.OpenDiskCache("xpeep")
		if err != nil {
			return opts, fmt.Errorf("cache: %w", err)
		}
		opts.Cache = cache
	}
	return opts, nil
}

// parse reads one listing; "-" is standard input.
func (e *runEnv) parse(input string) (*machine.Module, error) {
	var mod *machine.Module
	err := e.timer.Measure("parse "+displayName(input), func() error {
		var r io.Reader = e.cmd.InOrStdin()
		if input != "-" {
			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		var err error
		mod, err = asm.Parse(displayName(input), r)
		return err
	})
	return mod, err
}

// fileSpan opens the driver-level span for one input.
func (e *runEnv) fileSpan(input string) (context.Context, *trace.Span) {
	ctx := e.ctx()
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeDriver, "file:"+displayName(input), 0)
	return trace.WithParent(ctx, span), span
}

func (e *runEnv) finish() {
	if e.timings {
		printTimings(e.cmd.ErrOrStderr(), e.timer)
	}
}

func displayName(input string) string {
	if input == "-" {
		return "<stdin>"
	}
	return input
}

func inputsOrStdin(args []string) []string {
	if len(args) == 0 {
		return []string{"-"}
	}
	return args
}

// outputPath picks where the listing for input goes: "" means stdout.
func outputPath(out, input string, many bool) string {
	if out == "" || out == "-" {
		return ""
	}
	if many {
		return filepath.Join(out, filepath.Base(input))
	}
	return out
}
