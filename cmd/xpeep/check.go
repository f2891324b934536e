package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/peephole"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [file.s...]",
	Short: "Validate listings and report what the pass would rewrite",
	Long: `Parse each listing, check the CFG invariants of every function and
dry-run the peephole pass on a copy. Nothing is written.`,
	RunE: runCheck,
}

func init() {
	registerCheckFlags(checkCmd)
}

func registerCheckFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-jump-to-return", false, "disable jump-to-return threading")
	cmd.Flags().Bool("no-assign-after-test", false, "disable redundant assignment elimination")
	cmd.Flags().Bool("fail-on-change", false, "exit with an error when the pass would change anything")
}

// funcCheck is the dry-run outcome for one function.
type funcCheck struct {
	Name        string
	Blocks      int
	Unreachable int
	Stats       peephole.Stats
	Err         error
}

var errWouldChange = errors.New("the pass would change the input")

func runCheck(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	inputs := inputsOrStdin(args)
	env, err := newRunEnv(cmd, args)
	if err != nil {
		return err
	}
	defer env.finish()

	failOnChange, err := cmd.Flags().GetBool("fail-on-change")
	if err != nil {
		return fmt.Errorf("failed to get fail-on-change flag: %w", err)
	}

	pass := peephole.New(env.target(), env.settings.Pass)
	invalid, changes := 0, 0
	for _, input := range inputs {
		mod, err := env.parse(input)
		if err != nil {
			return err
		}

		var results []funcCheck
		_ = env.timer.Measure("check "+displayName(input), func() error {
			ctx, span := env.fileSpan(input)
			defer span.End("")
			for _, f := range mod.Funcs {
				results = append(results, checkFunc(ctx, pass, f))
			}
			return nil
		})

		fileInvalid := 0
		for _, r := range results {
			if r.Err != nil {
				fileInvalid++
			}
			if r.Stats.Changed() {
				changes++
			}
		}
		invalid += fileInvalid
		if !env.quiet || fileInvalid > 0 {
			printChecks(cmd.OutOrStdout(), displayName(input), results)
		}
	}

	switch {
	case invalid > 0:
		return fmt.Errorf("%d invalid function(s)", invalid)
	case failOnChange && changes > 0:
		return fmt.Errorf("%w: %d function(s)", errWouldChange, changes)
	}
	return nil
}

// checkFunc validates f and dry-runs the pass on a copy of it.
func checkFunc(ctx context.Context, pass *peephole.Pass, f *machine.Func) funcCheck {
	r := funcCheck{Name: f.Name, Blocks: len(f.Blocks)}
	if r.Err = machine.Validate(f); r.Err != nil {
		return r
	}
	for _, ok := range f.Reachable() {
		if !ok {
			r.Unreachable++
		}
	}
	r.Stats = pass.RunStats(ctx, f.Clone())
	return r
}

func printChecks(w io.Writer, name string, results []funcCheck) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s\n", name)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "  %s %s: %v\n", color.RedString("invalid"), r.Name, r.Err)
		case r.Stats.Changed():
			fmt.Fprintf(w, "  %s %s: %d jump(s) to threaded returns, %d redundant assignment(s)\n",
				color.YellowString("rewrite"), r.Name, r.Stats.ThreadedJumps, r.Stats.RemovedAssigns)
		default:
			fmt.Fprintf(w, "  %s %s\n", color.GreenString("ok"), r.Name)
		}
		if r.Unreachable > 0 {
			fmt.Fprintf(w, "    note: %d of %d block(s) unreachable from entry\n", r.Unreachable, r.Blocks)
		}
	}
}
