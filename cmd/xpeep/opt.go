package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xcalcc/llvm-project/internal/asm"
	"github.com/xcalcc/llvm-project/internal/driver"
)

var optCmd = &cobra.Command{
	Use:   "opt [flags] [file.s...]",
	Short: "Optimize assembly listings (stdin when no file is given)",
	Long: `Parse each listing, run the peephole pass over every function and print
the rewritten listing. With several inputs, -o names a directory that
receives one output per input.`,
	RunE: runOpt,
}

func init() {
	registerOptFlags(optCmd)
}

func registerOptFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "output file, or directory with several inputs (default: stdout)")
	cmd.Flags().Int("jobs", 0, "max functions optimized in parallel (0=auto)")
	cmd.Flags().Int("rounds", 1, "re-run the pass on a function while it keeps changing, at most this often")
	cmd.Flags().Bool("no-jump-to-return", false, "disable jump-to-return threading")
	cmd.Flags().Bool("no-assign-after-test", false, "disable redundant assignment elimination")
	cmd.Flags().Bool("cache", false, "reuse optimized functions from the on-disk cache")
	cmd.Flags().Bool("stats", false, "print per-function rewrite counts to stderr")
}

func runOpt(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	inputs := inputsOrStdin(args)
	env, err := newRunEnv(cmd, args)
	if err != nil {
		return err
	}
	defer env.finish()

	out, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	showStats, err := cmd.Flags().GetBool("stats")
	if err != nil {
		return fmt.Errorf("failed to get stats flag: %w", err)
	}
	many := len(inputs) > 1
	if many && out != "" && out != "-" {
		if info, err := os.Stat(out); err != nil || !info.IsDir() {
			return fmt.Errorf("-o %s: must be an existing directory when optimizing %d files", out, len(inputs))
		}
	}

	opts, err := env.driverOptions()
	if err != nil {
		return err
	}

	var total driver.Report
	for _, input := range inputs {
		rep, err := optimizeOne(env, opts, input, outputPath(out, input, many))
		if err != nil {
			dumpTrace(cmd.ErrOrStderr())
			return err
		}
		if showStats {
			printReport(cmd.ErrOrStderr(), displayName(input), rep)
		}
		total.Funcs = append(total.Funcs, rep.Funcs...)
		total.Total.Add(rep.Total)
	}

	if !env.quiet && !showStats {
		printSummary(cmd.ErrOrStderr(), total)
	}
	return nil
}

func optimizeOne(env *runEnv, opts driver.Options, input, dst string) (driver.Report, error) {
	ctx, span := env.fileSpan(input)
	defer span.End("")

	mod, err := env.parse(input)
	if err != nil {
		return driver.Report{}, err
	}

	var rep driver.Report
	err = env.timer.Measure("optimize "+displayName(input), func() error {
		var err error
		rep, err = driver.Optimize(ctx, mod, opts)
		return err
	})
	if err != nil {
		return rep, err
	}

	err = env.timer.Measure("emit "+displayName(input), func() error {
		var buf bytes.Buffer
		if err := asm.Print(&buf, mod); err != nil {
			return err
		}
		return writeOutput(env.cmd.OutOrStdout(), dst, buf.Bytes())
	})
	return rep, err
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
