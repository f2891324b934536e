package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/xcalcc/llvm-project/internal/driver"
	"github.com/xcalcc/llvm-project/internal/observ"
)

func printTimings(out io.Writer, timer *observ.Timer) {
	if out == nil || timer == nil {
		return
	}
	fmt.Fprint(out, timer.Summary())
}

// printReport lists every function of one input with its rewrite counts.
func printReport(out io.Writer, name string, rep driver.Report) {
	color.New(color.Bold).Fprintf(out, "%s\n", name)
	for _, fr := range rep.Funcs {
		mark := color.GreenString("unchanged")
		if fr.Stats.Changed() {
			mark = color.YellowString("changed  ")
		}
		cached := ""
		if fr.Cached {
			cached = color.CyanString(" (cached)")
		}
		fmt.Fprintf(out, "  %s %-24s threaded=%d removed=%d rounds=%d%s\n",
			mark, fr.Name, fr.Stats.ThreadedJumps, fr.Stats.RemovedAssigns, fr.Rounds, cached)
	}
}

func printSummary(out io.Writer, rep driver.Report) {
	if !rep.Changed() {
		fmt.Fprintf(out, "%d function(s), nothing to rewrite\n", len(rep.Funcs))
		return
	}
	fmt.Fprintf(out, "%d function(s): %s jump(s) threaded to returns, %s redundant assignment(s) removed\n",
		len(rep.Funcs),
		color.YellowString("%d", rep.Total.ThreadedJumps),
		color.YellowString("%d", rep.Total.RemovedAssigns))
}
