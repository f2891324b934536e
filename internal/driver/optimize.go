// Package driver runs the peephole pass over whole modules: one goroutine
// per function, bounded by a job limit, with an optional on-disk cache of
// already optimised functions.
package driver

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/peephole"
	"github.com/xcalcc/llvm-project/internal/trace"
)

// Options configures a module run.
type Options struct {
	Target peephole.Target
	Pass   peephole.Options
	// Rounds bounds how many times the pass is re-run on a function while
	// it keeps reporting changes. Values below 1 mean a single run.
	Rounds int
	// Jobs bounds concurrently optimised functions; 0 means GOMAXPROCS.
	Jobs int
	// Cache, when set, is consulted before and filled after each function.
	Cache *DiskCache
}

// FuncReport describes what happened to one function.
type FuncReport struct {
	Name   string
	Stats  peephole.Stats
	Rounds int  // pass runs performed
	Cached bool // result came from the cache
}

// Report aggregates a module run. Funcs is in module order.
type Report struct {
	Funcs []FuncReport
	Total peephole.Stats
}

// Changed reports whether any function changed.
func (r Report) Changed() bool { return r.Total.Changed() }

// Optimize validates mod and runs the pass over every function in place.
// Functions are independent: each goroutine owns exactly one function for the
// duration of its run. Cancellation is observed between functions.
func Optimize(ctx context.Context, mod *machine.Module, opts Options) (Report, error) {
	var rep Report
	if mod == nil || len(mod.Funcs) == 0 {
		return rep, nil
	}
	if err := machine.ValidateModule(mod); err != nil {
		return rep, fmt.Errorf("%s: invalid input: %w", mod.Name, err)
	}

	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopePass, peephole.Descriptor.Name, trace.ParentSpan(ctx))
	ctx = trace.WithParent(ctx, span)

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	rounds := max(opts.Rounds, 1)
	pass := peephole.New(opts.Target, opts.Pass)

	// each goroutine writes only its own slot
	reports := make([]FuncReport, len(mod.Funcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(mod.Funcs)))

	for i, f := range mod.Funcs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if f == nil {
				return nil
			}

			fr, out, err := optimizeFunc(gctx, pass, f, opts, rounds)
			if err != nil {
				return fmt.Errorf("function %s: %w", f.Name, err)
			}
			mod.Funcs[i] = out
			reports[i] = fr
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.End("error")
		return rep, err
	}

	rep.Funcs = reports
	for _, fr := range reports {
		rep.Total.Add(fr.Stats)
	}
	span.WithExtra("funcs", strconv.Itoa(len(reports))).
		WithExtra("threaded", strconv.Itoa(rep.Total.ThreadedJumps)).
		WithExtra("removed", strconv.Itoa(rep.Total.RemovedAssigns)).
		End(mod.Name)
	return rep, nil
}

func optimizeFunc(ctx context.Context, pass *peephole.Pass, f *machine.Func, opts Options, rounds int) (FuncReport, *machine.Func, error) {
	fr := FuncReport{Name: f.Name}

	var key Digest
	if opts.Cache != nil {
		var err error
		if key, err = cacheKey(f, opts, rounds); err != nil {
			return fr, f, err
		}
		var payload DiskPayload
		hit, err := opts.Cache.Get(key, &payload)
		if err != nil {
			trace.Point(trace.FromContext(ctx), trace.ScopeFunc, "cache-error", trace.ParentSpan(ctx), err.Error())
		}
		if out := payloadFunc(&payload); hit && out != nil {
			fr.Stats, fr.Rounds, fr.Cached = payload.Stats, payload.Rounds, true
			trace.Point(trace.FromContext(ctx), trace.ScopeFunc, "cache-hit", trace.ParentSpan(ctx), f.Name)
			return fr, out, nil
		}
	}

	for fr.Rounds < rounds {
		st := pass.RunStats(ctx, f)
		fr.Rounds++
		fr.Stats.Add(st)
		if !st.Changed() {
			break
		}
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, funcPayload(f, fr)); err != nil {
			return fr, f, fmt.Errorf("cache: %w", err)
		}
	}
	return fr, f, nil
}
