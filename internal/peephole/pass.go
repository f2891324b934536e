package peephole

import (
	"context"
	"strconv"

	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/trace"
)

// PassDescriptor names a pass or one of its transforms.
type PassDescriptor struct {
	Name string
	Desc string
}

// Descriptor is how the pipeline registers this pass.
var Descriptor = PassDescriptor{Name: "xcal-peephole", Desc: "Xcalibyte RISC-V Peephole Optimization"}

// Transform selects one rewrite of the pass.
type Transform uint8

const (
	TransformJumpToReturn Transform = iota
	TransformAssignAfterTest
)

// Transforms lists the rewrites in the order they are applied to a block.
var Transforms = [...]PassDescriptor{
	TransformJumpToReturn:    {Name: "jump-to-return", Desc: "Jump-to-Return Threading"},
	TransformAssignAfterTest: {Name: "assign-after-branch-test", Desc: "Redundant Assignment Elimination"},
}

func (t Transform) String() string {
	if int(t) < len(Transforms) {
		return Transforms[t].Name
	}
	return "transform(" + strconv.Itoa(int(t)) + ")"
}

// Options turns individual transforms off.
type Options struct {
	DisableJumpToReturn    bool
	DisableAssignAfterTest bool
}

// Enabled reports whether t runs under these options.
func (o Options) Enabled(t Transform) bool {
	switch t {
	case TransformJumpToReturn:
		return !o.DisableJumpToReturn
	case TransformAssignAfterTest:
		return !o.DisableAssignAfterTest
	}
	return false
}

// Stats counts what one run did.
type Stats struct {
	Blocks         int
	ThreadedJumps  int
	RemovedAssigns int
}

// Changed reports whether the run modified the function.
func (s Stats) Changed() bool {
	return s.ThreadedJumps > 0 || s.RemovedAssigns > 0
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Blocks += o.Blocks
	s.ThreadedJumps += o.ThreadedJumps
	s.RemovedAssigns += o.RemovedAssigns
}

// Pass is the peephole pass. A Pass holds no per-function state and may be
// shared by goroutines working on different functions.
type Pass struct {
	target Target
	opts   Options
}

// New creates a pass for target.
func New(target Target, opts Options) *Pass {
	return &Pass{target: target, opts: opts}
}

// Run makes one sweep over f in layout order, applying jump-to-return
// threading and then redundant-assignment elimination to every block, and
// reports whether any block changed. Rewrites exposed by an earlier rewrite
// in the same sweep are left for the next invocation.
func (p *Pass) Run(ctx context.Context, f *machine.Func) bool {
	return p.RunStats(ctx, f).Changed()
}

// RunStats is Run with counters.
func (p *Pass) RunStats(ctx context.Context, f *machine.Func) Stats {
	var st Stats
	if f == nil {
		return st
	}

	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeFunc, "func:"+f.Name, trace.ParentSpan(ctx))
	parent := span.ID()

	for i := range f.Blocks {
		id := f.Blocks[i].ID
		st.Blocks++
		trace.Point(tr, trace.ScopeBlock, "visit", parent, f.Blocks[i].Label())

		if p.opts.Enabled(TransformJumpToReturn) && p.threadJumpToReturn(f, id) {
			st.ThreadedJumps++
			trace.Point(tr, trace.ScopeBlock, TransformJumpToReturn.String(), parent, f.Blocks[i].Label())
		}

		if p.opts.Enabled(TransformAssignAfterTest) {
			switch to, why := p.eliminateAssignAfterTest(f, id); {
			case to != machine.NoBlockID:
				st.RemovedAssigns++
				trace.Point(tr, trace.ScopeBlock, TransformAssignAfterTest.String(), parent,
					f.Blocks[i].Label()+" -> "+f.Blocks[to].Label())
			case why != "":
				trace.Point(tr, trace.ScopeBlock, "reject", parent, f.Blocks[i].Label()+": "+why)
			}
		}
	}

	span.WithExtra("threaded", strconv.Itoa(st.ThreadedJumps)).
		WithExtra("removed", strconv.Itoa(st.RemovedAssigns)).
		End(f.Name)
	return st
}
