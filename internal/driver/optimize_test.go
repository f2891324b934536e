package driver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcalcc/llvm-project/internal/asm"
	"github.com/xcalcc/llvm-project/internal/machine"
	"github.com/xcalcc/llvm-project/internal/peephole"
	"github.com/xcalcc/llvm-project/internal/trace"
)

const module = `
	.file	1 "m.c"
first:
	.loc	1 2 3
	c.beqz	a0, .LBB0_2
	j	.LBB0_3
.LBB0_2:
	c.li	a0, 0
	j	.LBB0_3
.LBB0_3:
	ret
.Lfunc_end0:
second:
	addi	a0, a0, 1
	ret
.Lfunc_end1:
third:
	j	.LBB2_1
.LBB2_1:
	ret
.Lfunc_end2:
`

func parseModule(t *testing.T) *machine.Module {
	t.Helper()
	mod, err := asm.ParseString("m.s", module)
	require.NoError(t, err)
	require.Len(t, mod.Funcs, 3)
	return mod
}

func render(t *testing.T, mod *machine.Module) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, asm.Print(&sb, mod))
	return sb.String()
}

func TestOptimizeModule(t *testing.T) {
	mod := parseModule(t)
	rep, err := Optimize(context.Background(), mod, Options{Target: peephole.RISCV(), Jobs: 2})
	require.NoError(t, err)
	require.True(t, rep.Changed())
	require.NoError(t, machine.ValidateModule(mod))

	require.Len(t, rep.Funcs, 3)
	require.Equal(t, "first", rep.Funcs[0].Name)
	require.Equal(t, 2, rep.Funcs[0].Stats.ThreadedJumps)
	require.Equal(t, 1, rep.Funcs[0].Stats.RemovedAssigns)
	require.False(t, rep.Funcs[1].Stats.Changed())
	require.Equal(t, 1, rep.Funcs[2].Stats.ThreadedJumps)

	require.Equal(t, 3, rep.Total.ThreadedJumps)
	require.Equal(t, 1, rep.Total.RemovedAssigns)
	for _, fr := range rep.Funcs {
		require.Equal(t, 1, fr.Rounds)
		require.False(t, fr.Cached)
	}
}

func TestOptimizeRounds(t *testing.T) {
	mod := parseModule(t)
	rep, err := Optimize(context.Background(), mod, Options{Target: peephole.RISCV(), Rounds: 4})
	require.NoError(t, err)

	// a changing run is followed by one that confirms the fixpoint
	require.Equal(t, 2, rep.Funcs[0].Rounds)
	require.Equal(t, 1, rep.Funcs[1].Rounds)
	require.Equal(t, 2, rep.Funcs[2].Rounds)
}

func TestOptimizeMatchesSequential(t *testing.T) {
	want := parseModule(t)
	p := peephole.New(peephole.RISCV(), peephole.Options{})
	for _, f := range want.Funcs {
		p.Run(context.Background(), f)
	}

	got := parseModule(t)
	_, err := Optimize(context.Background(), got, Options{Target: peephole.RISCV(), Jobs: 8})
	require.NoError(t, err)
	require.Equal(t, render(t, want), render(t, got))
}

func TestOptimizeRejectsInvalidModule(t *testing.T) {
	mod := parseModule(t)
	mod.Funcs[1].Blocks[0].Preds = []machine.BlockID{0}

	_, err := Optimize(context.Background(), mod, Options{Target: peephole.RISCV()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid input")
	require.Contains(t, err.Error(), "function second")
}

func TestOptimizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, parseModule(t), Options{Target: peephole.RISCV(), Jobs: 1})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestOptimizeEmpty(t *testing.T) {
	rep, err := Optimize(context.Background(), &machine.Module{Name: "empty"}, Options{})
	require.NoError(t, err)
	require.False(t, rep.Changed())

	rep, err = Optimize(context.Background(), nil, Options{})
	require.NoError(t, err)
	require.Empty(t, rep.Funcs)
}

func TestOptimizeTraces(t *testing.T) {
	ring := trace.NewRingTracer(256, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)

	_, err := Optimize(ctx, parseModule(t), Options{Target: peephole.RISCV()})
	require.NoError(t, err)

	var root uint64
	funcs := 0
	for _, ev := range ring.Snapshot() {
		switch {
		case ev.Kind == trace.KindSpanBegin && ev.Name == peephole.Descriptor.Name:
			root = ev.SpanID
		case ev.Kind == trace.KindSpanBegin && strings.HasPrefix(ev.Name, "func:"):
			require.Equal(t, root, ev.ParentID)
			funcs++
		case ev.Kind == trace.KindPoint:
			t.Fatalf("block events leak at detail level: %+v", ev)
		}
	}
	require.NotZero(t, root)
	require.Equal(t, 3, funcs)
}
