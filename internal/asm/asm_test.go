package asm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcalcc/llvm-project/internal/machine"
)

const listing = `	.text
	.file	1 "sel.c"
	.globl	sel                             # -- Begin function sel
	.type	sel,@function
sel:                                    # @sel
	.loc	1 3 0
	c.beqz	a0, .LBB0_2
# %bb.1:                                # %then
	.loc	1 4 5
	addi	a1, a1, 1
	j	.LBB0_3
.LBB0_2:                                # %else
	c.li	a0, 0
.LBB0_3:
	.loc	1 7 1
	ret
.Lfunc_end0:
	.size	sel, .Lfunc_end0-sel
`

func TestParseListing(t *testing.T) {
	mod, err := ParseString("sel.s", listing)
	require.NoError(t, err)
	require.Equal(t, "sel.c", mod.Files[1])
	require.Len(t, mod.Funcs, 1)

	f := mod.Funcs[0]
	require.Equal(t, "sel", f.Name)
	require.Len(t, f.Blocks, 4)
	require.NoError(t, machine.Validate(f))

	entry := f.Blocks[f.Entry]
	require.Equal(t, machine.OpBranchEqZero, entry.Back().Op)
	require.Equal(t, machine.DebugLoc{File: 1, Line: 3}, entry.Back().Loc)

	elseID, ok := f.BlockByName(".LBB0_2")
	require.True(t, ok)
	tgt, ok := entry.Back().Target()
	require.True(t, ok)
	require.Equal(t, elseID, tgt)

	join, ok := f.BlockByName(".LBB0_3")
	require.True(t, ok)
	require.ElementsMatch(t, []machine.BlockID{1, elseID}, f.Blocks[join].Preds)
	require.Equal(t, machine.DebugLoc{File: 1, Line: 7, Col: 1}, f.Blocks[join].Front().Loc)

	li := f.Blocks[elseID].Front()
	require.Equal(t, machine.OpLoadImm, li.Op)
	require.Equal(t, "c.li a0, 0", li.String())
}

func TestDecodeForms(t *testing.T) {
	tests := []struct {
		src  string
		op   machine.Opcode
		args string
	}{
		{"li a0, 5", machine.OpLoadImm, "a0, 5"},
		{"c.li a0, -1", machine.OpLoadImm, "a0, -1"},
		{"addi a0, zero, 0x10", machine.OpAddImm, "a0, zero, 16"},
		{"mv a1, zero", machine.OpCopy, "a1, zero"},
		{"beq a0, zero, .L1", machine.OpBranchEq, "a0, zero"},
		{"bnez a2, .L1", machine.OpBranchNeZero, "a2"},
		{"bgt a0, a1, .L1", machine.OpBranchLt, "a1, a0"},
		{"blez a3, .L1", machine.OpBranchGe, "zero, a3"},
		{"bltz a3, .L1", machine.OpBranchLt, "a3, zero"},
		{"jr ra", machine.OpReturn, "ra"},
		{"sd ra, 8(sp)", machine.OpOther, "ra, 8(sp)"},
		{"tail callee", machine.OpOther, "callee"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			mnemonic, rest, _ := strings.Cut(tt.src, " ")
			in, label, err := decode(mnemonic, splitOperands(rest))
			require.NoError(t, err)
			require.Equal(t, tt.op, in.Op)

			var got []string
			for _, a := range in.Args {
				if a.Kind != machine.OperandBlock {
					got = append(got, a.String())
				}
			}
			require.Equal(t, tt.args, strings.Join(got, ", "))
			if in.IsConditionalBranch() || in.IsUnconditionalBranch() {
				require.Equal(t, ".L1", label)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined label", "f:\n\tj .Lnowhere\n", "undefined label .Lnowhere"},
		{"duplicate label", "f:\n.L1:\n\tnop\n.L1:\n\tret\n", "duplicate label .L1"},
		{"operand count", "f:\n\tbeq a0, .L1\n.L1:\n\tret\n", "want 3 operands"},
		{"outside function", "\tret\n", "outside of a function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString("bad.s", tt.src)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
			require.Contains(t, err.Error(), "bad.s:")
		})
	}
}

func TestParseTailCallsAndJumpTables(t *testing.T) {
	mod, err := ParseString("jt.s", `
f:
	c.beqz	a0, .LBB0_3
	lui	a1, %hi(.LJTI0_0)
	addi	a1, a1, %lo(.LJTI0_0)
	jr	a1
.LBB0_2:
	tail	g
.LBB0_3:
	ret
.Lfunc_end0:
	.section	.rodata,"a",@progbits
.LJTI0_0:
	.word	.LBB0_2-.LJTI0_0
	.word	.LBB0_3
`)
	require.NoError(t, err)
	require.Len(t, mod.Funcs, 1)
	f := mod.Funcs[0]
	require.NoError(t, machine.Validate(f))
	require.Len(t, f.Blocks, 4)

	indirect := f.Block(1)
	require.Equal(t, "jr", indirect.Back().Mnemonic())
	require.True(t, indirect.Back().EndsFlow())
	require.Empty(t, f.Successors(1), "indirect jump has no modelled successors")

	for _, name := range []string{".LBB0_2", ".LBB0_3"} {
		id, ok := f.BlockByName(name)
		require.True(t, ok)
		require.True(t, f.Block(id).AddressTaken, name)
		require.Empty(t, f.Successors(id))
	}
	require.False(t, f.Block(f.Entry).AddressTaken)
}

func TestRoundTrip(t *testing.T) {
	mod, err := ParseString("sel.s", listing)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Print(&sb, mod))
	out := sb.String()
	require.Contains(t, out, "\t.file\t1 \"sel.c\"\n")
	require.Contains(t, out, "\tc.beqz\ta0, .LBB0_2\n")
	require.Contains(t, out, "\t.loc\t1 7 1\n")

	again, err := ParseString("sel.s", out)
	require.NoError(t, err)
	require.Len(t, again.Funcs, 1)
	require.Equal(t, String(mod.Funcs[0]), String(again.Funcs[0]))
	require.Equal(t, mod.Funcs[0].NumInstrs(), again.Funcs[0].NumInstrs())
}

func TestPrintGeneratesLabels(t *testing.T) {
	f := &machine.Func{Name: "g"}
	f.Entry = f.NewBlock("")
	exit := f.NewBlock("")
	f.Blocks[f.Entry].Append(machine.NewJump(exit, machine.DebugLoc{}))
	f.Blocks[exit].Append(machine.NewReturn(machine.DebugLoc{}))
	f.RebuildPreds()

	out := String(f)
	require.Equal(t, "g:\n\tj\t.Lxp0_1\n.Lxp0_1:\n\tret\n.Lfunc_end0:\n", out)

	mod, err := ParseString("g.s", out)
	require.NoError(t, err)
	require.NoError(t, machine.ValidateModule(mod))
}
