package asm

import (
	"fmt"
	"strconv"

	"github.com/xcalcc/llvm-project/internal/machine"
)

type form struct {
	op    machine.Opcode
	nargs int  // operand count including the label
	swap  bool // pseudo-branch written with its comparison operands reversed
	zero  int  // position of an implicit zero operand, or -1
}

var forms = map[string]form{
	"c.li":   {op: machine.OpLoadImm, nargs: 2, zero: -1},
	"li":     {op: machine.OpLoadImm, nargs: 2, zero: -1},
	"addi":   {op: machine.OpAddImm, nargs: 3, zero: -1},
	"mv":     {op: machine.OpCopy, nargs: 2, zero: -1},
	"c.mv":   {op: machine.OpCopy, nargs: 2, zero: -1},
	"j":      {op: machine.OpJump, nargs: 1, zero: -1},
	"c.j":    {op: machine.OpJump, nargs: 1, zero: -1},
	"beq":    {op: machine.OpBranchEq, nargs: 3, zero: -1},
	"bne":    {op: machine.OpBranchNe, nargs: 3, zero: -1},
	"c.beqz": {op: machine.OpBranchEqZero, nargs: 2, zero: -1},
	"beqz":   {op: machine.OpBranchEqZero, nargs: 2, zero: -1},
	"c.bnez": {op: machine.OpBranchNeZero, nargs: 2, zero: -1},
	"bnez":   {op: machine.OpBranchNeZero, nargs: 2, zero: -1},
	"blt":    {op: machine.OpBranchLt, nargs: 3, zero: -1},
	"bge":    {op: machine.OpBranchGe, nargs: 3, zero: -1},
	"bltu":   {op: machine.OpBranchLtu, nargs: 3, zero: -1},
	"bgeu":   {op: machine.OpBranchGeu, nargs: 3, zero: -1},
	"bgt":    {op: machine.OpBranchLt, nargs: 3, swap: true, zero: -1},
	"ble":    {op: machine.OpBranchGe, nargs: 3, swap: true, zero: -1},
	"bgtu":   {op: machine.OpBranchLtu, nargs: 3, swap: true, zero: -1},
	"bleu":   {op: machine.OpBranchGeu, nargs: 3, swap: true, zero: -1},
	"bltz":   {op: machine.OpBranchLt, nargs: 2, zero: 1},
	"bgez":   {op: machine.OpBranchGe, nargs: 2, zero: 1},
	"blez":   {op: machine.OpBranchGe, nargs: 2, zero: 0},
	"bgtz":   {op: machine.OpBranchLt, nargs: 2, zero: 0},
	"ret":    {op: machine.OpReturn, nargs: 0, zero: -1},
}

// decode turns one mnemonic and its operand texts into an instruction. For a
// branch the target label is returned separately and the instruction carries
// a placeholder block operand until the label is resolved.
func decode(mnemonic string, args []string) (machine.Instr, string, error) {
	if (mnemonic == "jr" || mnemonic == "c.jr") && len(args) == 1 && args[0] == "ra" {
		return machine.Instr{Op: machine.OpReturn, Name: mnemonic, Args: operands(args)}, "", nil
	}

	fm, known := forms[mnemonic]
	if !known || (fm.op.Class() == machine.ClassJump && len(args) == 1 && !isLocalLabel(args[0])) {
		// tail jumps to other functions stay opaque, like everything unmodelled
		return machine.Instr{Op: machine.OpOther, Name: mnemonic, Args: operands(args)}, "", nil
	}
	if len(args) != fm.nargs {
		return machine.Instr{}, "", fmt.Errorf("want %d operands, got %d", fm.nargs, len(args))
	}

	in := machine.Instr{Op: fm.op}
	if mnemonic != fm.op.String() && !fm.swap && fm.zero < 0 {
		in.Name = mnemonic
	}

	var label string
	if cls := fm.op.Class(); cls == machine.ClassJump || cls == machine.ClassCondBranch {
		label = args[len(args)-1]
		if !isLabel(label) {
			return machine.Instr{}, "", fmt.Errorf("bad branch target %q", label)
		}
		args = args[:len(args)-1]
	}

	ops := operands(args)
	switch {
	case fm.swap:
		ops[0], ops[1] = ops[1], ops[0]
	case fm.zero >= 0:
		ops = append(ops[:fm.zero:fm.zero], append([]machine.Operand{machine.RegOp(machine.X0)}, ops[fm.zero:]...)...)
	}
	if label != "" {
		ops = append(ops, machine.BlockOp(machine.NoBlockID))
	}
	in.Args = ops
	return in, label, nil
}

func operands(args []string) []machine.Operand {
	if len(args) == 0 {
		return nil
	}
	out := make([]machine.Operand, len(args))
	for i, a := range args {
		out[i] = operand(a)
	}
	return out
}

func operand(s string) machine.Operand {
	if r, ok := machine.ParseReg(s); ok {
		return machine.RegOp(r)
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return machine.ImmOp(v)
	}
	return machine.SymOp(s)
}
