package peephole

import (
	"fmt"

	"github.com/xcalcc/llvm-project/internal/machine"
)

// eliminateAssignAfterTest removes a constant assignment at the head of a
// block when every edge into that block has just tested the same fact:
//
//	    c.beqz a0, .LBB0_4          c.beqz a0, .LBB0_4
//	    ...                         ...
//	.LBB0_4:              ===>  .LBB0_4:
//	    c.li a0, 0                  ...
//	    ...
//
// It returns the ID of the rewritten block, or NoBlockID and the reason the
// rewrite did not apply.
func (p *Pass) eliminateAssignAfterTest(f *machine.Func, id machine.BlockID) (machine.BlockID, string) {
	bb := f.Block(id)
	if bb == nil || bb.Empty() || !bb.Back().IsConditionalBranch() {
		return machine.NoBlockID, ""
	}

	test, ok := MatchCondBranch(f, id, bb.Back(), p.target.Zero, true)
	if !ok {
		return machine.NoBlockID, "unrecognized branch"
	}
	target := f.Block(test.Equal)
	if target == nil || target.Empty() {
		return machine.NoBlockID, ""
	}

	dst, imm, ok := MatchConstAssign(target.Front(), p.target.Zero)
	if !ok || dst != test.Reg || imm != test.Imm {
		return machine.NoBlockID, ""
	}

	if target.ID == f.Entry {
		return machine.NoBlockID, "target is the function entry"
	}
	if target.AddressTaken {
		return machine.NoBlockID, "target has its address taken"
	}
	if why := p.provePreds(f, target.ID, dst, imm); why != "" {
		return machine.NoBlockID, why
	}

	target.Erase(0)
	return target.ID, ""
}

// provePreds checks that every predecessor of to ends in an equality test
// of reg against imm whose Equal edge, and only that edge, leads to to.
// It returns the first failure, or "" when the fact holds on every edge.
func (p *Pass) provePreds(f *machine.Func, to machine.BlockID, reg machine.Reg, imm int64) string {
	for _, pid := range f.Block(to).Preds {
		pred := f.Block(pid)
		if pred == nil {
			return fmt.Sprintf("bb%d does not exist", pid)
		}
		if pred.Empty() {
			return fmt.Sprintf("%s is empty", pred.Label())
		}
		last := pred.Back()
		if !last.IsConditionalBranch() {
			return fmt.Sprintf("%s ends in %s", pred.Label(), last.Mnemonic())
		}
		pt, ok := MatchCondBranch(f, pid, last, p.target.Zero, true)
		if !ok {
			return fmt.Sprintf("%s: unrecognized %s", pred.Label(), last.Mnemonic())
		}
		if pt.Reg != reg || pt.Imm != imm {
			return fmt.Sprintf("%s tests %s == %d", pred.Label(), pt.Reg, pt.Imm)
		}
		if pt.Equal != to || pt.NotEqual == to {
			return fmt.Sprintf("%s reaches it when %s != %d", pred.Label(), reg, imm)
		}
	}
	return ""
}
