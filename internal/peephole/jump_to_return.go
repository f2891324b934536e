package peephole

import "github.com/xcalcc/llvm-project/internal/machine"

// threadJumpToReturn rewrites
//
//	    j .LBB0_1               ret
//	    ...            ===>     ...
//	.LBB0_1:                .LBB0_1:
//	    ret                     ret
//
// when the jump target holds nothing but the return. The target block is left
// intact; it may still be reached from elsewhere.
func (p *Pass) threadJumpToReturn(f *machine.Func, id machine.BlockID) bool {
	bb := f.Block(id)
	if bb == nil || bb.Empty() {
		return false
	}
	last := bb.Back()
	if !last.IsUnconditionalBranch() {
		return false
	}
	to, ok := last.Target()
	if !ok {
		return false
	}
	target := f.Block(to)
	if target == nil || target.Len() != 1 || !target.Front().IsReturn() {
		return false
	}

	loc := last.Loc
	bb.Append(p.target.newReturn(loc))
	bb.Erase(bb.Len() - 2)
	f.RemoveEdge(id, to)
	return true
}
