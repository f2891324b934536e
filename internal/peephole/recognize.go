package peephole

import "github.com/xcalcc/llvm-project/internal/machine"

// MatchConstAssign reports whether in unconditionally writes a known constant
// to a register, in any of the three encodings the backend produces:
//
//	c.li rd, imm
//	addi rd, zero, imm   (or addi rd, imm, zero)
//	mv   rd, zero        (imm = 0)
//
// Writes to the zero register itself are discarded by the hardware and are
// never reported.
func MatchConstAssign(in *machine.Instr, zero machine.Reg) (dst machine.Reg, imm int64, ok bool) {
	if in == nil || len(in.Args) < 2 || !in.Args[0].IsReg() || in.Args[0].Reg == zero {
		return 0, 0, false
	}
	dst = in.Args[0].Reg

	switch in.Op {
	case machine.OpLoadImm:
		if src := in.Args[1]; src.IsImm() {
			return dst, src.Imm, true
		}

	case machine.OpAddImm:
		if len(in.Args) < 3 {
			return 0, 0, false
		}
		lhs, rhs := in.Args[1], in.Args[2]
		if lhs.IsRegOf(zero) && rhs.IsImm() {
			return dst, rhs.Imm, true
		}
		if lhs.IsImm() && rhs.IsRegOf(zero) {
			return dst, lhs.Imm, true
		}

	case machine.OpCopy:
		if in.Args[1].IsRegOf(zero) {
			return dst, 0, true
		}
	}
	return 0, 0, false
}

// BranchTest is what a conditional branch proves: on the Equal edge Reg holds
// Imm, on the NotEqual edge it does not.
type BranchTest struct {
	Reg      machine.Reg
	Imm      int64
	Equal    machine.BlockID
	NotEqual machine.BlockID
}

// MatchCondBranch decodes a register-versus-constant equality branch:
//
//	beq  rs, imm|zero, T    beq  imm|zero, rs, T    c.beqz rs, T
//	bne  rs, imm|zero, T    bne  imm|zero, rs, T    c.bnez rs, T
//
// For the beq forms the Equal edge is T; for the bne forms it is the
// fallthrough of bb. With resolve unset, f and bb are not consulted and both
// edges are reported as NoBlockID. Every other instruction is rejected.
func MatchCondBranch(f *machine.Func, bb machine.BlockID, in *machine.Instr, zero machine.Reg, resolve bool) (BranchTest, bool) {
	test := BranchTest{Equal: machine.NoBlockID, NotEqual: machine.NoBlockID}
	if in == nil {
		return test, false
	}

	var taken bool // whether the explicit target is the Equal edge
	switch in.Op {
	case machine.OpBranchEq, machine.OpBranchNe:
		if len(in.Args) < 3 {
			return test, false
		}
		reg, imm, ok := regAgainstConst(in.Args[0], in.Args[1], zero)
		if !ok {
			return test, false
		}
		test.Reg, test.Imm = reg, imm
		taken = in.Op == machine.OpBranchEq

	case machine.OpBranchEqZero, machine.OpBranchNeZero:
		if len(in.Args) < 2 || !in.Args[0].IsReg() || in.Args[0].Reg == zero {
			return test, false
		}
		test.Reg, test.Imm = in.Args[0].Reg, 0
		taken = in.Op == machine.OpBranchEqZero

	default:
		return test, false
	}

	if !resolve {
		return test, true
	}

	target, ok := in.Target()
	if !ok {
		return test, false
	}
	fall := machine.NoBlockID
	if f != nil {
		fall = f.FallThrough(bb)
	}
	if taken {
		test.Equal, test.NotEqual = target, fall
	} else {
		test.Equal, test.NotEqual = fall, target
	}
	return test, true
}

// regAgainstConst splits a comparison into its register side and its
// constant side, in either order. The zero register counts as constant 0.
func regAgainstConst(lhs, rhs machine.Operand, zero machine.Reg) (machine.Reg, int64, bool) {
	isGeneral := func(o machine.Operand) bool { return o.IsReg() && o.Reg != zero }

	switch {
	case isGeneral(lhs) && isConst(rhs, zero):
		return lhs.Reg, constOf(rhs), true
	case isConst(lhs, zero) && isGeneral(rhs):
		return rhs.Reg, constOf(lhs), true
	default:
		return 0, 0, false
	}
}

func isConst(o machine.Operand, zero machine.Reg) bool {
	return o.IsImm() || o.IsRegOf(zero)
}

func constOf(o machine.Operand) int64 {
	if o.IsImm() {
		return o.Imm
	}
	return 0
}
