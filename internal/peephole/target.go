package peephole

import "github.com/xcalcc/llvm-project/internal/machine"

// Target supplies the architecture facts the pass needs.
type Target struct {
	// Zero is the register hard-wired to constant zero.
	Zero machine.Reg
	// NewReturn builds the return instruction used by jump-to-return
	// threading. It must keep the given location.
	NewReturn func(loc machine.DebugLoc) machine.Instr
}

// RISCV returns the RV64 target: x0 is the zero register and returns are
// emitted as the ret pseudo-instruction.
func RISCV() Target {
	return Target{Zero: machine.X0, NewReturn: machine.NewReturn}
}

func (t Target) newReturn(loc machine.DebugLoc) machine.Instr {
	if t.NewReturn == nil {
		return machine.NewReturn(loc)
	}
	return t.NewReturn(loc)
}
