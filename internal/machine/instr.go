package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// Opcode enumerates the machine instruction kinds the backend distinguishes.
type Opcode uint8

const (
	// OpOther is any instruction the peephole stage treats as opaque.
	OpOther Opcode = iota
	// OpLoadImm loads a small constant: c.li rd, imm.
	OpLoadImm
	// OpAddImm adds an immediate: addi rd, rs, imm.
	OpAddImm
	// OpCopy copies a register: mv rd, rs.
	OpCopy
	// OpJump is an unconditional branch: j target.
	OpJump
	// OpBranchEq branches when both operands are equal: beq a, b, target.
	OpBranchEq
	// OpBranchNe branches when the operands differ: bne a, b, target.
	OpBranchNe
	// OpBranchEqZero branches when rs == 0: c.beqz rs, target.
	OpBranchEqZero
	// OpBranchNeZero branches when rs != 0: c.bnez rs, target.
	OpBranchNeZero
	// OpBranchLt is a signed less-than branch.
	OpBranchLt
	// OpBranchGe is a signed greater-or-equal branch.
	OpBranchGe
	// OpBranchLtu is an unsigned less-than branch.
	OpBranchLtu
	// OpBranchGeu is an unsigned greater-or-equal branch.
	OpBranchGeu
	// OpReturn returns from the function.
	OpReturn
)

// Class is the coarse role of an opcode in the CFG.
type Class uint8

const (
	ClassOther Class = iota
	ClassConstCandidate
	ClassJump
	ClassCondBranch
	ClassReturn
)

var opcodeNames = [...]string{
	OpOther:        "<other>",
	OpLoadImm:      "c.li",
	OpAddImm:       "addi",
	OpCopy:         "mv",
	OpJump:         "j",
	OpBranchEq:     "beq",
	OpBranchNe:     "bne",
	OpBranchEqZero: "c.beqz",
	OpBranchNeZero: "c.bnez",
	OpBranchLt:     "blt",
	OpBranchGe:     "bge",
	OpBranchLtu:    "bltu",
	OpBranchGeu:    "bgeu",
	OpReturn:       "ret",
}

// String returns the canonical mnemonic of the opcode.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Class classifies the opcode.
func (op Opcode) Class() Class {
	switch op {
	case OpLoadImm, OpAddImm, OpCopy:
		return ClassConstCandidate
	case OpJump:
		return ClassJump
	case OpBranchEq, OpBranchNe, OpBranchEqZero, OpBranchNeZero,
		OpBranchLt, OpBranchGe, OpBranchLtu, OpBranchGeu:
		return ClassCondBranch
	case OpReturn:
		return ClassReturn
	default:
		return ClassOther
	}
}

// OperandKind distinguishes operand types.
type OperandKind uint8

const (
	// OperandReg is a register operand.
	OperandReg OperandKind = iota
	// OperandImm is a 64-bit signed immediate.
	OperandImm
	// OperandBlock is a branch target.
	OperandBlock
	// OperandSym is operand text the backend carries without interpreting.
	OperandSym
)

// Operand is a machine instruction operand.
type Operand struct {
	Kind  OperandKind
	Reg   Reg
	Imm   int64
	Block BlockID
	Sym   string
}

// RegOp builds a register operand.
func RegOp(r Reg) Operand { return Operand{Kind: OperandReg, Reg: r} }

// ImmOp builds an immediate operand.
func ImmOp(v int64) Operand { return Operand{Kind: OperandImm, Imm: v} }

// BlockOp builds a branch target operand.
func BlockOp(id BlockID) Operand { return Operand{Kind: OperandBlock, Block: id} }

// SymOp builds an opaque operand.
func SymOp(text string) Operand { return Operand{Kind: OperandSym, Sym: text} }

// IsReg reports whether the operand is a register.
func (o Operand) IsReg() bool { return o.Kind == OperandReg }

// IsImm reports whether the operand is an immediate.
func (o Operand) IsImm() bool { return o.Kind == OperandImm }

// IsRegOf reports whether the operand is exactly register r.
func (o Operand) IsRegOf(r Reg) bool { return o.Kind == OperandReg && o.Reg == r }

func (o Operand) String() string {
	switch o.Kind {
	case OperandReg:
		return o.Reg.String()
	case OperandImm:
		return strconv.FormatInt(o.Imm, 10)
	case OperandBlock:
		return fmt.Sprintf("bb%d", o.Block)
	default:
		return o.Sym
	}
}

// DebugLoc is a source location carried opaquely through rewrites. File is
// the number assigned by a .file directive.
type DebugLoc struct {
	File uint32
	Line uint32
	Col  uint32
}

// IsZero reports whether no location is attached.
func (l DebugLoc) IsZero() bool { return l == DebugLoc{} }

// Instr is a single machine instruction.
type Instr struct {
	Op Opcode
	// Name is the source mnemonic; required for OpOther, optional otherwise.
	Name string
	Args []Operand
	Loc  DebugLoc
}

// Mnemonic returns the mnemonic used when printing the instruction.
func (in *Instr) Mnemonic() string {
	if in.Name != "" {
		return in.Name
	}
	return in.Op.String()
}

// Arg returns the i-th operand, or the zero Operand with ok=false.
func (in *Instr) Arg(i int) (Operand, bool) {
	if i < 0 || i >= len(in.Args) {
		return Operand{}, false
	}
	return in.Args[i], true
}

// IsUnconditionalBranch reports whether the instruction is a jump.
func (in *Instr) IsUnconditionalBranch() bool { return in.Op.Class() == ClassJump }

// IsConditionalBranch reports whether the instruction is a two-way branch.
func (in *Instr) IsConditionalBranch() bool { return in.Op.Class() == ClassCondBranch }

// IsReturn reports whether the instruction is a return.
func (in *Instr) IsReturn() bool { return in.Op.Class() == ClassReturn }

// IsTerminator reports whether the instruction may only end a block.
func (in *Instr) IsTerminator() bool {
	switch in.Op.Class() {
	case ClassJump, ClassCondBranch, ClassReturn:
		return true
	}
	return false
}

// opaqueExits are unmodelled mnemonics control never falls past: tail
// calls and indirect jumps.
var opaqueExits = map[string]bool{"j": true, "c.j": true, "jr": true, "c.jr": true, "tail": true}

// EndsFlow reports whether control never falls past the instruction.
func (in *Instr) EndsFlow() bool {
	if in.Op == OpOther {
		return opaqueExits[in.Name]
	}
	return in.IsUnconditionalBranch() || in.IsReturn()
}

// Target returns the explicit branch target, if the instruction has one.
func (in *Instr) Target() (BlockID, bool) {
	if !in.IsUnconditionalBranch() && !in.IsConditionalBranch() {
		return NoBlockID, false
	}
	for i := len(in.Args) - 1; i >= 0; i-- {
		if in.Args[i].Kind == OperandBlock {
			return in.Args[i].Block, true
		}
	}
	return NoBlockID, false
}

// SetTarget rewrites the explicit branch target.
func (in *Instr) SetTarget(id BlockID) bool {
	for i := len(in.Args) - 1; i >= 0; i-- {
		if in.Args[i].Kind == OperandBlock {
			in.Args[i].Block = id
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no operand storage with in.
func (in *Instr) Clone() Instr {
	out := *in
	if len(in.Args) > 0 {
		out.Args = append([]Operand(nil), in.Args...)
	}
	return out
}

func (in *Instr) String() string {
	if len(in.Args) == 0 {
		return in.Mnemonic()
	}
	parts := make([]string, len(in.Args))
	for i, a := range in.Args {
		parts[i] = a.String()
	}
	return in.Mnemonic() + " " + strings.Join(parts, ", ")
}

// NewReturn builds a return instruction carrying loc.
func NewReturn(loc DebugLoc) Instr {
	return Instr{Op: OpReturn, Loc: loc}
}

// NewJump builds an unconditional branch to target.
func NewJump(target BlockID, loc DebugLoc) Instr {
	return Instr{Op: OpJump, Args: []Operand{BlockOp(target)}, Loc: loc}
}
