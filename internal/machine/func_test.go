package machine

import (
	"strings"
	"testing"
)

// diamond builds:
//
//	bb0: beq a0, 5, bb2   (falls through to bb1)
//	bb1: addi a1, a1, 1; j bb3
//	bb2: c.li a0, 5      (falls through to bb3)
//	bb3: ret
func diamond() *Func {
	f := &Func{Name: "diamond"}
	b0 := f.NewBlock("entry")
	b1 := f.NewBlock(".L1")
	b2 := f.NewBlock(".L2")
	b3 := f.NewBlock(".L3")
	f.Blocks[b0].Append(Instr{Op: OpBranchEq, Args: []Operand{RegOp(A0), ImmOp(5), BlockOp(b2)}})
	f.Blocks[b1].Append(Instr{Op: OpAddImm, Args: []Operand{RegOp(A1), RegOp(A1), ImmOp(1)}})
	f.Blocks[b1].Append(NewJump(b3, DebugLoc{}))
	f.Blocks[b2].Append(Instr{Op: OpLoadImm, Args: []Operand{RegOp(A0), ImmOp(5)}})
	f.Blocks[b3].Append(NewReturn(DebugLoc{}))
	f.RebuildPreds()
	return f
}

func TestFallThrough(t *testing.T) {
	f := diamond()
	tests := []struct {
		id   BlockID
		want BlockID
	}{
		{0, 1},
		{1, NoBlockID}, // ends in j
		{2, 3},
		{3, NoBlockID}, // ends in ret
		{7, NoBlockID},
	}
	for _, tt := range tests {
		if got := f.FallThrough(tt.id); got != tt.want {
			t.Errorf("FallThrough(bb%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestSuccessorsAndPreds(t *testing.T) {
	f := diamond()
	succ := f.Successors(0)
	if len(succ) != 2 || succ[0] != 2 || succ[1] != 1 {
		t.Fatalf("Successors(bb0) = %v, want [2 1]", succ)
	}
	if got := f.Blocks[3].Preds; len(got) != 2 || !f.Blocks[3].HasPred(1) || !f.Blocks[3].HasPred(2) {
		t.Fatalf("bb3 preds = %v, want {1, 2}", got)
	}
	if err := Validate(f); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSuccessorsDeduplicateSameTarget(t *testing.T) {
	f := &Func{Name: "same"}
	b0 := f.NewBlock("")
	b1 := f.NewBlock("")
	f.Blocks[b0].Append(Instr{Op: OpBranchEqZero, Args: []Operand{RegOp(A0), BlockOp(b1)}})
	f.Blocks[b1].Append(NewReturn(DebugLoc{}))
	f.RebuildPreds()

	if succ := f.Successors(b0); len(succ) != 1 || succ[0] != b1 {
		t.Fatalf("Successors = %v, want [1]", succ)
	}
	if len(f.Blocks[b1].Preds) != 1 {
		t.Fatalf("preds = %v, want one entry", f.Blocks[b1].Preds)
	}
}

func TestRemoveEdge(t *testing.T) {
	f := diamond()
	f.Blocks[1].Erase(1)
	f.Blocks[1].Append(NewReturn(DebugLoc{}))

	if !f.RemoveEdge(1, 3) {
		t.Fatal("expected edge bb1->bb3 to be removed")
	}
	if f.Blocks[3].HasPred(1) {
		t.Fatal("bb1 still listed as predecessor of bb3")
	}
	// bb2 still falls through into bb3.
	if f.RemoveEdge(2, 3) {
		t.Fatal("live edge bb2->bb3 must not be removed")
	}
	if err := Validate(f); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateReportsBrokenCFG(t *testing.T) {
	f := diamond()
	f.Blocks[3].Preds = []BlockID{1}
	f.Blocks[0].Instrs = append([]Instr{NewReturn(DebugLoc{})}, f.Blocks[0].Instrs...)

	err := Validate(f)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"missing predecessor bb2", "ret is not the last instruction"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidateFallOffEnd(t *testing.T) {
	f := &Func{Name: "open"}
	b0 := f.NewBlock("")
	f.Blocks[b0].Append(Instr{Op: OpLoadImm, Args: []Operand{RegOp(A0), ImmOp(1)}})
	if err := Validate(f); err == nil || !strings.Contains(err.Error(), "falls off the end") {
		t.Fatalf("expected fall-off error, got %v", err)
	}
}

func TestReachable(t *testing.T) {
	f := diamond()
	dead := f.NewBlock(".Ldead")
	f.Blocks[dead].Append(NewReturn(DebugLoc{}))
	seen := f.Reachable()
	for id := BlockID(0); id < 4; id++ {
		if !seen[id] {
			t.Errorf("bb%d should be reachable", id)
		}
	}
	if seen[dead] {
		t.Errorf("bb%d should be unreachable", dead)
	}
}

func TestCloneIsDeep(t *testing.T) {
	f := diamond()
	g := f.Clone()
	g.Blocks[0].Instrs[0].Args[1].Imm = 9
	g.Blocks[3].Preds[0] = 0
	if f.Blocks[0].Instrs[0].Args[1].Imm != 5 {
		t.Fatal("clone shares operand storage")
	}
	if f.Blocks[3].Preds[0] == 0 {
		t.Fatal("clone shares predecessor storage")
	}
}

func TestParseReg(t *testing.T) {
	tests := []struct {
		in   string
		want Reg
	}{
		{"zero", X0},
		{"x0", X0},
		{"a0", A0},
		{"X10", A0},
		{"fp", S0},
		{"t6", Reg(31)},
	}
	for _, tt := range tests {
		got, ok := ParseReg(tt.in)
		if !ok || got != tt.want {
			t.Errorf("ParseReg(%q) = %v, %v; want %v", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := ParseReg("q7"); ok {
		t.Error("ParseReg accepted an unknown register")
	}
}

func TestOpaqueExitsEndFlow(t *testing.T) {
	f := &Func{Name: "tail"}
	f.Entry = f.NewBlock("")
	next := f.NewBlock("")
	f.Blocks[f.Entry].Append(Instr{Op: OpOther, Name: "tail", Args: []Operand{SymOp("g")}})
	f.Blocks[next].Append(NewReturn(DebugLoc{}))
	f.RebuildPreds()

	if got := f.Successors(f.Entry); len(got) != 0 {
		t.Errorf("tail call successors = %v, want none", got)
	}
	if len(f.Block(next).Preds) != 0 {
		t.Errorf("block after a tail call has preds %v", f.Block(next).Preds)
	}

	lw := Instr{Op: OpOther, Name: "lw", Args: []Operand{RegOp(A0), SymOp("0(sp)")}}
	if lw.EndsFlow() {
		t.Error("lw ends flow")
	}
}
