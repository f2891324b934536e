package machine

import "slices"

// BlockID indexes a block in its function's block arena.
type BlockID int32

// NoBlockID marks an absent block reference.
const NoBlockID BlockID = -1

// Block is a basic block: straight-line instructions in execution order
// plus the blocks that may transfer control into it.
type Block struct {
	ID     BlockID
	Name   string
	Instrs []Instr
	Preds  []BlockID

	// AddressTaken is set when the block is reachable through something
	// other than its Preds, such as a jump table entry.
	AddressTaken bool
}

// Empty reports whether the block holds no instructions.
func (b *Block) Empty() bool { return len(b.Instrs) == 0 }

// Len returns the number of instructions.
func (b *Block) Len() int { return len(b.Instrs) }

// Front returns the first instruction, or nil when the block is empty.
func (b *Block) Front() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return &b.Instrs[0]
}

// Back returns the last instruction, or nil when the block is empty.
func (b *Block) Back() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return &b.Instrs[len(b.Instrs)-1]
}

// Append adds in at the end of the block.
func (b *Block) Append(in Instr) {
	b.Instrs = append(b.Instrs, in)
}

// Erase removes the i-th instruction. Pointers previously returned by
// Front/Back are invalid afterwards.
func (b *Block) Erase(i int) {
	if i < 0 || i >= len(b.Instrs) {
		return
	}
	b.Instrs = slices.Delete(b.Instrs, i, i+1)
}

// HasPred reports whether id is a predecessor.
func (b *Block) HasPred(id BlockID) bool {
	return slices.Contains(b.Preds, id)
}

func (b *Block) addPred(id BlockID) {
	if !b.HasPred(id) {
		b.Preds = append(b.Preds, id)
	}
}

func (b *Block) removePred(id BlockID) bool {
	i := slices.Index(b.Preds, id)
	if i < 0 {
		return false
	}
	b.Preds = slices.Delete(b.Preds, i, i+1)
	return true
}

// Label returns the printable name of the block.
func (b *Block) Label() string {
	if b.Name != "" {
		return b.Name
	}
	return blockLabel(b.ID)
}
