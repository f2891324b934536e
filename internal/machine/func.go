package machine

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/oleiade/lane"
)

// Func is a machine function: blocks in layout order, owned by the function.
// Blocks[i].ID == i always holds.
type Func struct {
	Name   string
	Blocks []Block
	Entry  BlockID
}

// Module is a set of functions read from one listing.
type Module struct {
	Name  string
	Files map[uint32]string // .file number -> path
	Funcs []*Func
}

func blockLabel(id BlockID) string {
	return fmt.Sprintf(".LBB_%d", id)
}

// NewBlock appends an empty block to the layout and returns its ID.
func (f *Func) NewBlock(name string) BlockID {
	id, err := safecast.Conv[BlockID](len(f.Blocks))
	if err != nil {
		panic(fmt.Sprintf("machine: too many blocks in %s: %v", f.Name, err))
	}
	f.Blocks = append(f.Blocks, Block{ID: id, Name: name})
	return id
}

// Valid reports whether id refers to a block of f.
func (f *Func) Valid(id BlockID) bool {
	return id >= 0 && int(id) < len(f.Blocks)
}

// Block returns the block with the given ID, or nil.
func (f *Func) Block(id BlockID) *Block {
	if !f.Valid(id) {
		return nil
	}
	return &f.Blocks[id]
}

// FallThrough returns the block reached by falling off the end of id: the
// next block in layout, unless id ends in a jump or a return.
func (f *Func) FallThrough(id BlockID) BlockID {
	bb := f.Block(id)
	if bb == nil {
		return NoBlockID
	}
	if last := bb.Back(); last != nil && last.EndsFlow() {
		return NoBlockID
	}
	if next := id + 1; f.Valid(next) {
		return next
	}
	return NoBlockID
}

// Successors returns the explicit branch target (if any) followed by the
// fallthrough successor (if any), without duplicates.
func (f *Func) Successors(id BlockID) []BlockID {
	bb := f.Block(id)
	if bb == nil {
		return nil
	}
	var out []BlockID
	if last := bb.Back(); last != nil {
		if t, ok := last.Target(); ok && f.Valid(t) {
			out = append(out, t)
		}
	}
	if ft := f.FallThrough(id); ft != NoBlockID && (len(out) == 0 || out[0] != ft) {
		out = append(out, ft)
	}
	return out
}

// RebuildPreds recomputes every predecessor list from the successor edges.
func (f *Func) RebuildPreds() {
	for i := range f.Blocks {
		f.Blocks[i].Preds = f.Blocks[i].Preds[:0]
	}
	for i := range f.Blocks {
		from := f.Blocks[i].ID
		for _, to := range f.Successors(from) {
			f.Blocks[to].addPred(from)
		}
	}
}

// RemoveEdge drops from as a predecessor of to, unless from still reaches to
// through another edge.
func (f *Func) RemoveEdge(from, to BlockID) bool {
	dst := f.Block(to)
	if dst == nil {
		return false
	}
	for _, s := range f.Successors(from) {
		if s == to {
			return false
		}
	}
	return dst.removePred(from)
}

// Reachable marks every block reachable from the entry block.
func (f *Func) Reachable() []bool {
	seen := make([]bool, len(f.Blocks))
	if !f.Valid(f.Entry) {
		return seen
	}

	q := lane.NewQueue()
	seen[f.Entry] = true

	/* breadth-first over successor edges */
	for q.Enqueue(f.Entry); !q.Empty(); {
		id := q.Dequeue().(BlockID)
		for _, s := range f.Successors(id) {
			if !seen[s] {
				seen[s] = true
				q.Enqueue(s)
			}
		}
	}
	return seen
}

// NumInstrs counts the instructions of all blocks.
func (f *Func) NumInstrs() int {
	n := 0
	for i := range f.Blocks {
		n += len(f.Blocks[i].Instrs)
	}
	return n
}

// Clone deep-copies the function.
func (f *Func) Clone() *Func {
	out := &Func{Name: f.Name, Entry: f.Entry, Blocks: make([]Block, len(f.Blocks))}
	for i := range f.Blocks {
		src := &f.Blocks[i]
		dst := &out.Blocks[i]
		dst.ID = src.ID
		dst.Name = src.Name
		dst.AddressTaken = src.AddressTaken
		dst.Preds = append([]BlockID(nil), src.Preds...)
		dst.Instrs = make([]Instr, len(src.Instrs))
		for j := range src.Instrs {
			dst.Instrs[j] = src.Instrs[j].Clone()
		}
	}
	return out
}

// BlockByName finds a block by its label.
func (f *Func) BlockByName(name string) (BlockID, bool) {
	for i := range f.Blocks {
		if f.Blocks[i].Name == name {
			return f.Blocks[i].ID, true
		}
	}
	return NoBlockID, false
}
