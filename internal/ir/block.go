package ir

import "fmt"

// ID is a block identifier, unique within the containing Function.
type ID int32

// Block represents a basic block in the control flow graph.
// A block holds a straight-line sequence of instructions; control leaves it
// only through its last instruction or by falling through to Succs.
type Block struct {
	// ID is a unique identifier within the containing Function.
	ID ID

	// Instrs is the ordered list of instructions in this block.
	// Every instruction's Block() is this block.
	Instrs []Instr

	// Succs lists the successor blocks in the CFG.
	// For a block ending in a conditional jump: Succs[0] = fallthrough,
	// Succs[1] = jump target.
	Succs []*Block

	// Preds lists the predecessor blocks in the CFG.
	Preds []*Block

	// Func is the function containing this block.
	Func *Function
}

// String returns a short string representation (e.g., "b3").
func (b *Block) String() string {
	return fmt.Sprintf("b%d", b.ID)
}

// Append adds instructions to the end of the block and points their
// owning-block link at b.
func (b *Block) Append(instrs ...Instr) {
	for _, in := range instrs {
		in.setBlock(b)
		b.Instrs = append(b.Instrs, in)
	}
}

// Last returns the last instruction of the block, or nil if it is empty.
func (b *Block) Last() Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// EndsInJump reports whether the last instruction is a Jump.
func (b *Block) EndsInJump() bool {
	_, ok := b.Last().(*Jump)
	return ok
}

// AddSucc adds a successor block, updating both Succs and the successor's Preds.
func (b *Block) AddSucc(succ *Block) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// RemovePred removes every occurrence of pred from b.Preds.
// The caller is responsible for pred.Succs.
func (b *Block) RemovePred(pred *Block) {
	b.Preds = removeBlock(b.Preds, pred)
}

// ReplacePred rewrites every occurrence of old in b.Preds to new.
func (b *Block) ReplacePred(old, new *Block) {
	for i, p := range b.Preds {
		if p == old {
			b.Preds[i] = new
		}
	}
}

// RemoveInstr deletes the instruction at index i, preserving order.
func (b *Block) RemoveInstr(i int) {
	b.Instrs[i].setBlock(nil)
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
}

// NumSuccs returns the number of successor blocks.
func (b *Block) NumSuccs() int { return len(b.Succs) }

// NumPreds returns the number of predecessor blocks.
func (b *Block) NumPreds() int { return len(b.Preds) }

// NumInstrs returns the number of instructions in this block.
func (b *Block) NumInstrs() int { return len(b.Instrs) }

func removeBlock(bs []*Block, b *Block) []*Block {
	out := bs[:0]
	for _, x := range bs {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

// containsBlock checks whether bs contains b.
func containsBlock(bs []*Block, b *Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}
