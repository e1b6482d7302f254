package ir

// Function is a decoded bytecode function.
//
// A Function starts out with only Instructions populated. CFG construction
// moves every instruction into Blocks and sets StartBlock, EndBlock and
// IsControlFlowGraph. All blocks and instructions are owned by exactly one
// Function.
type Function struct {
	// Name is the function name.
	Name string

	// Instructions is the flat instruction stream. It is consumed by CFG
	// construction and nil afterwards.
	Instructions []Instr

	// Blocks is the list of basic blocks. Once the CFG is built,
	// Blocks[0] is StartBlock and the last block is EndBlock.
	Blocks []*Block

	// StartBlock is the entry block.
	StartBlock *Block

	// EndBlock is the synthetic sink that every return flows into.
	// It holds no instructions.
	EndBlock *Block

	// IsControlFlowGraph is set once CFG construction has completed.
	IsControlFlowGraph bool

	// Closures are the functions defined inside this one. Each is an
	// independent graph.
	Closures []*Function

	// nextBlockID is the next available block ID.
	nextBlockID ID
}

// NewFunction creates a function holding the given instruction stream.
func NewFunction(name string, instrs ...Instr) *Function {
	return &Function{
		Name:         name,
		Instructions: instrs,
	}
}

// ResetBlocks drops any existing graph and restarts block numbering at zero.
func (f *Function) ResetBlocks() {
	f.Blocks = nil
	f.StartBlock = nil
	f.EndBlock = nil
	f.IsControlFlowGraph = false
	f.nextBlockID = 0
}

// NewBlock creates a new basic block and appends it to the function.
func (f *Function) NewBlock() *Block {
	b := f.NewDetachedBlock()
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewDetachedBlock creates a block owned by f that is not yet in f.Blocks.
// Use AppendBlock to place it.
func (f *Function) NewDetachedBlock() *Block {
	b := &Block{
		ID:   f.nextBlockID,
		Func: f,
	}
	f.nextBlockID++
	return b
}

// AppendBlock places b at the end of f.Blocks.
func (f *Function) AppendBlock(b *Block) {
	f.Blocks = append(f.Blocks, b)
}

// RemoveBlock removes b from the function and detaches it from every
// neighbour, keeping edges symmetric.
func (f *Function) RemoveBlock(b *Block) {
	for _, s := range b.Succs {
		s.RemovePred(b)
	}
	for _, p := range b.Preds {
		p.Succs = removeBlock(p.Succs, b)
	}
	b.Succs = nil
	b.Preds = nil
	f.Blocks = removeBlock(f.Blocks, b)
	b.Func = nil
}

// MergeBlocks splices succ into b. succ must be b's only successor and b
// must be succ's only predecessor. A jump ending b is dropped, succ's
// instructions move to the end of b, b takes over succ's successors, and
// succ is removed from the function.
func (f *Function) MergeBlocks(b, succ *Block) {
	if j, ok := b.Last().(*Jump); ok {
		j.setBlock(nil)
		b.Instrs = b.Instrs[:len(b.Instrs)-1]
	}
	b.Append(succ.Instrs...)

	b.Succs = succ.Succs
	for _, s := range succ.Succs {
		s.ReplacePred(succ, b)
	}

	succ.Instrs = nil
	succ.Succs = nil
	succ.Preds = nil
	succ.Func = nil
	f.Blocks = removeBlock(f.Blocks, succ)
}

// Renumber assigns block IDs 0..n-1 in list order.
func (f *Function) Renumber() {
	for i, b := range f.Blocks {
		b.ID = ID(i)
	}
	f.nextBlockID = ID(len(f.Blocks))
}

// NumBlocks returns the number of blocks in the function.
func (f *Function) NumBlocks() int { return len(f.Blocks) }

// NumInstrs returns the number of instructions, counting block contents
// once the CFG exists.
func (f *Function) NumInstrs() int {
	if !f.IsControlFlowGraph {
		return len(f.Instructions)
	}
	n := 0
	for _, b := range f.Blocks {
		n += len(b.Instrs)
	}
	return n
}

// Walk calls fn for f and then for every nested closure, depth first.
func (f *Function) Walk(fn func(*Function) bool) bool {
	if !fn(f) {
		return false
	}
	for _, c := range f.Closures {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}
