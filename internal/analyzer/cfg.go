package analyzer

import (
	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

// ConstructCFG partitions a function's instruction stream into basic blocks
// and builds the control flow graph. It must run before any pass that reads
// blocks.
//
// The graph is built in five steps:
//
//  1. segment the stream at jumps, returns and labels;
//  2. add an edge from every block ending in a jump to its label's block;
//  3. remove blocks not reachable from the start block;
//  4. merge a block into its only successor when that successor has no
//     other predecessor, until nothing changes;
//  5. send every block without successors to the end block.
//
// A jump to a label that never starts a block panics with *MalformedError;
// Run turns the panic into an error.
type ConstructCFG struct {
	Dialect luafile.Dialect
}

// Analyze builds the control flow graph of f. It does nothing if f already
// has one.
func (c *ConstructCFG) Analyze(f *ir.Function) {
	if f.IsControlFlowGraph {
		return
	}

	b := &cfgBuilder{
		f:       f,
		returns: NewReturnFilter(c.Dialect),
		labels:  make(map[*ir.Label]*ir.Block),
	}
	b.segment()
	b.resolveJumps()
	b.pruneUnreachable()
	b.mergeChains()
	b.normalizeSinks()
}

type cfgBuilder struct {
	f       *ir.Function
	returns ReturnFilter
	labels  map[*ir.Label]*ir.Block
}

// bind records blk as the block starting at label l.
func (b *cfgBuilder) bind(l *ir.Label, blk *ir.Block) {
	if _, ok := b.labels[l]; ok {
		panic(&MalformedError{Func: b.f.Name, Label: l.Name, Reason: "duplicate label"})
	}
	b.labels[l] = blk
}

// labelAt returns instrs[i] if it is a label.
func labelAt(instrs []ir.Instr, i int) *ir.Label {
	if i >= len(instrs) {
		return nil
	}
	l, _ := instrs[i].(*ir.Label)
	return l
}

func (b *cfgBuilder) segment() {
	f := b.f
	instrs := f.Instructions

	f.ResetBlocks()
	f.StartBlock = f.NewBlock()
	f.EndBlock = f.NewDetachedBlock()

	cur := f.StartBlock
	for i := 0; i < len(instrs); i++ {
		switch in := instrs[i].(type) {
		case *ir.Jump:
			if in.Dest == nil {
				panic(&MalformedError{Func: f.Name, Reason: "jump without label"})
			}
			cur.Append(in)
			if !in.Conditional {
				// Code after an unconditional jump is only reachable
				// through a label.
				cur = f.NewBlock()
				if l := labelAt(instrs, i+1); l != nil {
					b.bind(l, cur)
					i++
				}
				continue
			}

			next := f.NewBlock()
			cur.AddSucc(next)
			cur = next
			if l := labelAt(instrs, i+1); l != nil {
				if l == in.Dest {
					// Empty then-body: keep the fallthrough and the jump
					// target in different blocks.
					cur.Append(ir.NewJump(l))
					cur = f.NewBlock()
				}
				b.bind(l, cur)
				i++
			}

		case *ir.Return:
			if !b.returns.Keep(in) {
				continue
			}
			cur.Append(in)
			cur.AddSucc(f.EndBlock)
			if i+1 < len(instrs) {
				cur = f.NewBlock()
				if l := labelAt(instrs, i+1); l != nil {
					b.bind(l, cur)
					i++
				}
			}

		case *ir.Label:
			next := f.NewBlock()
			cur.AddSucc(next)
			cur = next
			b.bind(in, cur)

		default:
			cur.Append(in)
		}
	}

	f.Instructions = nil
}

func (b *cfgBuilder) resolveJumps() {
	for _, blk := range b.f.Blocks {
		j, ok := blk.Last().(*ir.Jump)
		if !ok {
			continue
		}
		target, ok := b.labels[j.Dest]
		if !ok {
			panic(&MalformedError{Func: b.f.Name, Label: j.Dest.Name, Reason: "jump to unbound label"})
		}
		blk.AddSucc(target)
		j.BlockDest = target
	}
}

func (b *cfgBuilder) pruneUnreachable() {
	f := b.f
	reachable := ir.Reachable(f)
	for i := 0; i < len(f.Blocks); i++ {
		blk := f.Blocks[i]
		if reachable[blk] {
			continue
		}
		f.RemoveBlock(blk)
		i--
	}
}

func (b *cfgBuilder) mergeChains() {
	f := b.f
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(f.Blocks); i++ {
			blk := f.Blocks[i]
			if !b.canMerge(i) {
				continue
			}
			f.MergeBlocks(blk, blk.Succs[0])
			changed = true
			// The merge may enable another one at blk or just before it.
			i = max(i-2, -1)
		}
	}
}

// canMerge reports whether f.Blocks[i] can absorb its only successor.
func (b *cfgBuilder) canMerge(i int) bool {
	f := b.f
	blk := f.Blocks[i]
	if blk.NumSuccs() != 1 {
		return false
	}
	succ := blk.Succs[0]
	if succ == blk || succ == f.StartBlock || succ == f.EndBlock || succ.NumPreds() != 1 {
		return false
	}
	if blk.EndsInJump() {
		return true
	}
	return i+1 < len(f.Blocks) && f.Blocks[i+1] == succ
}

func (b *cfgBuilder) normalizeSinks() {
	f := b.f
	for _, blk := range f.Blocks {
		if blk.NumSuccs() == 0 {
			blk.AddSucc(f.EndBlock)
		}
	}
	f.AppendBlock(f.EndBlock)
	f.Renumber()
	f.IsControlFlowGraph = true
}
