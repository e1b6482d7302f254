package ir

import (
	"fmt"
	"strings"
)

// Verify checks the structural integrity of a function's control flow graph.
// It returns an error describing all violations found, or nil if valid.
func Verify(f *Function) error {
	var errs []string

	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !f.IsControlFlowGraph {
		add("func %s: control flow graph not built", f.Name)
		return combineErrors(errs)
	}
	if f.StartBlock == nil || f.EndBlock == nil {
		add("func %s: start or end block is nil", f.Name)
		return combineErrors(errs)
	}
	if len(f.Blocks) < 2 {
		add("func %s: %d blocks, want at least 2", f.Name, len(f.Blocks))
		return combineErrors(errs)
	}

	// 1. Start first, end last
	if f.Blocks[0] != f.StartBlock {
		add("func %s: Blocks[0] is not the start block", f.Name)
	}
	if f.Blocks[len(f.Blocks)-1] != f.EndBlock {
		add("func %s: last block is not the end block", f.Name)
	}
	if len(f.EndBlock.Instrs) != 0 {
		add("func %s: end block %s holds %d instructions",
			f.Name, f.EndBlock, len(f.EndBlock.Instrs))
	}
	if len(f.EndBlock.Succs) != 0 {
		add("func %s: end block %s has %d succs, want 0",
			f.Name, f.EndBlock, len(f.EndBlock.Succs))
	}

	// Build a set of all blocks for membership checks.
	blockSet := make(map[*Block]bool, len(f.Blocks))
	ids := make(map[ID]*Block, len(f.Blocks))
	for _, b := range f.Blocks {
		if blockSet[b] {
			add("func %s, %s: block listed twice", f.Name, b)
		}
		blockSet[b] = true
		if other, ok := ids[b.ID]; ok && other != b {
			add("func %s, %s: duplicate block ID", f.Name, b)
		}
		ids[b.ID] = b
	}

	seen := make(map[Instr]*Block)
	for _, b := range f.Blocks {
		// 2. Block's Func pointer matches
		if b.Func != f {
			add("func %s, %s: block Func pointer mismatch", f.Name, b)
		}

		// 3. Every instruction's Block pointer matches its containing block
		for i, in := range b.Instrs {
			if in.Block() != b {
				add("func %s, %s: instr %d (%s) Block pointer is %v, want %s",
					f.Name, b, i, in, in.Block(), b)
			}
			if other, ok := seen[in]; ok {
				add("func %s, %s: instr %d (%s) also in %s", f.Name, b, i, in, other)
			}
			seen[in] = b
			if _, ok := in.(*Label); ok {
				add("func %s, %s: instr %d is a label", f.Name, b, i)
			}
		}

		// 4. No dangling blocks
		if b != f.EndBlock && len(b.Succs) == 0 {
			add("func %s, %s: block has no successors", f.Name, b)
		}

		// 5. Resolved jumps point at a successor
		if j, ok := b.Last().(*Jump); ok {
			if j.BlockDest == nil {
				add("func %s, %s: jump to %s is unresolved", f.Name, b, j.LabelName())
			} else if !containsBlock(b.Succs, j.BlockDest) {
				add("func %s, %s: jump target %s is not a successor",
					f.Name, b, j.BlockDest)
			}
		}

		// 6. Succs/Preds edge consistency
		for _, succ := range b.Succs {
			if !blockSet[succ] {
				add("func %s, %s: successor %s not in function", f.Name, b, succ)
				continue
			}
			if countBlock(succ.Preds, b) != countBlock(b.Succs, succ) {
				add("func %s, %s: successor %s does not have %s as predecessor",
					f.Name, b, succ, b)
			}
		}
		for _, pred := range b.Preds {
			if !blockSet[pred] {
				add("func %s, %s: predecessor %s not in function", f.Name, b, pred)
				continue
			}
			if !containsBlock(pred.Succs, b) {
				add("func %s, %s: predecessor %s does not have %s as successor",
					f.Name, b, pred, b)
			}
		}
	}

	// 7. Every block but the end block is reachable from the start block
	reachable := Reachable(f)
	for _, b := range f.Blocks {
		if b != f.EndBlock && !reachable[b] {
			add("func %s, %s: block unreachable from %s", f.Name, b, f.StartBlock)
		}
	}

	return combineErrors(errs)
}

// Reachable returns the set of blocks reachable from f.StartBlock.
func Reachable(f *Function) map[*Block]bool {
	reachable := make(map[*Block]bool, len(f.Blocks))
	if f.StartBlock == nil {
		return reachable
	}
	stack := []*Block{f.StartBlock}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[b] {
			continue
		}
		reachable[b] = true
		stack = append(stack, b.Succs...)
	}
	return reachable
}

func countBlock(bs []*Block, b *Block) int {
	n := 0
	for _, x := range bs {
		if x == b {
			n++
		}
	}
	return n
}

// combineErrors creates an error from a list of error strings, or returns nil.
func combineErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("CFG verification failed:\n  %s", strings.Join(errs, "\n  "))
}
