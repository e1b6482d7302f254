package analyzer

import "github.com/you-not-fish/hvkdec/internal/ir"

// RedundantAssignments removes assignments of the form
//
//	x = x
//
// where x is a single non-indexed target read back unindexed. They are left
// behind by the lowering of TEST instructions. Before CFG construction the
// flat instruction stream is rewritten; afterwards every block is.
type RedundantAssignments struct{}

// Analyze removes self-assignments from f.
func (RedundantAssignments) Analyze(f *ir.Function) {
	if !f.IsControlFlowGraph {
		for i := 0; i < len(f.Instructions); i++ {
			if isSelfAssignment(f.Instructions[i]) {
				f.Instructions = append(f.Instructions[:i], f.Instructions[i+1:]...)
				i--
			}
		}
		return
	}

	for _, b := range f.Blocks {
		for i := 0; i < len(b.Instrs); i++ {
			if isSelfAssignment(b.Instrs[i]) {
				b.RemoveInstr(i)
				i--
			}
		}
	}
}

func isSelfAssignment(in ir.Instr) bool {
	a, ok := in.(*ir.Assignment)
	if !ok || len(a.Left) != 1 || a.Left[0].HasIndex() {
		return false
	}
	ref, ok := a.Right.(*ir.IdentifierReference)
	if !ok || ref.HasIndex() {
		return false
	}
	return a.Left[0].Identifier == ref.Identifier
}
