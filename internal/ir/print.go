package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes the representation of a function to w.
//
// Before CFG construction the flat instruction stream is printed. Afterwards:
//
//	func name:
//	  b0: (start)
//	    if r0 goto L1 (b2)
//	    -> b1 b2
//	  b1: <- b0
//	    r1 = r2
//	    -> b2
//	  b2: <- b1 b0
//	    return r1
//	    -> b3
//	  b3: (end) <- b2
func Fprint(w io.Writer, f *Function) {
	fmt.Fprintf(w, "func %s:\n", f.Name)

	if !f.IsControlFlowGraph {
		for _, in := range f.Instructions {
			if _, ok := in.(*Label); ok {
				fmt.Fprintf(w, "  %s\n", in)
				continue
			}
			fmt.Fprintf(w, "    %s\n", in)
		}
		return
	}

	for _, b := range f.Blocks {
		fprintBlock(w, b, f)
	}
}

// fprintBlock writes a single block to w.
func fprintBlock(w io.Writer, b *Block, f *Function) {
	label := ""
	switch b {
	case f.StartBlock:
		label = " (start)"
	case f.EndBlock:
		label = " (end)"
	}

	predsStr := ""
	if len(b.Preds) > 0 {
		predsStr = " <- " + joinBlocks(b.Preds)
	}

	fmt.Fprintf(w, "  %s:%s%s\n", b, label, predsStr)

	for _, in := range b.Instrs {
		fmt.Fprintf(w, "    %s\n", in)
	}

	if len(b.Succs) > 0 {
		fmt.Fprintf(w, "    -> %s\n", joinBlocks(b.Succs))
	}
}

func joinBlocks(bs []*Block) string {
	s := make([]string, len(bs))
	for i, b := range bs {
		s[i] = b.String()
	}
	return strings.Join(s, " ")
}

// Sprint returns the representation of a function as a string.
func Sprint(f *Function) string {
	var sb strings.Builder
	Fprint(&sb, f)
	return sb.String()
}
