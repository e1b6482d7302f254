package ir

import (
	"encoding/json"
	"io"
)

// FprintJSON writes a JSON representation of f and its closures to w.
func FprintJSON(w io.Writer, f *Function) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(funcToJSON(f))
}

func funcToJSON(f *Function) map[string]interface{} {
	m := map[string]interface{}{
		"name": f.Name,
		"cfg":  f.IsControlFlowGraph,
	}
	if f.IsControlFlowGraph {
		blocks := make([]interface{}, len(f.Blocks))
		for i, b := range f.Blocks {
			blocks[i] = blockToJSON(b)
		}
		m["blocks"] = blocks
		if f.StartBlock != nil {
			m["start"] = f.StartBlock.ID
		}
		if f.EndBlock != nil {
			m["end"] = f.EndBlock.ID
		}
	} else {
		m["instrs"] = mapInstrs(f.Instructions)
	}
	if len(f.Closures) > 0 {
		closures := make([]interface{}, len(f.Closures))
		for i, c := range f.Closures {
			closures[i] = funcToJSON(c)
		}
		m["closures"] = closures
	}
	return m
}

func blockToJSON(b *Block) map[string]interface{} {
	return map[string]interface{}{
		"id":     b.ID,
		"instrs": mapInstrs(b.Instrs),
		"succs":  blockIDs(b.Succs),
		"preds":  blockIDs(b.Preds),
	}
}

func blockIDs(bs []*Block) []ID {
	ids := make([]ID, len(bs))
	for i, b := range bs {
		ids[i] = b.ID
	}
	return ids
}

func mapInstrs(instrs []Instr) []interface{} {
	out := make([]interface{}, len(instrs))
	for i, in := range instrs {
		out[i] = instrToJSON(in)
	}
	return out
}

func instrToJSON(in Instr) interface{} {
	switch n := in.(type) {
	case *Label:
		return map[string]interface{}{
			"type": "Label",
			"name": n.Name,
		}

	case *Jump:
		m := map[string]interface{}{
			"type":        "Jump",
			"dest":        n.LabelName(),
			"conditional": n.Conditional,
		}
		if n.Cond != nil {
			m["cond"] = exprToJSON(n.Cond)
		}
		if n.BlockDest != nil {
			m["block"] = n.BlockDest.ID
		}
		return m

	case *Return:
		vals := make([]interface{}, len(n.Values))
		for i, v := range n.Values {
			vals[i] = exprToJSON(v)
		}
		return map[string]interface{}{
			"type":   "Return",
			"values": vals,
			"tail":   n.IsTailReturn,
		}

	case *Assignment:
		left := make([]interface{}, len(n.Left))
		for i, l := range n.Left {
			left[i] = exprToJSON(l)
		}
		return map[string]interface{}{
			"type":  "Assignment",
			"left":  left,
			"right": exprToJSON(n.Right),
		}

	case *Opaque:
		return map[string]interface{}{
			"type": "Opaque",
			"text": n.Text,
		}

	default:
		return map[string]interface{}{
			"type": "Unknown",
		}
	}
}

func exprToJSON(e Expr) interface{} {
	if e == nil {
		return nil
	}

	switch n := e.(type) {
	case *IdentifierReference:
		m := map[string]interface{}{
			"type": "IdentifierReference",
			"name": n.Identifier.Name,
			"kind": n.Identifier.Kind.String(),
		}
		if n.Index != nil {
			m["index"] = exprToJSON(n.Index)
		}
		return m

	case *Constant:
		return map[string]interface{}{
			"type":  "Constant",
			"value": n.Value,
		}

	default:
		return map[string]interface{}{
			"type": "Unknown",
		}
	}
}
