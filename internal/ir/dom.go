package ir

// ReversePostOrder returns the blocks reachable from f.StartBlock in
// reverse post-order. It returns nil before CFG construction.
func ReversePostOrder(f *Function) []*Block {
	if f.StartBlock == nil {
		return nil
	}

	visited := make(map[*Block]bool, len(f.Blocks))
	var post []*Block

	var visit func(b *Block)
	visit = func(b *Block) {
		visited[b] = true
		for _, s := range b.Succs {
			if !visited[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(f.StartBlock)

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// DomTree is the dominator tree of a function's CFG. It is a snapshot:
// any later change to the graph invalidates it.
type DomTree struct {
	idom  map[*Block]*Block
	order map[*Block]int // reverse post-order number
}

// ComputeDom builds the dominator tree of f with the iterative algorithm
// of Cooper, Harvey and Kennedy. Blocks unreachable from the start block
// are absent from the tree.
func ComputeDom(f *Function) *DomTree {
	rpo := ReversePostOrder(f)
	t := &DomTree{
		idom:  make(map[*Block]*Block, len(rpo)),
		order: make(map[*Block]int, len(rpo)),
	}
	if len(rpo) == 0 {
		return t
	}
	for i, b := range rpo {
		t.order[b] = i
	}

	start := rpo[0]
	t.idom[start] = start

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var idom *Block
			for _, p := range b.Preds {
				if _, done := t.idom[p]; !done {
					continue
				}
				if idom == nil {
					idom = p
				} else {
					idom = t.intersect(p, idom)
				}
			}
			if idom != nil && t.idom[b] != idom {
				t.idom[b] = idom
				changed = true
			}
		}
	}

	// The start block has no immediate dominator.
	t.idom[start] = nil
	return t
}

func (t *DomTree) intersect(a, b *Block) *Block {
	for a != b {
		for t.order[a] > t.order[b] {
			a = t.idom[a]
		}
		for t.order[b] > t.order[a] {
			b = t.idom[b]
		}
	}
	return a
}

// Idom returns the immediate dominator of b, or nil for the start block
// and for blocks outside the tree.
func (t *DomTree) Idom(b *Block) *Block {
	return t.idom[b]
}

// Dominates reports whether a dominates b. Every block in the tree
// dominates itself.
func (t *DomTree) Dominates(a, b *Block) bool {
	if _, ok := t.order[b]; !ok {
		return false
	}
	for ; b != nil; b = t.idom[b] {
		if b == a {
			return true
		}
	}
	return false
}

// Children returns the blocks immediately dominated by b, in block order.
func (t *DomTree) Children(f *Function, b *Block) []*Block {
	var kids []*Block
	for _, c := range f.Blocks {
		if c != b && t.idom[c] == b {
			kids = append(kids, c)
		}
	}
	return kids
}

// Frontier returns the dominance frontier of every block in the tree.
func (t *DomTree) Frontier(f *Function) map[*Block][]*Block {
	df := make(map[*Block][]*Block)
	for _, b := range f.Blocks {
		if _, ok := t.order[b]; !ok || len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			if _, ok := t.order[p]; !ok {
				continue
			}
			for runner := p; runner != nil && runner != t.idom[b]; runner = t.idom[runner] {
				if !containsBlock(df[runner], b) {
					df[runner] = append(df[runner], b)
				}
			}
		}
	}
	return df
}
