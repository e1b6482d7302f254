package analyzer

import (
	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

// ReturnFilter decides, in stream order, which return instructions take
// part in the control flow graph. A filter is used for a single pass over
// one function.
type ReturnFilter interface {
	Keep(r *ir.Return) bool
}

// NewReturnFilter returns a fresh filter for the dialect.
func NewReturnFilter(d luafile.Dialect) ReturnFilter {
	if d == luafile.DialectLua50 {
		return &CullTailReturns{}
	}
	return KeepReturns{}
}

// KeepReturns keeps every return.
type KeepReturns struct{}

func (KeepReturns) Keep(*ir.Return) bool { return true }

// CullTailReturns drops the single return that follows a tail-return.
// A run of several tail-returns is not collapsed further: only the return
// right after a kept tail-return is dropped.
type CullTailReturns struct {
	cullNext bool
}

func (c *CullTailReturns) Keep(r *ir.Return) bool {
	if c.cullNext {
		c.cullNext = false
		return false
	}
	c.cullNext = r.IsTailReturn
	return true
}
