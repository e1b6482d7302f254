package ir

import (
	"fmt"
	"strings"
)

// Instr is a decoded instruction of a function.
//
// The set of instructions is closed: Label, Jump, Return, Assignment and
// Opaque are the only implementations. Passes switch on the concrete type.
type Instr interface {
	// Block returns the block currently containing the instruction,
	// or nil before CFG construction.
	Block() *Block

	String() string

	setBlock(b *Block)
	aInstr()
}

// instr is embedded by every instruction and holds the owning-block link.
type instr struct {
	block *Block
}

func (i *instr) Block() *Block     { return i.block }
func (i *instr) setBlock(b *Block) { i.block = b }
func (i *instr) aInstr()           {}

// Label marks a jump target. It is never executed.
// Two labels are the same label only if they are the same pointer.
type Label struct {
	instr
	Name string
}

// NewLabel returns a new label with the given display name.
func NewLabel(name string) *Label {
	return &Label{Name: name}
}

func (l *Label) String() string { return l.Name + ":" }

// Jump transfers control to Dest. A conditional jump falls through to the
// next instruction when Cond does not hold.
type Jump struct {
	instr

	Dest        *Label
	Conditional bool

	// Cond is the tested expression of a conditional jump. May be nil.
	Cond Expr

	// BlockDest is the block bound to Dest, set by CFG construction.
	BlockDest *Block
}

// NewJump returns an unconditional jump to dest.
func NewJump(dest *Label) *Jump {
	return &Jump{Dest: dest}
}

// NewCondJump returns a conditional jump to dest taken on cond.
func NewCondJump(cond Expr, dest *Label) *Jump {
	return &Jump{Dest: dest, Conditional: true, Cond: cond}
}

// LabelName returns the name of the destination label, or "?" if the jump
// has none.
func (j *Jump) LabelName() string {
	if j.Dest == nil {
		return "?"
	}
	return j.Dest.Name
}

func (j *Jump) String() string {
	target := j.LabelName()
	if j.BlockDest != nil {
		target = fmt.Sprintf("%s (%s)", target, j.BlockDest)
	}
	if !j.Conditional {
		return "goto " + target
	}
	if j.Cond == nil {
		return "if ? goto " + target
	}
	return fmt.Sprintf("if %s goto %s", j.Cond, target)
}

// Return leaves the function.
type Return struct {
	instr

	Values []Expr

	// IsTailReturn is set on the return emitted right after a tail call.
	IsTailReturn bool
}

// NewReturn returns a return of the given values.
func NewReturn(values ...Expr) *Return {
	return &Return{Values: values}
}

func (r *Return) String() string {
	var sb strings.Builder
	sb.WriteString("return")
	for i, v := range r.Values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(' ')
		sb.WriteString(v.String())
	}
	if r.IsTailReturn {
		sb.WriteString(" [tail]")
	}
	return sb.String()
}

// Assignment stores Right into every target of Left.
type Assignment struct {
	instr

	Left  []*IdentifierReference
	Right Expr
}

// NewAssignment returns the assignment left = right.
func NewAssignment(left []*IdentifierReference, right Expr) *Assignment {
	return &Assignment{Left: left, Right: right}
}

func (a *Assignment) String() string {
	parts := make([]string, len(a.Left))
	for i, l := range a.Left {
		parts[i] = l.String()
	}
	right := "nil"
	if a.Right != nil {
		right = a.Right.String()
	}
	return strings.Join(parts, ", ") + " = " + right
}

// Opaque is any other decoded instruction. The CFG treats it as straight-line
// code; Text is kept for printing.
type Opaque struct {
	instr
	Text string
}

// NewOpaque returns an opaque instruction with the given text.
func NewOpaque(text string) *Opaque {
	return &Opaque{Text: text}
}

func (o *Opaque) String() string { return o.Text }
