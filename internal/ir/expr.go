package ir

import (
	"fmt"
	"strconv"
)

// IdentKind classifies an identifier.
type IdentKind int

const (
	IdentRegister IdentKind = iota
	IdentGlobal
	IdentUpvalue
)

var identKindNames = [...]string{
	IdentRegister: "register",
	IdentGlobal:   "global",
	IdentUpvalue:  "upvalue",
}

// String returns the string representation of the identifier kind.
func (k IdentKind) String() string {
	if int(k) < len(identKindNames) {
		return identKindNames[k]
	}
	return "unknown"
}

// Identifier names a variable. Identifiers are compared by pointer;
// the parsing collaborator hands out one *Identifier per variable.
type Identifier struct {
	Name string
	Kind IdentKind
}

// NewIdentifier returns a new identifier.
func NewIdentifier(name string, kind IdentKind) *Identifier {
	return &Identifier{Name: name, Kind: kind}
}

func (id *Identifier) String() string { return id.Name }

// Expr is a value-producing expression.
type Expr interface {
	String() string
	aExpr()
}

// IdentifierReference reads Identifier, or Identifier[Index] when Index is set.
type IdentifierReference struct {
	Identifier *Identifier
	Index      Expr
}

// NewRef returns a non-indexed reference to id.
func NewRef(id *Identifier) *IdentifierReference {
	return &IdentifierReference{Identifier: id}
}

// NewIndexedRef returns the reference id[index].
func NewIndexedRef(id *Identifier, index Expr) *IdentifierReference {
	return &IdentifierReference{Identifier: id, Index: index}
}

// HasIndex reports whether the reference is subscripted.
func (r *IdentifierReference) HasIndex() bool { return r.Index != nil }

func (r *IdentifierReference) String() string {
	if r.Index != nil {
		return fmt.Sprintf("%s[%s]", r.Identifier, r.Index)
	}
	return r.Identifier.String()
}

func (*IdentifierReference) aExpr() {}

// Constant is a literal value: nil, bool, float64 or string.
type Constant struct {
	Value interface{}
}

// NewConstant returns a constant expression.
func NewConstant(v interface{}) *Constant {
	return &Constant{Value: v}
}

func (c *Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (*Constant) aExpr() {}
