// Package listing loads decoded instruction streams from YAML.
//
// A listing stands in for the bytecode parser: it yields functions whose
// Instructions are populated and nothing else.
//
//	version: 0x51
//	functions:
//	  - name: main
//	    code:
//	      - {op: cjmp, cond: r0, dest: L1}
//	      - {op: set, left: [r1], right: r2}
//	      - {op: label, name: L1}
//	      - {op: ret, values: [r1]}
//	    closures: []
//
// Expressions are written as nil, true, false, numbers, quoted strings,
// identifiers, or name[expr]. Identifiers r<N> are registers, u<N> are
// upvalues, anything else is a global.
package listing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

// Instruction op names.
const (
	OpLabel = "label"
	OpJump  = "jmp"
	OpCJump = "cjmp"
	OpRet   = "ret"
	OpSet   = "set"
	OpRaw   = "raw"
)

// File is the YAML document.
type File struct {
	Version   *int       `yaml:"version"`
	Dialect   string     `yaml:"dialect"`
	Functions []FuncSpec `yaml:"functions"`
}

// FuncSpec is one function of the document.
type FuncSpec struct {
	Name     string      `yaml:"name"`
	Code     []InstrSpec `yaml:"code"`
	Closures []FuncSpec  `yaml:"closures"`
}

// InstrSpec is one instruction of a function.
type InstrSpec struct {
	Op     string   `yaml:"op"`
	Name   string   `yaml:"name"`
	Dest   string   `yaml:"dest"`
	Cond   string   `yaml:"cond"`
	Left   []string `yaml:"left"`
	Right  string   `yaml:"right"`
	Values []string `yaml:"values"`
	Tail   bool     `yaml:"tail"`
	Text   string   `yaml:"text"`
}

// Listing is a loaded document.
type Listing struct {
	Dialect   luafile.Dialect
	Functions []*ir.Function
}

// LoadFile reads the listing at path.
func LoadFile(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(bytes.NewReader(data))
}

// Load reads a listing from r.
func Load(r io.Reader) (*Listing, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("listing: empty document")
		}
		return nil, fmt.Errorf("listing: %w", err)
	}
	return file.Build()
}

// Build converts the document into functions.
func (file *File) Build() (*Listing, error) {
	l := &Listing{Dialect: luafile.DialectHavok}
	switch {
	case file.Dialect != "":
		d, err := luafile.ParseDialect(file.Dialect)
		if err != nil {
			return nil, fmt.Errorf("listing: %w", err)
		}
		l.Dialect = d
	case file.Version != nil:
		if *file.Version < 0 || *file.Version > 0xff {
			return nil, fmt.Errorf("listing: version %#x out of range", *file.Version)
		}
		l.Dialect = luafile.DialectForVersion(byte(*file.Version))
	}

	for i := range file.Functions {
		f, err := buildFunc(&file.Functions[i])
		if err != nil {
			return nil, err
		}
		l.Functions = append(l.Functions, f)
	}
	return l, nil
}

// funcBuilder resolves names to shared identifiers and labels within
// one function.
type funcBuilder struct {
	name   string
	idents map[string]*ir.Identifier
	labels map[string]*ir.Label
}

func buildFunc(spec *FuncSpec) (*ir.Function, error) {
	if spec.Name == "" {
		return nil, errors.New("listing: function without name")
	}
	b := &funcBuilder{
		name:   spec.Name,
		idents: make(map[string]*ir.Identifier),
		labels: make(map[string]*ir.Label),
	}

	f := ir.NewFunction(spec.Name)
	for i := range spec.Code {
		in, err := b.instr(&spec.Code[i])
		if err != nil {
			return nil, fmt.Errorf("listing: func %s: instr %d: %w", spec.Name, i, err)
		}
		f.Instructions = append(f.Instructions, in)
	}

	for i := range spec.Closures {
		c, err := buildFunc(&spec.Closures[i])
		if err != nil {
			return nil, err
		}
		f.Closures = append(f.Closures, c)
	}
	return f, nil
}

func (b *funcBuilder) instr(s *InstrSpec) (ir.Instr, error) {
	switch s.Op {
	case OpLabel:
		if s.Name == "" {
			return nil, errors.New("label without name")
		}
		return b.label(s.Name), nil

	case OpJump, OpCJump:
		if s.Dest == "" {
			return nil, fmt.Errorf("%s without dest", s.Op)
		}
		if s.Op == OpJump {
			return ir.NewJump(b.label(s.Dest)), nil
		}
		var cond ir.Expr
		if s.Cond != "" {
			e, err := b.expr(s.Cond)
			if err != nil {
				return nil, err
			}
			cond = e
		}
		return ir.NewCondJump(cond, b.label(s.Dest)), nil

	case OpRet:
		r := ir.NewReturn()
		for _, v := range s.Values {
			e, err := b.expr(v)
			if err != nil {
				return nil, err
			}
			r.Values = append(r.Values, e)
		}
		r.IsTailReturn = s.Tail
		return r, nil

	case OpSet:
		if len(s.Left) == 0 {
			return nil, errors.New("set without targets")
		}
		left := make([]*ir.IdentifierReference, len(s.Left))
		for i, t := range s.Left {
			e, err := b.expr(t)
			if err != nil {
				return nil, err
			}
			ref, ok := e.(*ir.IdentifierReference)
			if !ok {
				return nil, fmt.Errorf("cannot assign to %s", t)
			}
			left[i] = ref
		}
		right, err := b.expr(s.Right)
		if err != nil {
			return nil, err
		}
		return ir.NewAssignment(left, right), nil

	case OpRaw:
		return ir.NewOpaque(s.Text), nil

	default:
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}
}

func (b *funcBuilder) label(name string) *ir.Label {
	l, ok := b.labels[name]
	if !ok {
		l = ir.NewLabel(name)
		b.labels[name] = l
	}
	return l
}

func (b *funcBuilder) ident(name string) *ir.Identifier {
	id, ok := b.idents[name]
	if !ok {
		id = ir.NewIdentifier(name, identKind(name))
		b.idents[name] = id
	}
	return id
}

func identKind(name string) ir.IdentKind {
	if len(name) > 1 {
		if _, err := strconv.Atoi(name[1:]); err == nil {
			switch name[0] {
			case 'r':
				return ir.IdentRegister
			case 'u':
				return ir.IdentUpvalue
			}
		}
	}
	return ir.IdentGlobal
}

func (b *funcBuilder) expr(s string) (ir.Expr, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, errors.New("empty expression")
	case s == "nil":
		return ir.NewConstant(nil), nil
	case s == "true" || s == "false":
		return ir.NewConstant(s == "true"), nil
	case s[0] == '"':
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("bad string %s: %w", s, err)
		}
		return ir.NewConstant(v), nil
	}
	if isNumberStart(s[0]) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %s", s)
		}
		return ir.NewConstant(v), nil
	}

	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") || i == 0 {
			return nil, fmt.Errorf("bad index expression %s", s)
		}
		index, err := b.expr(s[i+1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		return ir.NewIndexedRef(b.ident(s[:i]), index), nil
	}
	if !isName(s) {
		return nil, fmt.Errorf("bad expression %s", s)
	}
	return ir.NewRef(b.ident(s)), nil
}

// isNumberStart reports whether c can begin a numeric constant. Names such
// as inf or nan are globals, not numbers.
func isNumberStart(c byte) bool {
	return c >= '0' && c <= '9' || c == '.' || c == '-' || c == '+'
}

func isName(s string) bool {
	for i, c := range s {
		switch {
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
