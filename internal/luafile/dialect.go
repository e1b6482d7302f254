package luafile

import "fmt"

// Dialect selects how return instructions are interpreted when building
// the control flow graph.
type Dialect int

const (
	// DialectHavok treats every return as a block terminator.
	DialectHavok Dialect = iota
	// DialectLua50 drops the redundant return the Lua 5.0 compiler emits
	// right after a tail-return.
	DialectLua50
)

var dialectNames = [...]string{
	DialectHavok: "havok",
	DialectLua50: "lua50",
}

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	if int(d) < len(dialectNames) {
		return dialectNames[d]
	}
	return "unknown"
}

// ParseDialect returns the dialect with the given name.
func ParseDialect(s string) (Dialect, error) {
	for d, name := range dialectNames {
		if name == s {
			return Dialect(d), nil
		}
	}
	return 0, fmt.Errorf("unknown dialect %q (use havok or lua50)", s)
}

// DialectForVersion returns the dialect for a header version byte.
func DialectForVersion(v byte) Dialect {
	if v == VersionLua50 {
		return DialectLua50
	}
	return DialectHavok
}
