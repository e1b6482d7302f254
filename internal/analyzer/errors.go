package analyzer

import (
	"errors"
	"fmt"
)

// ErrNoCFG is returned by Run when a pass that reads blocks is scheduled
// before the control flow graph has been built.
var ErrNoCFG = errors.New("control flow graph not built")

// MalformedError reports input that no control flow graph can be built
// from, such as a jump to a label that never starts a block. The function
// cannot be decompiled.
type MalformedError struct {
	Func   string
	Label  string
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("func %s: %s", e.Func, e.Reason)
	}
	return fmt.Sprintf("func %s: %s %s", e.Func, e.Reason, e.Label)
}
