// Package analyzer runs analysis and rewrite passes over decoded functions.
//
// Every pass implements Analyzer and mutates the function in place. The
// first pass of any pipeline is ConstructCFG; passes that read blocks are
// marked RequiresCFG and are rejected by Run if they come earlier.
package analyzer

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

// Analyzer is a pass over a single function.
type Analyzer interface {
	Analyze(f *ir.Function)
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(f *ir.Function)

// Analyze calls fn(f).
func (fn AnalyzerFunc) Analyze(f *ir.Function) { fn(f) }

// Pass describes a single named analyzer in a pipeline.
type Pass struct {
	Name     string
	Analyzer Analyzer

	// RequiresCFG marks passes that read blocks, edges or an
	// instruction's owning block.
	RequiresCFG bool
}

// DefaultPasses returns the standard pipeline for the dialect.
func DefaultPasses(d luafile.Dialect) []Pass {
	return []Pass{
		{Name: "cfg", Analyzer: &ConstructCFG{Dialect: d}},
		{Name: "redundant-assign", Analyzer: RedundantAssignments{}, RequiresCFG: true},
	}
}

// Config controls pass execution behavior.
type Config struct {
	DumpBefore string    // dump function before this pass ("*" for all)
	DumpAfter  string    // dump function after this pass ("*" for all)
	Verify     bool      // verify the CFG after each pass once it exists
	DumpFunc   string    // restrict dumps to this function name
	Out        io.Writer // dump destination; os.Stderr if nil
	Logger     log.Logger
}

func (c *Config) out() io.Writer {
	if c.Out == nil {
		return os.Stderr
	}
	return c.Out
}

func (c *Config) logger() log.Logger {
	if c.Logger == nil {
		return log.Root()
	}
	return c.Logger
}

// Run executes the given passes on f in order. Passes run one at a time;
// a function must not be handed to two Runs at once.
func Run(f *ir.Function, passes []Pass, cfg Config) error {
	logger := cfg.logger().With("func", f.Name)
	w := cfg.out()

	for _, p := range passes {
		if p.RequiresCFG && !f.IsControlFlowGraph {
			return fmt.Errorf("pass %s on %s: %w", p.Name, f.Name, ErrNoCFG)
		}

		if shouldDump(cfg.DumpBefore, p.Name) && matchFunc(cfg.DumpFunc, f.Name) {
			fmt.Fprintf(w, "--- before %s (%s) ---\n", p.Name, f.Name)
			ir.Fprint(w, f)
			fmt.Fprintln(w)
		}

		start := time.Now()
		if err := runPass(f, p); err != nil {
			logger.Debug("Analyzer failed", "pass", p.Name, "err", err)
			return fmt.Errorf("pass %s: %w", p.Name, err)
		}
		logger.Debug("Ran analyzer", "pass", p.Name, "blocks", f.NumBlocks(),
			"instrs", f.NumInstrs(), "elapsed", time.Since(start))

		if cfg.Verify && f.IsControlFlowGraph {
			if err := ir.Verify(f); err != nil {
				return fmt.Errorf("verify after %s: %w", p.Name, err)
			}
		}

		if shouldDump(cfg.DumpAfter, p.Name) && matchFunc(cfg.DumpFunc, f.Name) {
			fmt.Fprintf(w, "--- after %s (%s) ---\n", p.Name, f.Name)
			ir.Fprint(w, f)
			fmt.Fprintln(w)
		}
	}
	return nil
}

// RunAll runs the passes on f and then on each nested closure, stopping at
// the first failure.
func RunAll(f *ir.Function, passes []Pass, cfg Config) error {
	var err error
	f.Walk(func(fn *ir.Function) bool {
		err = Run(fn, passes, cfg)
		return err == nil
	})
	return err
}

// runPass calls the analyzer, converting a *MalformedError panic into an error.
func runPass(f *ir.Function, p Pass) (err error) {
	defer func() {
		if r := recover(); r != nil {
			me, ok := r.(*MalformedError)
			if !ok {
				panic(r)
			}
			err = me
		}
	}()
	p.Analyzer.Analyze(f)
	return nil
}

func shouldDump(pattern, name string) bool {
	return pattern == "*" || pattern == name
}

func matchFunc(filter, name string) bool {
	return filter == "" || filter == name
}
