// Package main implements the hvkdec command: it loads a decoded
// instruction listing, builds each function's control flow graph, runs the
// cleanup passes and prints the result.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"github.com/you-not-fish/hvkdec/internal/analyzer"
	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/listing"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

// Command flags
var (
	emit       = flag.String("emit", "cfg", "Output format (cfg, json or table)")
	headerFile = flag.String("header", "", "Derive the dialect from this bytecode file's header")
	dialect    = flag.String("dialect", "", "Force the dialect (havok or lua50)")
	output     = flag.String("o", "", "Output file")
	verify     = flag.Bool("verify", false, "Verify the CFG after each pass")
	dumpBefore = flag.String("dump-before", "", "Dump function before pass (name or \"*\")")
	dumpAfter  = flag.String("dump-after", "", "Dump function after pass (name or \"*\")")
	dumpFunc   = flag.String("dump-func", "", "Only dump and print a specific function")
	verbose    = flag.Bool("v", false, "Log every pass")
	version    = flag.Bool("version", false, "Print version")
)

// Version information
const Version = "0.1.0-dev"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Havok Lua CFG builder %s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: hvkdec [options] <listing.yaml>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("hvkdec version %s\n", Version)
		fmt.Printf("go version %s\n", runtime.Version())
		atexit.Exit(0)
	}

	lvl := log.LevelInfo
	if *verbose {
		lvl = log.LevelDebug
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: no input file")
		fmt.Fprintln(os.Stderr, "usage: hvkdec [options] <listing.yaml>")
		atexit.Exit(1)
	}

	var stdout io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			atexit.Exit(1)
		}
		atexit.Register(func() {
			if err := f.Close(); err != nil {
				log.Error("Failed to close output", "file", *output, "err", err)
			}
		})
		stdout = f
	}

	atexit.Exit(run(args[0], stdout, os.Stderr))
}

// run loads the listing, runs the default pipeline over every function and
// its closures, and writes the chosen output format to stdout.
func run(filename string, stdout, stderr io.Writer) int {
	l, err := listing.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	d, err := pickDialect(l)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	log.Debug("Loaded listing", "file", filename, "functions", len(l.Functions), "dialect", d)

	passCfg := analyzer.Config{
		DumpBefore: *dumpBefore,
		DumpAfter:  *dumpAfter,
		Verify:     *verify,
		DumpFunc:   *dumpFunc,
		Out:        stderr,
		Logger:     log.Root(),
	}

	for _, fn := range l.Functions {
		if err := analyzer.RunAll(fn, analyzer.DefaultPasses(d), passCfg); err != nil {
			fmt.Fprintf(stderr, "pipeline failed for %s:\n%v\n", fn.Name, err)
			return 1
		}
	}

	switch *emit {
	case "cfg":
		emitCFG(stdout, l.Functions)
	case "json":
		for _, fn := range l.Functions {
			if !matchFunc(fn) {
				continue
			}
			if err := ir.FprintJSON(stdout, fn); err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return 1
			}
		}
	case "table":
		emitTable(stdout, l.Functions)
	default:
		fmt.Fprintf(stderr, "error: unknown output format %q (use cfg, json or table)\n", *emit)
		return 1
	}
	return 0
}

// pickDialect resolves the dialect: -dialect wins over -header, which wins
// over whatever the listing declares.
func pickDialect(l *listing.Listing) (luafile.Dialect, error) {
	if *dialect != "" {
		return luafile.ParseDialect(*dialect)
	}
	if *headerFile != "" {
		h, err := luafile.ReadHeaderFile(*headerFile)
		if err != nil {
			return 0, err
		}
		log.Debug("Read bytecode header", "file", *headerFile,
			"version", fmt.Sprintf("%#x", h.LuaVersion), "game", h.GameByte)
		return h.Dialect(), nil
	}
	return l.Dialect, nil
}

func matchFunc(fn *ir.Function) bool {
	return *dumpFunc == "" || fn.Name == *dumpFunc
}

// emitCFG prints every function and closure in block form.
func emitCFG(w io.Writer, funcs []*ir.Function) {
	first := true
	for _, top := range funcs {
		top.Walk(func(fn *ir.Function) bool {
			if !matchFunc(fn) {
				return true
			}
			if !first {
				fmt.Fprintln(w)
			}
			first = false
			ir.Fprint(w, fn)
			return true
		})
	}
}

// emitTable prints one summary table per function, with each block's
// immediate dominator.
func emitTable(w io.Writer, funcs []*ir.Function) {
	for _, top := range funcs {
		top.Walk(func(fn *ir.Function) bool {
			if !matchFunc(fn) {
				return true
			}
			dom := ir.ComputeDom(fn)
			t := table.NewWriter()
			t.SetTitle("func " + fn.Name)
			t.AppendHeader(table.Row{"Block", "Instrs", "Preds", "Succs", "Idom", "Last"})
			for _, b := range fn.Blocks {
				idom, last := "-", ""
				if d := dom.Idom(b); d != nil {
					idom = d.String()
				}
				if in := b.Last(); in != nil {
					last = in.String()
				}
				t.AppendRow(table.Row{b.String(), b.NumInstrs(), joinBlocks(b.Preds), joinBlocks(b.Succs), idom, last})
			}
			t.AppendFooter(table.Row{"", fn.NumInstrs(), "", "", "", ""})
			fmt.Fprintln(w, t.Render())
			fmt.Fprintln(w)
			return true
		})
	}
}

func joinBlocks(bs []*ir.Block) string {
	s := make([]string, len(bs))
	for i, b := range bs {
		s[i] = b.String()
	}
	return strings.Join(s, " ")
}
