package analyzer_test

import (
	"fmt"
	"math/rand"

	"github.com/ethereum/go-ethereum/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/you-not-fish/hvkdec/internal/analyzer"
	"github.com/you-not-fish/hvkdec/internal/ir"
	"github.com/you-not-fish/hvkdec/internal/luafile"
)

func buildCFG(d luafile.Dialect, instrs ...ir.Instr) *ir.Function {
	f := ir.NewFunction("f", instrs...)
	(&analyzer.ConstructCFG{Dialect: d}).Analyze(f)
	return f
}

func countReturns(f *ir.Function) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if _, ok := in.(*ir.Return); ok {
				n++
			}
		}
	}
	return n
}

func expectSymmetric(f *ir.Function) {
	for _, b := range f.Blocks {
		for _, s := range b.Succs {
			Expect(s.Preds).To(ContainElement(b), "%s -> %s", b, s)
		}
		for _, p := range b.Preds {
			Expect(p.Succs).To(ContainElement(b), "%s <- %s", b, p)
		}
	}
}

func expectMergedToFixedPoint(f *ir.Function) {
	for i, b := range f.Blocks {
		if len(b.Succs) != 1 {
			continue
		}
		s := b.Succs[0]
		if s == b || s == f.StartBlock || s == f.EndBlock || len(s.Preds) != 1 {
			continue
		}
		adjacent := i+1 < len(f.Blocks) && f.Blocks[i+1] == s
		Expect(b.EndsInJump() || adjacent).To(BeFalse(), "%s could still absorb %s", b, s)
	}
}

var _ = Describe("ConstructCFG", func() {
	var (
		cond  *ir.IdentifierReference
		l1    *ir.Label
		l2    *ir.Label
		other *ir.Opaque
		ret   *ir.Return
	)

	BeforeEach(func() {
		cond = ir.NewRef(ir.NewIdentifier("r0", ir.IdentRegister))
		l1 = ir.NewLabel("L1")
		l2 = ir.NewLabel("L2")
		other = ir.NewOpaque("CALL r1 1 1")
		ret = ir.NewReturn()
	})

	It("should split a conditional jump into fallthrough and target", func() {
		cj := ir.NewCondJump(cond, l1)
		f := buildCFG(luafile.DialectHavok, cj, other, l1, ret)

		Expect(f.IsControlFlowGraph).To(BeTrue())
		Expect(f.Instructions).To(BeNil())
		Expect(f.Blocks).To(HaveLen(4))

		b0, b1, b2, end := f.Blocks[0], f.Blocks[1], f.Blocks[2], f.Blocks[3]
		Expect(b0).To(BeIdenticalTo(f.StartBlock))
		Expect(end).To(BeIdenticalTo(f.EndBlock))
		Expect(b0.Instrs).To(Equal([]ir.Instr{cj}))
		Expect(b0.Succs).To(Equal([]*ir.Block{b1, b2}))
		Expect(b1.Instrs).To(Equal([]ir.Instr{other}))
		Expect(b1.Succs).To(Equal([]*ir.Block{b2}))
		Expect(b2.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(b2.Succs).To(Equal([]*ir.Block{end}))
		Expect(cj.BlockDest).To(BeIdenticalTo(b2))

		Expect(ir.Verify(f)).To(Succeed())
		expectSymmetric(f)
	})

	It("should merge a jump into its label block", func() {
		j := ir.NewJump(l1)
		f := buildCFG(luafile.DialectHavok, j, l1, ret)

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(f.StartBlock.Succs).To(Equal([]*ir.Block{f.EndBlock}))
		Expect(f.EndBlock.Preds).To(Equal([]*ir.Block{f.StartBlock}))
		Expect(ret.Block()).To(BeIdenticalTo(f.StartBlock))
		Expect(j.Block()).To(BeNil())
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should keep then and else targets distinct for an empty body", func() {
		cj := ir.NewCondJump(cond, l1)
		f := buildCFG(luafile.DialectHavok, cj, l1, ret)

		Expect(f.Blocks).To(HaveLen(4))
		start := f.StartBlock
		Expect(start.Succs).To(HaveLen(2))
		Expect(start.Succs[0]).NotTo(BeIdenticalTo(start.Succs[1]))

		placeholder := start.Succs[0]
		target := start.Succs[1]
		Expect(placeholder.Instrs).To(HaveLen(1))
		pj, ok := placeholder.Instrs[0].(*ir.Jump)
		Expect(ok).To(BeTrue())
		Expect(pj.Conditional).To(BeFalse())
		Expect(pj.Dest).To(BeIdenticalTo(l1))
		Expect(pj.BlockDest).To(BeIdenticalTo(target))
		Expect(pj.Block()).To(BeIdenticalTo(placeholder))
		Expect(placeholder.Succs).To(Equal([]*ir.Block{target}))
		Expect(target.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should prune code after an unconditional jump", func() {
		dead := ir.NewOpaque("dead")
		f := buildCFG(luafile.DialectHavok, ir.NewJump(l1), dead, l1, ret)

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(dead.Block()).NotTo(BeIdenticalTo(f.StartBlock))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should prune unreachable cycles", func() {
		spin := ir.NewOpaque("spin")
		f := buildCFG(luafile.DialectHavok, ret, l1, spin, ir.NewJump(l1))

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should keep loops", func() {
		body := ir.NewOpaque("body")
		cj := ir.NewCondJump(cond, l1)
		f := buildCFG(luafile.DialectHavok, l1, body, cj, ret)

		Expect(f.Blocks).To(HaveLen(4))
		start, loop, exit := f.Blocks[0], f.Blocks[1], f.Blocks[2]
		Expect(start.Instrs).To(BeEmpty())
		Expect(start.Succs).To(Equal([]*ir.Block{loop}))
		Expect(loop.Instrs).To(Equal([]ir.Instr{body, cj}))
		Expect(loop.Succs).To(Equal([]*ir.Block{exit, loop}))
		Expect(loop.Preds).To(ConsistOf(start, loop))
		Expect(exit.Instrs).To(Equal([]ir.Instr{ret}))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should merge fallthrough chains", func() {
		a, b := ir.NewOpaque("a"), ir.NewOpaque("b")
		f := buildCFG(luafile.DialectHavok, a, l1, b, l2, ret)

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.Instrs).To(Equal([]ir.Instr{a, b, ret}))
		for _, in := range f.StartBlock.Instrs {
			Expect(in.Block()).To(BeIdenticalTo(f.StartBlock))
		}
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should not merge into a block with several predecessors", func() {
		cj := ir.NewCondJump(cond, l2)
		a, b := ir.NewOpaque("a"), ir.NewOpaque("b")
		f := buildCFG(luafile.DialectHavok, cj, a, l2, b, ret)

		Expect(f.Blocks).To(HaveLen(4))
		join := f.Blocks[2]
		Expect(join.Instrs).To(Equal([]ir.Instr{b, ret}))
		Expect(join.Preds).To(HaveLen(2))
		expectMergedToFixedPoint(f)
	})

	It("should send blocks without a return to the end block", func() {
		f := buildCFG(luafile.DialectHavok, other)

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.Succs).To(Equal([]*ir.Block{f.EndBlock}))
		Expect(f.EndBlock.Preds).To(Equal([]*ir.Block{f.StartBlock}))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should build a graph for an empty function", func() {
		f := buildCFG(luafile.DialectHavok)

		Expect(f.Blocks).To(HaveLen(2))
		Expect(f.StartBlock.ID).To(Equal(ir.ID(0)))
		Expect(f.EndBlock.ID).To(Equal(ir.ID(1)))
		Expect(ir.Verify(f)).To(Succeed())
	})

	It("should number blocks per function", func() {
		f1 := buildCFG(luafile.DialectHavok, ir.NewCondJump(cond, l1), other, l1, ret)
		f2 := buildCFG(luafile.DialectHavok, ir.NewReturn())

		for _, f := range []*ir.Function{f1, f2} {
			for i, b := range f.Blocks {
				Expect(b.ID).To(Equal(ir.ID(i)))
			}
		}
	})

	It("should leave an existing graph alone", func() {
		f := buildCFG(luafile.DialectHavok, other, ret)
		blocks := append([]*ir.Block(nil), f.Blocks...)

		(&analyzer.ConstructCFG{}).Analyze(f)

		Expect(f.Blocks).To(Equal(blocks))
	})

	It("should panic on a jump to an unknown label", func() {
		missing := ir.NewLabel("L9")
		Expect(func() {
			buildCFG(luafile.DialectHavok, ir.NewJump(missing), ret)
		}).To(PanicWith(And(
			BeAssignableToTypeOf(&analyzer.MalformedError{}),
			HaveField("Label", "L9"),
		)))
	})

	It("should panic on a jump without a label", func() {
		Expect(func() {
			buildCFG(luafile.DialectHavok, other, ir.NewCondJump(cond, nil), ret)
		}).To(PanicWith(And(
			BeAssignableToTypeOf(&analyzer.MalformedError{}),
			HaveField("Reason", "jump without label"),
		)))
	})

	It("should panic on a label bound twice", func() {
		Expect(func() {
			buildCFG(luafile.DialectHavok, l1, other, l1, ret)
		}).To(PanicWith(HaveField("Reason", "duplicate label")))
	})

	Context("with tail-returns", func() {
		var (
			cj      *ir.Jump
			tailRet *ir.Return
			extra   *ir.Return
		)

		BeforeEach(func() {
			cj = ir.NewCondJump(cond, l1)
			tailRet = ir.NewReturn()
			tailRet.IsTailReturn = true
			extra = ir.NewReturn()
		})

		It("should keep every return in the havok dialect", func() {
			f := buildCFG(luafile.DialectHavok, cj, other, tailRet, l1, extra)

			Expect(countReturns(f)).To(Equal(2))
			Expect(f.Blocks[2].Instrs).To(Equal([]ir.Instr{extra}))
			Expect(ir.Verify(f)).To(Succeed())
		})

		It("should drop the return after a tail-return in the lua50 dialect", func() {
			f := buildCFG(luafile.DialectLua50, cj, other, tailRet, l1, extra)

			Expect(countReturns(f)).To(Equal(1))
			Expect(extra.Block()).To(BeNil())
			target := f.StartBlock.Succs[1]
			Expect(target.Instrs).To(BeEmpty())
			Expect(target.Succs).To(Equal([]*ir.Block{f.EndBlock}))
			Expect(ir.Verify(f)).To(Succeed())
		})

		It("should only drop one return", func() {
			third := ir.NewReturn()
			f := buildCFG(luafile.DialectLua50, cj, tailRet, l1, extra, third)

			Expect(countReturns(f)).To(Equal(2))
			Expect(third.Block()).NotTo(BeNil())
		})
	})

	It("should produce well formed graphs for random streams", func() {
		rng := rand.New(rand.NewSource(1))
		for n := 0; n < 200; n++ {
			instrs := randomStream(rng)
			f := buildCFG(luafile.DialectHavok, instrs...)

			Expect(ir.Verify(f)).To(Succeed(), "stream %d:\n%s", n, ir.Sprint(f))
			expectSymmetric(f)
			expectMergedToFixedPoint(f)

			owner := make(map[ir.Instr]*ir.Block)
			for _, b := range f.Blocks {
				for _, in := range b.Instrs {
					Expect(owner).NotTo(HaveKey(in))
					owner[in] = b
				}
			}
			if countReturns(f) > 0 {
				Expect(f.EndBlock.Preds).NotTo(BeEmpty())
			}
		}
	})

	It("should verify after the default pipeline for random lua50 streams", func() {
		rng := rand.New(rand.NewSource(2))
		cfg := analyzer.Config{Verify: true, Logger: log.NewLogger(log.DiscardHandler())}
		for n := 0; n < 200; n++ {
			x := ir.NewIdentifier("x", ir.IdentRegister)
			instrs := randomStream(rng)
			for i := 0; i < 1+rng.Intn(4); i++ {
				var in ir.Instr
				if rng.Intn(2) == 0 {
					in = tailReturn()
				} else {
					in = assign(ir.NewRef(x), ir.NewRef(x))
				}
				pos := rng.Intn(len(instrs) + 1)
				instrs = append(instrs[:pos], append([]ir.Instr{in}, instrs[pos:]...)...)
			}
			f := ir.NewFunction("f", instrs...)

			err := analyzer.Run(f, analyzer.DefaultPasses(luafile.DialectLua50), cfg)

			Expect(err).NotTo(HaveOccurred(), "stream %d:\n%s", n, ir.Sprint(f))
			expectSymmetric(f)
			for _, b := range f.Blocks {
				for _, in := range b.Instrs {
					if a, ok := in.(*ir.Assignment); ok {
						ref, isRef := a.Right.(*ir.IdentifierReference)
						Expect(isRef && ref.Identifier == x).To(BeFalse(), "%s survived in %s", a, b)
					}
				}
			}
		}
	})
})

// randomStream returns an instruction stream in which every label appears
// exactly once and every jump targets one of those labels.
func randomStream(rng *rand.Rand) []ir.Instr {
	labels := make([]*ir.Label, 1+rng.Intn(5))
	for i := range labels {
		labels[i] = ir.NewLabel(fmt.Sprintf("L%d", i))
	}
	cond := ir.NewRef(ir.NewIdentifier("c", ir.IdentRegister))

	var out []ir.Instr
	for i := 0; i < 4+rng.Intn(16); i++ {
		switch rng.Intn(6) {
		case 0:
			out = append(out, ir.NewJump(labels[rng.Intn(len(labels))]))
		case 1:
			out = append(out, ir.NewCondJump(cond, labels[rng.Intn(len(labels))]))
		case 2:
			out = append(out, ir.NewReturn())
		default:
			out = append(out, ir.NewOpaque(fmt.Sprintf("op%d", i)))
		}
	}
	for _, l := range labels {
		pos := rng.Intn(len(out) + 1)
		out = append(out[:pos], append([]ir.Instr{l}, out[pos:]...)...)
	}
	return out
}
