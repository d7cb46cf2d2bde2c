// Package codegen serializes the structured intermediate form into the
// target machine's module text. One Generator translates one code
// section; nothing here is shared between translation workers.
package codegen

import (
	"fmt"

	"github.com/holiman/uint256"
	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
	"github.com/w2k-star-forks/zksync-compiler-solidity/optable"
	"github.com/w2k-star-forks/zksync-compiler-solidity/regions"
	"github.com/w2k-star-forks/zksync-compiler-solidity/syscalls"
)

type Generator struct {
	table  *optable.Table
	ctx    optable.CodeContext
	layout *regions.Layout
	sink   *diag.Sink

	mod *lir.Module
	rt  *runtime

	fn     *lir.Func
	blocks []*lir.Block
	// finals tracks where emission of each source block actually ended;
	// query expansion splits blocks, and phi edges must name the final
	// piece.
	finals []*lir.Block
	values map[ir.ValueID]value.Value
	phis   []pendingPhi

	// badJump is the shared trap for dynamic jumps that miss every
	// known destination. Created on first use.
	badJump *lir.Block
	// bubble is the shared revert-forwarding failure path of system
	// queries. Created on first use.
	bubble *lir.Block

	factoryDeps []string

	// elided marks op indices removed by the forwarding pass, keyed by
	// block index then op index.
	elided map[int]map[int]regions.ForwardKind
}

type pendingPhi struct {
	inst  *lir.InstPhi
	block int
	spec  ir.Phi
}

func New(table *optable.Table, ctx optable.CodeContext, layout *regions.Layout, sink *diag.Sink) *Generator {
	return &Generator{
		table:  table,
		ctx:    ctx,
		layout: layout,
		sink:   sink,
	}
}

// Generate translates one function into a fresh target module. It
// returns false when a fatal diagnostic was recorded; the partial module
// is discarded in that case.
func (g *Generator) Generate(f *ir.Function) (*lir.Module, bool) {
	if syscalls.Reserved(f.Name) {
		g.sink.Errorf(diag.CodeReservedNameConflict, diag.SourceLocation{},
			"entry symbol %q collides with a reserved runtime name", f.Name)
		return nil, false
	}

	Fold(f)
	g.elided = markForwarding(f, g.sink)

	g.mod = lir.NewModule()
	g.rt = declareRuntime(g.mod)
	g.values = make(map[ir.ValueID]value.Value, f.NumValues)

	g.fn = g.mod.NewFunc(f.Name, Word)
	g.blocks = make([]*lir.Block, len(f.Blocks))
	g.finals = make([]*lir.Block, len(f.Blocks))
	for i := range f.Blocks {
		g.blocks[i] = g.fn.NewBlock(fmt.Sprintf("bb%d", i))
	}

	// Phis are created up front with their type pinned, and their
	// incoming edges patched once every predecessor has been emitted;
	// back edges make one-pass wiring impossible.
	for _, b := range f.Blocks {
		for _, phi := range b.Phis {
			inst := g.blocks[b.Index].NewPhi()
			inst.Typ = Word
			g.values[phi.Result] = inst
			g.phis = append(g.phis, pendingPhi{inst: inst, block: b.Index, spec: phi})
		}
	}

	for _, b := range f.Blocks {
		if !g.emitBlock(f, b) {
			return nil, false
		}
	}

	for _, p := range g.phis {
		for _, e := range p.spec.Edges {
			v, ok := g.values[e.Value]
			if !ok {
				// Edge from an unreachable predecessor.
				continue
			}
			p.inst.Incs = append(p.inst.Incs, lir.NewIncoming(v, g.finals[e.Pred]))
		}
	}

	if g.sink.HasErrors() {
		return nil, false
	}
	return g.mod, true
}

func (g *Generator) emitTerminator(blk *lir.Block, b *ir.Block) bool {
	t := b.Term
	switch t.Kind {
	case ir.TermNone:
		if len(t.Targets) == 0 {
			// A reachable block must not run off its end.
			blk.NewUnreachable()
			return true
		}
		blk.NewBr(g.blocks[t.Targets[0]])

	case ir.TermJump:
		if len(t.Targets) == 1 {
			blk.NewBr(g.blocks[t.Targets[0]])
			return true
		}
		// Dynamic dispatch over the destination value; a miss traps.
		cases := make([]*lir.Case, len(t.Targets))
		for i, target := range t.Targets {
			cases[i] = lir.NewCase(constant.NewInt(Word, int64(target)), g.blocks[target])
		}
		blk.NewSwitch(g.value(t.Cond), g.badJumpBlock(), cases...)

	case ir.TermBranch:
		taken := blk.NewICmp(enum.IPredNE, g.value(t.Cond), constant.NewInt(Word, 0))
		if t.Targets[0] == t.Targets[1] {
			blk.NewBr(g.blocks[t.Targets[0]])
			return true
		}
		blk.NewCondBr(taken, g.blocks[t.Targets[0]], g.blocks[t.Targets[1]])

	case ir.TermReturn:
		blk.NewCall(g.rt.ret, g.value(t.Args[0]), g.value(t.Args[1]))
		blk.NewUnreachable()

	case ir.TermRevert:
		blk.NewCall(g.rt.revert, g.value(t.Args[0]), g.value(t.Args[1]))
		blk.NewUnreachable()

	case ir.TermStop:
		zero := constant.NewInt(Word, 0)
		blk.NewCall(g.rt.ret, zero, zero)
		blk.NewUnreachable()

	case ir.TermInvalid:
		zero := constant.NewInt(Word, 0)
		blk.NewCall(g.rt.revert, zero, zero)
		blk.NewUnreachable()
	}
	return true
}

func (g *Generator) badJumpBlock() *lir.Block {
	if g.badJump == nil {
		g.badJump = g.fn.NewBlock("badjump")
		zero := constant.NewInt(Word, 0)
		g.badJump.NewCall(g.rt.revert, zero, zero)
		g.badJump.NewUnreachable()
	}
	return g.badJump
}

func (g *Generator) value(id ir.ValueID) value.Value {
	v, ok := g.values[id]
	if !ok {
		// Lifter output guarantees def-before-use; reaching this is a
		// translator bug, not an input error.
		panic(fmt.Sprintf("codegen: use of undefined value v%d", id))
	}
	return v
}

func (g *Generator) define(id ir.ValueID, v value.Value) {
	if id != ir.NoValue {
		g.values[id] = v
	}
}

func wordConst(v *uint256.Int) constant.Constant {
	c, err := constant.NewIntFromString(Word, v.Dec())
	if err != nil {
		panic(fmt.Sprintf("codegen: bad word constant %s: %v", v.Hex(), err))
	}
	return c
}
