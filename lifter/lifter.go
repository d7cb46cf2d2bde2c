// Package lifter turns the legacy-assembly basic-block graph into the
// structured intermediate form. It simulates the operand stack
// symbolically, assigns every produced slot a fresh value id, and
// reconciles stack states at control-flow joins; no raw stack position
// survives past this stage.
package lifter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/evmla"
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
	"github.com/w2k-star-forks/zksync-compiler-solidity/optable"
)

// valueOrigin classifies values produced by the assembler's special
// push forms. CODECOPY in deploy code dispatches on the origin of its
// source operand.
type valueOrigin int

const (
	originPlain valueOrigin = iota
	originData
	originContractHash
	originLibrary
)

// Lifter lifts one code section. It owns all the frames it creates.
type Lifter struct {
	table *optable.Table
	ctx   optable.CodeContext
	sink  *diag.Sink

	origins map[ir.ValueID]valueOrigin
}

func New(table *optable.Table, ctx optable.CodeContext, sink *diag.Sink) *Lifter {
	return &Lifter{table: table, ctx: ctx, sink: sink}
}

// Lift produces the structured function for the graph, or false when a
// fatal diagnostic was recorded. The result never contains stack slots:
// every join-point slot is a phi over the predecessors' exit frames,
// unified by position rather than by origin instruction.
func (l *Lifter) Lift(name string, g *evmla.Graph) (*ir.Function, bool) {
	depths, ok := l.computeDepths(g)
	if !ok {
		return nil, false
	}
	l.origins = make(map[ir.ValueID]valueOrigin)

	f := &ir.Function{Name: name}
	for range g.Blocks {
		f.AddBlock()
	}

	// Entry frames: the entry block starts empty; every other block gets
	// one phi per inherited slot, edges filled in once all predecessors
	// have been simulated.
	entry := make([][]ir.ValueID, len(g.Blocks))
	for _, b := range g.Blocks {
		if b.Index == g.Entry {
			continue
		}
		depth := depths[b.Index]
		if depth < 0 {
			continue // unreachable
		}
		frame := make([]ir.ValueID, depth)
		for slot := range frame {
			v := f.NewValue()
			frame[slot] = v
			f.Blocks[b.Index].Phis = append(f.Blocks[b.Index].Phis, ir.Phi{Result: v})
		}
		entry[b.Index] = frame
	}

	exit := make([][]ir.ValueID, len(g.Blocks))
	for _, b := range g.Blocks {
		if b.Index != g.Entry && depths[b.Index] < 0 {
			continue
		}
		frame, ok := l.simulate(f, g, b, entry[b.Index])
		if !ok {
			return nil, false
		}
		exit[b.Index] = frame
	}

	// Fill phi edges positionally from each predecessor's exit frame.
	for _, b := range g.Blocks {
		block := f.Blocks[b.Index]
		if len(block.Phis) == 0 {
			continue
		}
		preds := append([]int(nil), b.Predecessors...)
		sort.Ints(preds)
		for slot := range block.Phis {
			for _, p := range preds {
				pf := exit[p]
				if slot >= len(pf) {
					continue
				}
				block.Phis[slot].Edges = append(block.Phis[slot].Edges, ir.PhiEdge{
					Pred:  p,
					Value: pf[slot],
				})
			}
		}
	}

	if l.sink.HasErrors() {
		return nil, false
	}
	return f, true
}

// computeDepths propagates symbolic stack depth over the graph and
// enforces the join invariant: every predecessor of a block must deliver
// the same depth. On a mismatch the diagnostic names all conflicting
// edges.
func (l *Lifter) computeDepths(g *evmla.Graph) ([]int, bool) {
	depths := make([]int, len(g.Blocks))
	for i := range depths {
		depths[i] = -1
	}
	// arrivals[block] = per-predecessor delivered depth, for reporting.
	arrivals := make([]map[int]int, len(g.Blocks))
	for i := range arrivals {
		arrivals[i] = make(map[int]int)
	}

	depths[g.Entry] = 0
	// The function entry is itself an edge delivering depth 0; a back
	// edge into the entry block must agree with it.
	arrivals[g.Entry][entryEdge] = 0
	work := []int{g.Entry}
	for len(work) > 0 {
		idx := work[0]
		work = work[1:]
		b := g.Blocks[idx]

		out, ok := l.blockDepth(b, depths[idx])
		if !ok {
			return nil, false
		}
		for _, s := range b.Successors {
			arrivals[s][idx] = out
			if depths[s] < 0 {
				depths[s] = out
				work = append(work, s)
			}
		}
	}

	consistent := true
	for _, b := range g.Blocks {
		seen := arrivals[b.Index]
		if len(seen) < 2 {
			continue
		}
		first := -1
		mismatch := false
		for _, d := range seen {
			if first < 0 {
				first = d
			} else if d != first {
				mismatch = true
			}
		}
		if !mismatch {
			continue
		}
		consistent = false
		loc := diag.SourceLocation{}
		if len(b.Instrs) > 0 {
			loc = b.Instrs[0].Location
		}
		l.sink.Errorf(diag.CodeStackInconsistency, loc,
			"stack depth mismatch at join %s: %s",
			blockName(b), formatArrivals(g, seen))
	}
	return depths, consistent
}

// blockDepth applies the stack arity of every instruction in b to the
// incoming depth, diagnosing underflow.
func (l *Lifter) blockDepth(b *evmla.BasicBlock, in int) (int, bool) {
	depth := in
	for _, instr := range b.Instrs {
		pops, pushes, ok := l.arity(instr)
		if !ok {
			l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
				"no stack arity for %s", instr)
			return 0, false
		}
		if depth < pops {
			l.sink.Errorf(diag.CodeStackInconsistency, instr.Location,
				"stack underflow at %s in %s: need %d, have %d",
				instr, blockName(b), pops, depth)
			return 0, false
		}
		depth = depth - pops + pushes
	}
	return depth, true
}

func (l *Lifter) arity(instr evmla.Instruction) (pops, pushes int, ok bool) {
	switch instr.Kind {
	case evmla.KindOpcode:
		a, defined := l.table.ArityOf(instr.Op)
		return a.Pops, a.Pushes, defined
	case evmla.KindAssignImmutable:
		return 1, 0, true
	default:
		// All remaining pseudo-ops push one value.
		return 0, 1, true
	}
}

// simulate runs the symbolic stack over one block, emitting structured
// ops into f. Returns the exit frame after the terminator's pops.
func (l *Lifter) simulate(f *ir.Function, g *evmla.Graph, b *evmla.BasicBlock, in []ir.ValueID) ([]ir.ValueID, bool) {
	block := f.Blocks[b.Index]
	stack := append([]ir.ValueID(nil), in...)

	pop := func() ir.ValueID {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	popN := func(n int) []ir.ValueID {
		args := make([]ir.ValueID, n)
		for i := 0; i < n; i++ {
			args[i] = pop()
		}
		return args
	}

	block.Term = ir.Terminator{Kind: ir.TermNone, Cond: ir.NoValue}

	for _, instr := range b.Instrs {
		pops, _, _ := l.arity(instr)
		if len(stack) < pops {
			l.sink.Errorf(diag.CodeStackInconsistency, instr.Location,
				"stack underflow at %s in %s", instr, blockName(b))
			return nil, false
		}

		switch instr.Kind {
		case evmla.KindOpcode:
			if !l.simulateOpcode(f, g, b, block, instr, &stack, pop, popN) {
				return nil, false
			}

		case evmla.KindPushTag:
			// The destination is materialized as a constant so a dynamic
			// dispatch over it stays expressible; static jumps never read it.
			target := g.BlockByTag(instr.Value)
			if target < 0 {
				l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
					"push of undefined tag %q", instr.Value)
				return nil, false
			}
			stack = append(stack, block.AppendConst(f, uint256.NewInt(uint64(target))))

		case evmla.KindPushData:
			// Oversized data-section references degrade to zero, the
			// documented legacy behavior.
			value := new(uint256.Int)
			if len(strings.TrimPrefix(instr.Value, "0x")) <= 64 {
				if err := value.SetFromHex(normalizeHex(instr.Value)); err != nil {
					l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
						"malformed data constant %q", instr.Value)
					return nil, false
				}
			}
			v := block.AppendConst(f, value)
			l.origins[v] = originData
			stack = append(stack, v)

		case evmla.KindPushSize:
			stack = append(stack, block.Append(f, ir.Op{Kind: ir.CodeSizePlaceholder, Location: instr.Location}))

		case evmla.KindPushLib:
			v := block.Append(f, ir.Op{Kind: ir.LibraryAddress, Sym: instr.Value, Location: instr.Location})
			l.origins[v] = originLibrary
			stack = append(stack, v)

		case evmla.KindPushDeployAddress:
			stack = append(stack, block.Append(f, ir.Op{Kind: ir.DeployAddress, Location: instr.Location}))

		case evmla.KindPushImmutable:
			stack = append(stack, block.Append(f, ir.Op{Kind: ir.ImmutableLoad, Sym: instr.Value, Location: instr.Location}))

		case evmla.KindAssignImmutable:
			value := pop()
			block.Append(f, ir.Op{Kind: ir.ImmutableStore, Sym: instr.Value, Args: []ir.ValueID{value}, Location: instr.Location})

		case evmla.KindPushContractHash:
			v := block.Append(f, ir.Op{Kind: ir.ContractHash, Sym: instr.Value, Location: instr.Location})
			l.origins[v] = originContractHash
			stack = append(stack, v)

		case evmla.KindPushContractHashSize:
			stack = append(stack, block.Append(f, ir.Op{Kind: ir.ContractHashSize, Sym: instr.Value, Location: instr.Location}))
		}
	}

	// A block without a terminator falls through.
	if block.Term.Kind == ir.TermNone && len(b.Successors) > 0 {
		block.Term.Targets = []int{b.Successors[0]}
	}
	return stack, true
}

func (l *Lifter) simulateOpcode(
	f *ir.Function,
	g *evmla.Graph,
	b *evmla.BasicBlock,
	block *ir.Block,
	instr evmla.Instruction,
	stack *[]ir.ValueID,
	pop func() ir.ValueID,
	popN func(int) []ir.ValueID,
) bool {
	op := instr.Op

	// Unsupported opcodes fail here, before any target-facing code
	// exists for them.
	if d := l.table.Lookup(op, l.ctx); d.Kind == optable.Unsupported {
		l.sink.Errorf(diag.CodeUnsupportedOpcode, instr.Location,
			"opcode %s has no translation in %s code (%s)", op, l.ctx, d.Reason)
		return false
	}

	switch {
	case op == vm.PUSH0:
		*stack = append(*stack, block.AppendConst(f, uint256.NewInt(0)))
		return true
	case op >= vm.PUSH1 && op <= vm.PUSH32:
		value := new(uint256.Int)
		if err := value.SetFromHex(normalizeHex(instr.Value)); err != nil {
			l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
				"malformed push constant %q", instr.Value)
			return false
		}
		*stack = append(*stack, block.AppendConst(f, value))
		return true
	case op >= vm.DUP1 && op <= vm.DUP16:
		n := int(op-vm.DUP1) + 1
		*stack = append(*stack, (*stack)[len(*stack)-n])
		return true
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		n := int(op-vm.SWAP1) + 1
		top := len(*stack) - 1
		(*stack)[top], (*stack)[top-n] = (*stack)[top-n], (*stack)[top]
		return true
	case op >= vm.LOG0 && op <= vm.LOG4:
		topics := int(op - vm.LOG0)
		args := popN(2 + topics)
		block.Append(f, ir.Op{Kind: ir.Log, Args: args, Topics: topics, Location: instr.Location})
		return true
	}

	switch op {
	case vm.POP:
		pop()
	case vm.JUMPDEST:
		// Label already consumed by the block split.
	case vm.CODECOPY:
		// In deploy code the copy dispatches on where the source operand
		// came from: a dependency-hash or library push plants the value
		// itself at the destination, a data-section push copies static
		// data, and everything else reads the deploy input buffer. The
		// runtime-code case was already rejected as unsupported above.
		args := popN(3)
		switch l.origins[args[1]] {
		case originContractHash, originLibrary:
			block.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{args[0], args[1]}, Location: instr.Location})
		case originData:
			block.Append(f, ir.Op{Kind: ir.DataCopy, Args: args, Location: instr.Location})
		default:
			block.Append(f, ir.Op{Kind: ir.CodeCopy, Args: args, Location: instr.Location})
		}
	case vm.CALLCODE:
		l.sink.Warnf(diag.CodeDeprecatedOpcode, instr.Location,
			"CALLCODE is deprecated and degrades during translation")
		a, _ := l.table.ArityOf(op)
		result := block.Append(f, ir.Op{Kind: ir.CallCode, Args: popN(a.Pops), Location: instr.Location})
		*stack = append(*stack, result)
	case vm.JUMP:
		dest := pop()
		block.Term = ir.Terminator{Kind: ir.TermJump, Cond: ir.NoValue, Targets: b.Successors}
		if len(b.Successors) != 1 {
			// Dynamic dispatch: the serializer switches on the
			// destination value.
			block.Term.Cond = dest
		}
	case vm.JUMPI:
		pop() // destination, statically resolved into the edge
		cond := pop()
		target, fallthru, ok := branchTargets(b)
		if !ok {
			l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
				"conditional jump in %s has no statically resolvable target", blockName(b))
			return false
		}
		block.Term = ir.Terminator{Kind: ir.TermBranch, Cond: cond, Targets: []int{target, fallthru}}
	case vm.STOP:
		block.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
	case vm.RETURN:
		args := popN(2)
		block.Term = ir.Terminator{Kind: ir.TermReturn, Cond: ir.NoValue, Args: args}
	case vm.REVERT:
		args := popN(2)
		block.Term = ir.Terminator{Kind: ir.TermRevert, Cond: ir.NoValue, Args: args}
	case vm.INVALID:
		block.Term = ir.Terminator{Kind: ir.TermInvalid, Cond: ir.NoValue}

	default:
		kind, ok := opKind(op)
		if !ok {
			l.sink.Errorf(diag.CodeMalformedInput, instr.Location,
				"opcode %s not representable in the structured form", op)
			return false
		}
		a, _ := l.table.ArityOf(op)
		result := block.Append(f, ir.Op{Kind: kind, Args: popN(a.Pops), Location: instr.Location})
		if a.Pushes > 0 {
			*stack = append(*stack, result)
		}
	}
	return true
}

// branchTargets picks apart a JUMPI block's successors: the jump target
// and the fall-through block (always the lexically next one).
func branchTargets(b *evmla.BasicBlock) (target, fallthru int, ok bool) {
	if len(b.Successors) == 1 && b.Successors[0] == b.Index+1 {
		// Branch to the lexically next block: both edges coincide.
		return b.Successors[0], b.Successors[0], true
	}
	if len(b.Successors) != 2 {
		return 0, 0, false
	}
	if b.Successors[1] == b.Index+1 {
		return b.Successors[0], b.Successors[1], true
	}
	if b.Successors[0] == b.Index+1 {
		return b.Successors[1], b.Successors[0], true
	}
	return 0, 0, false
}

func blockName(b *evmla.BasicBlock) string {
	if b.Tag != "" {
		return fmt.Sprintf("block %d (tag %s)", b.Index, b.Tag)
	}
	return fmt.Sprintf("block %d", b.Index)
}

// entryEdge marks the implicit predecessor of the function entry block.
const entryEdge = -1

func formatArrivals(g *evmla.Graph, seen map[int]int) string {
	preds := make([]int, 0, len(seen))
	for p := range seen {
		preds = append(preds, p)
	}
	sort.Ints(preds)
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		if p == entryEdge {
			parts = append(parts, fmt.Sprintf("function entry delivers depth %d", seen[p]))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s delivers depth %d", blockName(g.Blocks[p]), seen[p]))
	}
	return strings.Join(parts, ", ")
}

// normalizeHex canonicalizes an assembler immediate. The assembler
// zero-pads to the push width; the canonical parser rejects leading
// zero digits.
func normalizeHex(s string) string {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}
