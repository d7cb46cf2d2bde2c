package codegen

import (
	"github.com/holiman/uint256"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
	"github.com/w2k-star-forks/zksync-compiler-solidity/regions"
)

// Fold rewrites pure operations over constant operands into constants.
// Non-phi operands are always block-local, so a single forward pass per
// block reaches the fixpoint; folding is semantic, never reordering, so
// output stays deterministic.
func Fold(f *ir.Function) {
	for _, b := range f.Blocks {
		consts := make(map[ir.ValueID]*uint256.Int)
		for i, op := range b.Ops {
			if op.Kind == ir.Const {
				consts[op.Result] = op.Const
				continue
			}
			folded, ok := foldOp(op, consts)
			if !ok {
				continue
			}
			b.Ops[i] = ir.Op{Kind: ir.Const, Const: folded, Result: op.Result, Location: op.Location}
			consts[op.Result] = folded
		}
	}
}

func foldOp(op ir.Op, consts map[ir.ValueID]*uint256.Int) (*uint256.Int, bool) {
	args := make([]*uint256.Int, len(op.Args))
	for i, a := range op.Args {
		c, ok := consts[a]
		if !ok {
			return nil, false
		}
		args[i] = c
	}

	z := new(uint256.Int)
	bit := func(cond bool) *uint256.Int {
		if cond {
			return z.SetOne()
		}
		return z.Clear()
	}

	switch op.Kind {
	case ir.Add:
		return z.Add(args[0], args[1]), true
	case ir.Sub:
		return z.Sub(args[0], args[1]), true
	case ir.Mul:
		return z.Mul(args[0], args[1]), true
	case ir.Div:
		return z.Div(args[0], args[1]), true
	case ir.SDiv:
		return z.SDiv(args[0], args[1]), true
	case ir.Mod:
		return z.Mod(args[0], args[1]), true
	case ir.SMod:
		return z.SMod(args[0], args[1]), true
	case ir.AddMod:
		return z.AddMod(args[0], args[1], args[2]), true
	case ir.MulMod:
		return z.MulMod(args[0], args[1], args[2]), true
	case ir.Exp:
		return z.Exp(args[0], args[1]), true
	case ir.SignExtend:
		return z.ExtendSign(args[1], args[0]), true
	case ir.Lt:
		return bit(args[0].Lt(args[1])), true
	case ir.Gt:
		return bit(args[0].Gt(args[1])), true
	case ir.SLt:
		return bit(args[0].Slt(args[1])), true
	case ir.SGt:
		return bit(args[0].Sgt(args[1])), true
	case ir.Eq:
		return bit(args[0].Eq(args[1])), true
	case ir.IsZero:
		return bit(args[0].IsZero()), true
	case ir.And:
		return z.And(args[0], args[1]), true
	case ir.Or:
		return z.Or(args[0], args[1]), true
	case ir.Xor:
		return z.Xor(args[0], args[1]), true
	case ir.Not:
		return z.Not(args[0]), true
	case ir.Byte:
		return z.Set(args[1]).Byte(args[0]), true
	case ir.Shl:
		return z.Lsh(args[1], shiftAmount(args[0])), true
	case ir.Shr:
		return z.Rsh(args[1], shiftAmount(args[0])), true
	case ir.Sar:
		return z.SRsh(args[1], shiftAmount(args[0])), true
	default:
		return nil, false
	}
}

func shiftAmount(v *uint256.Int) uint {
	if !v.LtUint64(256) {
		return 256
	}
	return uint(v.Uint64())
}

// markForwarding runs the region-forwarding analysis and marks both
// halves of every eligible pair: the copy (skipped at emission) and the
// call (emitted through its forwarding variant). A copy that sits
// directly against a call but failed eligibility gets a note; the
// conservative answer costs one heap round trip, never correctness.
func markForwarding(f *ir.Function, sink *diag.Sink) map[int]map[int]regions.ForwardKind {
	marks := make(map[int]map[int]regions.ForwardKind)
	for _, b := range f.Blocks {
		pairs := regions.AnalyzeForwarding(b)
		if len(pairs) > 0 {
			m := make(map[int]regions.ForwardKind, 2*len(pairs))
			for _, p := range pairs {
				m[p.CopyIndex] = p.Kind
				m[p.CallIndex] = p.Kind
			}
			marks[b.Index] = m
		}

		eligible := make(map[int]bool, len(pairs))
		for _, p := range pairs {
			eligible[p.CopyIndex] = true
		}
		for i, op := range b.Ops {
			if op.Kind != ir.CallDataCopy && op.Kind != ir.ReturnDataCopy {
				continue
			}
			if eligible[i] || i+1 >= len(b.Ops) {
				continue
			}
			switch b.Ops[i+1].Kind {
			case ir.Call, ir.StaticCall, ir.DelegateCall:
				sink.Warnf(diag.CodeElisionIneligible, op.Location,
					"input copy before external call is not forwardable; copying through the heap")
			}
		}
	}
	return marks
}
