package codegen

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
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

var allOnes = new(uint256.Int).Not(uint256.NewInt(0))

// emitBlock walks the ops of one block. System query expansion splits
// the target block, so the current emission point threads through every
// op.
func (g *Generator) emitBlock(f *ir.Function, b *ir.Block) bool {
	blk := g.blocks[b.Index]
	for i, op := range b.Ops {
		if g.opElided(b.Index, i, op) {
			continue
		}
		next, ok := g.emitOp(blk, b, i, op)
		if !ok {
			return false
		}
		blk = next
	}
	g.finals[b.Index] = blk
	return g.emitTerminator(blk, b)
}

// opElided reports whether a copy op was folded into the following call
// as a region forward.
func (g *Generator) opElided(block, index int, op ir.Op) bool {
	if op.Kind != ir.CallDataCopy && op.Kind != ir.ReturnDataCopy {
		return false
	}
	kinds, ok := g.elided[block]
	if !ok {
		return false
	}
	_, skip := kinds[index]
	return skip
}

func (g *Generator) forwardKind(block, index int) (regions.ForwardKind, bool) {
	kinds, ok := g.elided[block]
	if !ok {
		return regions.ForwardNone, false
	}
	k, ok := kinds[index]
	return k, ok
}

func (g *Generator) emitOp(blk *lir.Block, b *ir.Block, index int, op ir.Op) (*lir.Block, bool) {
	zero := constant.NewInt(Word, 0)
	arg := func(i int) value.Value { return g.value(op.Args[i]) }

	switch op.Kind {
	case ir.Const:
		// Constants are materialized inline at their uses.
		g.define(op.Result, wordConst(op.Const))

	case ir.Add:
		g.define(op.Result, blk.NewAdd(arg(0), arg(1)))
	case ir.Sub:
		g.define(op.Result, blk.NewSub(arg(0), arg(1)))
	case ir.Mul:
		g.define(op.Result, blk.NewMul(arg(0), arg(1)))

	case ir.Div:
		g.define(op.Result, g.emitDivMod(blk, arg(0), arg(1), false, false))
	case ir.Mod:
		g.define(op.Result, g.emitDivMod(blk, arg(0), arg(1), false, true))
	case ir.SDiv:
		g.define(op.Result, g.emitDivMod(blk, arg(0), arg(1), true, false))
	case ir.SMod:
		g.define(op.Result, g.emitDivMod(blk, arg(0), arg(1), true, true))

	case ir.AddMod:
		g.define(op.Result, blk.NewCall(g.rt.addmod, arg(0), arg(1), arg(2)))
	case ir.MulMod:
		g.define(op.Result, blk.NewCall(g.rt.mulmod, arg(0), arg(1), arg(2)))
	case ir.Exp:
		g.define(op.Result, blk.NewCall(g.rt.exp, arg(0), arg(1)))
	case ir.SignExtend:
		g.define(op.Result, blk.NewCall(g.rt.signextend, arg(0), arg(1)))

	case ir.Lt:
		g.define(op.Result, g.emitCmp(blk, enum.IPredULT, arg(0), arg(1)))
	case ir.Gt:
		g.define(op.Result, g.emitCmp(blk, enum.IPredUGT, arg(0), arg(1)))
	case ir.SLt:
		g.define(op.Result, g.emitCmp(blk, enum.IPredSLT, arg(0), arg(1)))
	case ir.SGt:
		g.define(op.Result, g.emitCmp(blk, enum.IPredSGT, arg(0), arg(1)))
	case ir.Eq:
		g.define(op.Result, g.emitCmp(blk, enum.IPredEQ, arg(0), arg(1)))
	case ir.IsZero:
		g.define(op.Result, g.emitCmp(blk, enum.IPredEQ, arg(0), zero))

	case ir.And:
		g.define(op.Result, blk.NewAnd(arg(0), arg(1)))
	case ir.Or:
		g.define(op.Result, blk.NewOr(arg(0), arg(1)))
	case ir.Xor:
		g.define(op.Result, blk.NewXor(arg(0), arg(1)))
	case ir.Not:
		g.define(op.Result, blk.NewXor(arg(0), wordConst(allOnes)))

	case ir.Byte:
		g.define(op.Result, g.emitByte(blk, arg(0), arg(1)))

	// Shift amounts at or beyond the word width must degrade cleanly,
	// not poison the result.
	case ir.Shl:
		g.define(op.Result, g.emitShift(blk, op.Kind, arg(0), arg(1)))
	case ir.Shr:
		g.define(op.Result, g.emitShift(blk, op.Kind, arg(0), arg(1)))
	case ir.Sar:
		g.define(op.Result, g.emitShift(blk, op.Kind, arg(0), arg(1)))

	case ir.Keccak256:
		g.define(op.Result, blk.NewCall(g.rt.keccak256, arg(0), arg(1)))

	case ir.MLoad:
		g.define(op.Result, blk.NewCall(g.rt.mload, arg(0)))
	case ir.MStore:
		blk.NewCall(g.rt.mstore, arg(0), arg(1))
	case ir.MStore8:
		blk.NewCall(g.rt.mstore8, arg(0), arg(1))
	case ir.MSize:
		g.define(op.Result, blk.NewCall(g.rt.msize))
	case ir.MCopy:
		blk.NewCall(g.rt.mcopy, arg(0), arg(1), arg(2))

	case ir.SLoad:
		g.define(op.Result, blk.NewCall(g.rt.sload, arg(0)))
	case ir.SStore:
		blk.NewCall(g.rt.sstore, arg(0), arg(1))
	case ir.TLoad:
		g.define(op.Result, blk.NewCall(g.rt.tload, arg(0)))
	case ir.TStore:
		blk.NewCall(g.rt.tstore, arg(0), arg(1))

	case ir.CallDataLoad:
		g.define(op.Result, blk.NewCall(g.rt.calldataLoad, arg(0)))
	case ir.CallDataSize:
		g.define(op.Result, blk.NewCall(g.rt.calldataSize))
	case ir.CallDataCopy:
		blk.NewCall(g.rt.calldataCopy, arg(0), arg(1), arg(2))
	case ir.ReturnDataSize:
		g.define(op.Result, blk.NewCall(g.rt.returndataSize))
	case ir.ReturnDataCopy:
		blk.NewCall(g.rt.returndataCopy, arg(0), arg(1), arg(2))

	case ir.CodeSize:
		g.define(op.Result, blk.NewCall(g.rt.codesize))
	case ir.CodeCopy:
		if d := g.table.Lookup(vm.CODECOPY, g.ctx); d.Kind == optable.Unsupported {
			g.sink.Errorf(diag.CodeUnsupportedOpcode, op.Location,
				"code copy has no translation in %s code (%s)", g.ctx, d.Reason)
			return blk, false
		}
		blk.NewCall(g.rt.codecopy, arg(0), arg(1), arg(2))
	case ir.DataCopy:
		blk.NewCall(g.rt.datacopy, arg(0), arg(1), arg(2))

	case ir.Address:
		g.define(op.Result, g.ctxGet(blk, CtxAddress))
	case ir.Caller:
		g.define(op.Result, g.ctxGet(blk, CtxCaller))
	case ir.Origin:
		g.define(op.Result, g.ctxGet(blk, CtxOrigin))
	case ir.CallValue:
		g.define(op.Result, g.ctxGet(blk, CtxCallValue))
	case ir.Gas:
		g.define(op.Result, g.ctxGet(blk, CtxGasLeft))
	case ir.GasPrice:
		g.define(op.Result, g.ctxGet(blk, CtxGasPrice))
	case ir.GasLimit:
		g.define(op.Result, g.ctxGet(blk, CtxGasLimit))
	case ir.ChainID:
		g.define(op.Result, g.ctxGet(blk, CtxChainID))
	case ir.Coinbase:
		g.define(op.Result, g.ctxGet(blk, CtxCoinbase))
	case ir.BaseFee:
		g.define(op.Result, g.ctxGet(blk, CtxBaseFee))
	case ir.Difficulty:
		g.define(op.Result, g.ctxGet(blk, CtxDifficulty))
	case ir.Timestamp:
		g.define(op.Result, g.ctxGet(blk, CtxTimestamp))
	case ir.Number:
		g.define(op.Result, g.ctxGet(blk, CtxBlockNumber))

	case ir.Balance:
		return g.emitQuery(blk, op, syscalls.SelectorBalance, arg(0))
	case ir.SelfBalance:
		self := g.ctxGet(blk, CtxAddress)
		return g.emitQuery(blk, op, syscalls.SelectorBalance, self)
	case ir.BlockHash:
		return g.emitQuery(blk, op, syscalls.SelectorBlockHash, arg(0))
	case ir.ExtCodeSize:
		return g.emitQuery(blk, op, syscalls.SelectorExtCodeSize, arg(0))
	case ir.ExtCodeHash:
		return g.emitQuery(blk, op, syscalls.SelectorExtCodeHash, arg(0))

	case ir.Call, ir.StaticCall, ir.DelegateCall:
		g.emitFarCall(blk, b, index, op)
	case ir.Create:
		blk.NewCall(g.rt.returndataReset)
		created := blk.NewCall(g.syscallFunc(syscalls.SelectorCreate),
			arg(0), arg(1), arg(2), callFlags(descriptorOf(syscalls.SelectorCreate)))
		g.define(op.Result, created)
	case ir.Create2:
		blk.NewCall(g.rt.returndataReset)
		created := blk.NewCall(g.syscallFunc(syscalls.SelectorCreate2),
			arg(0), arg(1), arg(2), arg(3), callFlags(descriptorOf(syscalls.SelectorCreate2)))
		g.define(op.Result, created)

	case ir.CallCode:
		// No delegate-to-self equivalent exists on the target; the
		// documented degradation is a constant failure status.
		g.sink.Warnf(diag.CodeDegradedOpcode, op.Location,
			"CALLCODE lowers to a constant failure status")
		g.define(op.Result, zero)

	case ir.Log:
		// Fixed operands, the flags word, then the indexed fields in
		// declaration order.
		args := make([]value.Value, 0, len(op.Args)+1)
		args = append(args, arg(0), arg(1), callFlags(descriptorOf(syscalls.SelectorEvent)))
		for i := 2; i < len(op.Args); i++ {
			args = append(args, arg(i))
		}
		blk.NewCall(g.rt.event, args...)

	case ir.ImmutableLoad:
		idx := g.layout.ImmutableIndex(op.Sym)
		g.define(op.Result, blk.NewCall(g.rt.immutableLoad, constant.NewInt(Word, int64(idx))))
	case ir.ImmutableStore:
		pol := g.layout.PolicyOf(regions.Immutables)
		if !pol.Writable || (pol.WriteOnce && g.ctx != optable.ContextDeploy) {
			g.sink.Errorf(diag.CodeRegionLayoutViolation, op.Location,
				"immutable %q assigned outside deploy code", op.Sym)
			return blk, false
		}
		idx := g.layout.ImmutableIndex(op.Sym)
		g.layout.RecordImmutableWrite(op.Sym)
		blk.NewCall(g.rt.immutableStore, constant.NewInt(Word, int64(idx)), arg(0))

	case ir.DeployAddress:
		g.define(op.Result, g.ctxGet(blk, CtxDeployAddress))
	case ir.CodeSizePlaceholder:
		g.define(op.Result, blk.NewCall(g.rt.codesize))
	case ir.LibraryAddress:
		g.define(op.Result, blk.NewCall(g.rt.linkerSymbol(g.mod, op.Sym)))
	case ir.ContractHash:
		g.recordFactoryDep(op.Sym)
		g.define(op.Result, blk.NewCall(g.rt.linkerSymbol(g.mod, op.Sym)))
	case ir.ContractHashSize:
		g.recordFactoryDep(op.Sym)
		g.define(op.Result, blk.NewCall(g.rt.linkerSymbol(g.mod, op.Sym+".size")))

	default:
		panic(fmt.Sprintf("codegen: unhandled op kind %s", ir.Name(op.Kind)))
	}
	return blk, true
}

func (g *Generator) ctxGet(blk *lir.Block, field ContextField) value.Value {
	return blk.NewCall(g.rt.context, constant.NewInt(Word, int64(field)))
}

func (g *Generator) syscallFunc(sel syscalls.Selector) *lir.Func {
	f, ok := g.rt.syscallFuncs[sel]
	if !ok {
		panic(fmt.Sprintf("codegen: no entry point declared for selector 0x%04x", uint32(sel)))
	}
	return f
}

func (g *Generator) emitCmp(blk *lir.Block, pred enum.IPred, x, y value.Value) value.Value {
	return blk.NewZExt(blk.NewICmp(pred, x, y), Word)
}

// emitDivMod lowers the division family with the source machine's
// zero-divisor rule: anything divided by zero is zero. The signed
// overflow corner (minimum value over minus one) is pinned to the
// minimum value the same way the source machine does it.
func (g *Generator) emitDivMod(blk *lir.Block, num, den value.Value, signed, rem bool) value.Value {
	zero := constant.NewInt(Word, 0)
	one := constant.NewInt(Word, 1)

	denZero := blk.NewICmp(enum.IPredEQ, den, zero)
	safeDen := blk.NewSelect(denZero, one, den)

	var raw value.Value
	if signed {
		minWord := wordConst(new(uint256.Int).Lsh(uint256.NewInt(1), 255))
		negOne := wordConst(allOnes)
		numMin := blk.NewICmp(enum.IPredEQ, num, minWord)
		denNegOne := blk.NewICmp(enum.IPredEQ, den, negOne)
		overflow := blk.NewAnd(numMin, denNegOne)
		// Steer the overflowing pair through a safe divisor as well.
		safeDen = blk.NewSelect(overflow, one, safeDen)
		if rem {
			raw = blk.NewSRem(num, safeDen)
			raw = blk.NewSelect(overflow, zero, raw)
		} else {
			raw = blk.NewSDiv(num, safeDen)
			raw = blk.NewSelect(overflow, minWord, raw)
		}
	} else {
		if rem {
			raw = blk.NewURem(num, safeDen)
		} else {
			raw = blk.NewUDiv(num, safeDen)
		}
	}
	return blk.NewSelect(denZero, zero, raw)
}

func (g *Generator) emitByte(blk *lir.Block, index, x value.Value) value.Value {
	zero := constant.NewInt(Word, 0)
	inRange := blk.NewICmp(enum.IPredULT, index, constant.NewInt(Word, 32))
	offset := blk.NewMul(blk.NewSub(constant.NewInt(Word, 31), index), constant.NewInt(Word, 8))
	safeOffset := blk.NewSelect(inRange, offset, zero)
	shifted := blk.NewLShr(x, safeOffset)
	picked := blk.NewAnd(shifted, constant.NewInt(Word, 0xff))
	return blk.NewSelect(inRange, picked, zero)
}

func (g *Generator) emitShift(blk *lir.Block, kind ir.OpKind, shift, x value.Value) value.Value {
	zero := constant.NewInt(Word, 0)
	inRange := blk.NewICmp(enum.IPredULT, shift, constant.NewInt(Word, 256))

	if kind == ir.Sar {
		// An oversized arithmetic shift saturates to the sign fill.
		safeShift := blk.NewSelect(inRange, shift, constant.NewInt(Word, 255))
		return blk.NewAShr(x, safeShift)
	}

	safeShift := blk.NewSelect(inRange, shift, zero)
	var shifted value.Value
	if kind == ir.Shl {
		shifted = blk.NewShl(x, safeShift)
	} else {
		shifted = blk.NewLShr(x, safeShift)
	}
	return blk.NewSelect(inRange, shifted, zero)
}

// emitQuery expands a system query: call the entry point, split on the
// ok bit, and forward the system contract's revert on failure. The
// continuation block becomes the new emission point.
func (g *Generator) emitQuery(blk *lir.Block, op ir.Op, sel syscalls.Selector, args ...value.Value) (*lir.Block, bool) {
	args = append(args, callFlags(descriptorOf(sel)))
	res := blk.NewCall(g.syscallFunc(sel), args...)
	val := blk.NewExtractValue(res, 0)
	ok := blk.NewExtractValue(res, 1)

	cont := g.fn.NewBlock(fmt.Sprintf("%s.cont%d", blk.LocalIdent.Name(), len(g.fn.Blocks)))
	blk.NewCondBr(ok, cont, g.bubbleBlock())

	g.define(op.Result, val)
	return cont, true
}

// bubbleBlock is the shared failure path of all system queries: the
// child frame's revert data is forwarded unchanged to this frame's
// caller.
func (g *Generator) bubbleBlock() *lir.Block {
	if g.bubble == nil {
		g.bubble = g.fn.NewBlock("bubble")
		g.bubble.NewCall(g.rt.revertForward)
		g.bubble.NewUnreachable()
	}
	return g.bubble
}

// emitFarCall expands the external-call family: reset the returndata
// frame, invoke the entry point (or its forwarding variant when the
// input copy was elided), then spill fresh returndata into the output
// buffer. A zero value and an absent value produce the same sequence.
func (g *Generator) emitFarCall(blk *lir.Block, b *ir.Block, index int, op ir.Op) {
	arg := func(i int) value.Value { return g.value(op.Args[i]) }

	blk.NewCall(g.rt.returndataReset)

	forward, forwarded := g.forwardKind(b.Index, index)
	mode := constant.NewInt(Word, int64(forward))

	var status value.Value
	var outOff, outCap value.Value

	switch op.Kind {
	case ir.Call:
		// Args: gas, address, value, input offset, input size, output
		// offset, output capacity. Gas is managed by the target's call
		// dispatch and is not forwarded.
		flags := callFlags(descriptorOf(syscalls.SelectorFarCall))
		outOff, outCap = arg(5), arg(6)
		if forwarded {
			status = blk.NewCall(g.rt.farcallForward, arg(1), arg(2), mode, flags)
		} else {
			status = blk.NewCall(g.syscallFunc(syscalls.SelectorFarCall), arg(1), arg(2), arg(3), arg(4), flags)
		}
	case ir.StaticCall:
		flags := callFlags(descriptorOf(syscalls.SelectorStaticCall))
		outOff, outCap = arg(4), arg(5)
		if forwarded {
			status = blk.NewCall(g.rt.staticCallForward, arg(1), mode, flags)
		} else {
			status = blk.NewCall(g.syscallFunc(syscalls.SelectorStaticCall), arg(1), arg(2), arg(3), flags)
		}
	case ir.DelegateCall:
		flags := callFlags(descriptorOf(syscalls.SelectorDelegateCall))
		outOff, outCap = arg(4), arg(5)
		if forwarded {
			status = blk.NewCall(g.rt.delegateCallForward, arg(1), mode, flags)
		} else {
			status = blk.NewCall(g.syscallFunc(syscalls.SelectorDelegateCall), arg(1), arg(2), arg(3), flags)
		}
	}

	blk.NewCall(g.rt.returndataSpill, outOff, outCap)
	g.define(op.Result, status)
}

func (g *Generator) recordFactoryDep(sym string) {
	for _, d := range g.factoryDeps {
		if d == sym {
			return
		}
	}
	g.factoryDeps = append(g.factoryDeps, sym)
}

// FactoryDependencies lists the contract identifiers referenced through
// dependency-hash pushes, in first-reference order.
func (g *Generator) FactoryDependencies() []string {
	return g.factoryDeps
}
