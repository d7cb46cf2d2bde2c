package codegen

import (
	"fmt"

	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"

	"github.com/w2k-star-forks/zksync-compiler-solidity/syscalls"
)

// Word is the native register width of the target machine.
var Word = types.NewInt(256)

// ContextField selects one environment register of the executing frame.
// The numbering is part of the versioned output contract.
type ContextField int64

const (
	CtxAddress ContextField = iota
	CtxCaller
	CtxOrigin
	CtxCallValue
	CtxGasLeft
	CtxGasPrice
	CtxGasLimit
	CtxChainID
	CtxCoinbase
	CtxBaseFee
	CtxDifficulty
	CtxTimestamp
	CtxBlockNumber
	CtxDeployAddress
)

// runtime holds the per-module declarations of the target's runtime
// helpers and system call entry points. Everything here is declared, not
// defined, except for the exponentiation routine, which is emitted into
// the module so the square-and-multiply lowering is self-contained.
type runtime struct {
	context *lir.Func

	mload   *lir.Func
	mstore  *lir.Func
	mstore8 *lir.Func
	msize   *lir.Func
	mcopy   *lir.Func

	sload  *lir.Func
	sstore *lir.Func
	tload  *lir.Func
	tstore *lir.Func

	calldataLoad   *lir.Func
	calldataSize   *lir.Func
	calldataCopy   *lir.Func
	returndataSize *lir.Func
	returndataCopy *lir.Func
	// returndataReset clears the active returndata frame; it runs before
	// every far call so stale data can never leak across call sites.
	returndataReset *lir.Func
	// returndataSpill copies the child frame's returndata into the
	// caller-provided output buffer, clamped to the buffer capacity.
	returndataSpill *lir.Func

	codesize *lir.Func
	codecopy *lir.Func
	datacopy *lir.Func

	keccak256  *lir.Func
	signextend *lir.Func
	addmod     *lir.Func
	mulmod     *lir.Func
	exp        *lir.Func

	immutableLoad  *lir.Func
	immutableStore *lir.Func

	ret           *lir.Func
	revert        *lir.Func
	revertForward *lir.Func

	// syscallFuncs maps descriptor selectors to their declared entry
	// points.
	syscallFuncs map[syscalls.Selector]*lir.Func
	// forward variants of the far-call family, used when the input
	// buffer is elided in favor of direct region forwarding.
	farcallForward      *lir.Func
	staticCallForward   *lir.Func
	delegateCallForward *lir.Func

	event *lir.Func

	// linkerSymbols caches per-identifier declarations for library
	// addresses and factory dependency hashes.
	linkerSymbols map[string]*lir.Func
}

// queryResult is the {value, ok} pair returned by system query calls;
// a cleared ok bit means the system contract itself reverted and the
// failure must be forwarded to the caller.
var queryResult = types.NewStruct(Word, types.I1)

func declareRuntime(m *lir.Module) *runtime {
	word := func(name string) *lir.Param { return lir.NewParam(name, Word) }
	declare := func(name string, ret types.Type, params ...*lir.Param) *lir.Func {
		return m.NewFunc(name, ret, params...)
	}

	rt := &runtime{
		syscallFuncs:  make(map[syscalls.Selector]*lir.Func),
		linkerSymbols: make(map[string]*lir.Func),
	}

	rt.context = declare("__context", Word, word("field"))

	rt.mload = declare("__mload", Word, word("offset"))
	rt.mstore = declare("__mstore", types.Void, word("offset"), word("value"))
	rt.mstore8 = declare("__mstore8", types.Void, word("offset"), word("value"))
	rt.msize = declare("__msize", Word)
	rt.mcopy = declare("__mcopy", types.Void, word("dest"), word("src"), word("size"))

	rt.sload = declare("__sload", Word, word("key"))
	rt.sstore = declare("__sstore", types.Void, word("key"), word("value"))
	rt.tload = declare("__tload", Word, word("key"))
	rt.tstore = declare("__tstore", types.Void, word("key"), word("value"))

	rt.calldataLoad = declare("__calldata_load", Word, word("offset"))
	rt.calldataSize = declare("__calldata_size", Word)
	rt.calldataCopy = declare("__calldata_copy", types.Void, word("dest"), word("src"), word("size"))
	rt.returndataSize = declare("__returndata_size", Word)
	rt.returndataCopy = declare("__returndata_copy", types.Void, word("dest"), word("src"), word("size"))
	rt.returndataReset = declare("__returndata_reset", types.Void)
	rt.returndataSpill = declare("__returndata_spill", types.Void, word("dest"), word("cap"))

	rt.codesize = declare("__codesize", Word)
	rt.codecopy = declare("__codecopy", types.Void, word("dest"), word("src"), word("size"))
	rt.datacopy = declare("__datacopy", types.Void, word("dest"), word("src"), word("size"))

	rt.keccak256 = declare("__keccak256", Word, word("offset"), word("size"))
	rt.signextend = declare("__signextend", Word, word("byte"), word("value"))
	rt.addmod = declare("__addmod", Word, word("a"), word("b"), word("n"))
	rt.mulmod = declare("__mulmod", Word, word("a"), word("b"), word("n"))

	rt.immutableLoad = declare("__immutable_load", Word, word("index"))
	rt.immutableStore = declare("__immutable_store", types.Void, word("index"), word("value"))

	rt.ret = declare("__return", types.Void, word("offset"), word("size"))
	rt.revert = declare("__revert", types.Void, word("offset"), word("size"))
	rt.revertForward = declare("__revert_forward", types.Void)
	for _, f := range []*lir.Func{rt.ret, rt.revert, rt.revertForward} {
		f.FuncAttrs = append(f.FuncAttrs, enum.FuncAttrNoReturn)
	}

	rt.declareSyscalls(m)
	rt.exp = defineExp(m)
	return rt
}

// declareSyscalls declares one entry point per descriptor. The far-call
// family returns the source-visible status word; the query family
// returns {value, ok} so a failing system contract bubbles its revert.
// Every entry point takes a trailing flags word encoding the
// descriptor's dispatch bits.
func (rt *runtime) declareSyscalls(m *lir.Module) {
	word := func(name string) *lir.Param { return lir.NewParam(name, Word) }

	for _, sel := range []syscalls.Selector{
		syscalls.SelectorFarCall,
		syscalls.SelectorStaticCall,
		syscalls.SelectorDelegateCall,
		syscalls.SelectorCreate,
		syscalls.SelectorCreate2,
		syscalls.SelectorExtCodeSize,
		syscalls.SelectorExtCodeHash,
		syscalls.SelectorBalance,
		syscalls.SelectorBlockHash,
	} {
		d := descriptorOf(sel)
		params := make([]*lir.Param, 0, len(d.Args)+1)
		for i := range d.Args {
			params = append(params, word(fmt.Sprintf("a%d", i)))
		}
		params = append(params, word("flags"))
		var ret types.Type = Word
		if !callFamily(sel) {
			ret = queryResult
		}
		rt.syscallFuncs[sel] = m.NewFunc(d.Name, ret, params...)
	}

	rt.farcallForward = m.NewFunc("__farcall_forward", Word,
		word("address"), word("value"), word("mode"), word("flags"))
	rt.staticCallForward = m.NewFunc("__static_call_forward", Word,
		word("address"), word("mode"), word("flags"))
	rt.delegateCallForward = m.NewFunc("__delegate_call_forward", Word,
		word("address"), word("mode"), word("flags"))

	// Topics ride as trailing variadic words, in declaration order.
	event := descriptorOf(syscalls.SelectorEvent)
	rt.event = m.NewFunc(event.Name, types.Void, word("offset"), word("size"), word("flags"))
	rt.event.Sig.Variadic = true
}

func descriptorOf(sel syscalls.Selector) syscalls.Descriptor {
	d, err := syscalls.Lookup(sel)
	if err != nil {
		panic(err)
	}
	return d
}

// callFlags encodes a descriptor's dispatch bits: bit 0 is the
// privileged system-call flag, bit 1 marks a value-bearing invocation.
// A zero call value and an absent one emit the same flags word.
func callFlags(d syscalls.Descriptor) *constant.Int {
	var bits int64
	if d.SystemFlag {
		bits |= 1
	}
	if d.HasValue {
		bits |= 2
	}
	return constant.NewInt(Word, bits)
}

func callFamily(sel syscalls.Selector) bool {
	switch sel {
	case syscalls.SelectorFarCall, syscalls.SelectorStaticCall,
		syscalls.SelectorDelegateCall, syscalls.SelectorCreate,
		syscalls.SelectorCreate2:
		return true
	default:
		return false
	}
}

// linkerSymbol declares (once) a resolution function for a link-time
// identifier: a library address or a factory dependency hash. The linker
// substitutes the body after all units are translated.
func (rt *runtime) linkerSymbol(m *lir.Module, name string) *lir.Func {
	if f, ok := rt.linkerSymbols[name]; ok {
		return f
	}
	f := m.NewFunc("__linker_symbol_"+name, Word)
	rt.linkerSymbols[name] = f
	return f
}

// defineExp emits the square-and-multiply exponentiation routine. A loop
// over the exponent bits keeps the cost logarithmic; the naive repeated
// multiply is quadratic in the exponent width and was rejected for that
// reason.
func defineExp(m *lir.Module) *lir.Func {
	base := lir.NewParam("base", Word)
	exponent := lir.NewParam("exponent", Word)
	f := m.NewFunc("__exp", Word, base, exponent)

	zero := constant.NewInt(Word, 0)
	one := constant.NewInt(Word, 1)

	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	odd := f.NewBlock("odd")
	next := f.NewBlock("next")
	done := f.NewBlock("done")

	entry.NewBr(loop)

	accPhi := loop.NewPhi(lir.NewIncoming(one, entry))
	basePhi := loop.NewPhi(lir.NewIncoming(base, entry))
	expPhi := loop.NewPhi(lir.NewIncoming(exponent, entry))
	expZero := loop.NewICmp(enum.IPredEQ, expPhi, zero)
	loop.NewCondBr(expZero, done, odd)

	bit := odd.NewAnd(expPhi, one)
	bitSet := odd.NewICmp(enum.IPredNE, bit, zero)
	mul := odd.NewMul(accPhi, basePhi)
	accNext := odd.NewSelect(bitSet, mul, accPhi)
	odd.NewBr(next)

	baseNext := next.NewMul(basePhi, basePhi)
	expNext := next.NewLShr(expPhi, one)
	next.NewBr(loop)

	accPhi.Incs = append(accPhi.Incs, lir.NewIncoming(accNext, next))
	basePhi.Incs = append(basePhi.Incs, lir.NewIncoming(baseNext, next))
	expPhi.Incs = append(expPhi.Incs, lir.NewIncoming(expNext, next))

	done.NewRet(accPhi)
	return f
}
