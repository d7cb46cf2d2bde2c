package codegen

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
	"github.com/w2k-star-forks/zksync-compiler-solidity/optable"
	"github.com/w2k-star-forks/zksync-compiler-solidity/regions"
)

func generate(t *testing.T, ctx optable.CodeContext, f *ir.Function) (string, *diag.Sink, bool) {
	t.Helper()
	sink := diag.NewSink()
	g := New(optable.New(""), ctx, regions.NewLayout(), sink)
	mod, ok := g.Generate(f)
	if !ok {
		return "", sink, false
	}
	return mod.String(), sink, true
}

func constOp(f *ir.Function, b *ir.Block, v uint64) ir.ValueID {
	return b.AppendConst(f, uint256.NewInt(v))
}

// functionBody slices the module text down to the named definition so
// assertions never match the declaration header.
func functionBody(t *testing.T, text, name string) string {
	t.Helper()
	i := strings.Index(text, "define i256 @"+name)
	require.GreaterOrEqual(t, i, 0, "no definition of %s in:\n%s", name, text)
	return text[i:]
}

func TestGenerateFoldsConstants(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	sum := b.Append(f, ir.Op{Kind: ir.Add, Args: []ir.ValueID{constOp(f, b, 2), constOp(f, b, 3)}})
	b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 0), sum}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	// The add folds away entirely; the store takes the literal.
	assert.Contains(t, text, "@__mstore(i256 0, i256 5)")
	assert.NotContains(t, text, "add i256")
}

func TestGenerateReturndataReset(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	args := make([]ir.ValueID, 7)
	for i := range args {
		args[i] = constOp(f, b, uint64(i+1))
	}
	b.Append(f, ir.Op{Kind: ir.Call, Args: args})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	body := functionBody(t, text, "runtime_code")
	reset := strings.Index(body, "call void @__returndata_reset()")
	farcall := strings.Index(body, "@__farcall(")
	spill := strings.Index(body, "@__returndata_spill(")
	require.GreaterOrEqual(t, reset, 0)
	require.Greater(t, farcall, 0)
	require.Greater(t, spill, 0)
	// Stale returndata is cleared before the call; the fresh frame is
	// spilled into the output buffer after it.
	assert.Less(t, reset, farcall)
	assert.Less(t, farcall, spill)
}

func TestGenerateQueryBubblesRevert(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	bal := b.Append(f, ir.Op{Kind: ir.Balance, Args: []ir.ValueID{constOp(f, b, 0x1234)}})
	b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 0), bal}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	assert.Contains(t, text, "@__balance(i256 4660, i256 0)")
	assert.Contains(t, text, "extractvalue")
	// A failed system query forwards the child revert unchanged.
	assert.Contains(t, text, "bubble:")
	assert.Contains(t, text, "@__revert_forward()")
	assert.Contains(t, text, "unreachable")
}

func TestGenerateCallCodeDegrades(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	args := make([]ir.ValueID, 7)
	for i := range args {
		args[i] = constOp(f, b, uint64(i+1))
	}
	status := b.Append(f, ir.Op{Kind: ir.CallCode, Args: args})
	b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 0), status}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok)

	assert.Contains(t, text, "@__mstore(i256 0, i256 0)")
	assert.NotContains(t, text, "callcode")

	var warned bool
	for _, d := range sink.Diagnostics() {
		if d.Code == diag.CodeDegradedOpcode {
			warned = true
		}
	}
	assert.True(t, warned, "expected a degradation warning")
}

func TestGenerateReservedEntryName(t *testing.T) {
	for _, name := range []string{"__entry", "__farcall", "__linker_symbol_lib"} {
		f := ir.NewFunction(name)
		f.Blocks[0].Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
		_, sink, ok := generate(t, optable.ContextRuntime, f)
		require.False(t, ok, "name %q must be rejected", name)
		assert.Equal(t, diag.CodeReservedNameConflict, sink.Diagnostics()[0].Code)
	}
}

func TestGenerateImmutables(t *testing.T) {
	build := func() *ir.Function {
		f := ir.NewFunction("deploy_code")
		b := f.Blocks[0]
		b.Append(f, ir.Op{Kind: ir.ImmutableStore, Sym: "owner", Args: []ir.ValueID{constOp(f, b, 42)}})
		v := b.Append(f, ir.Op{Kind: ir.ImmutableLoad, Sym: "owner"})
		b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 0), v}})
		b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
		return f
	}

	sink := diag.NewSink()
	layout := regions.NewLayout()
	g := New(optable.New(""), optable.ContextDeploy, layout, sink)
	mod, ok := g.Generate(build())
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())
	text := mod.String()
	assert.Contains(t, text, "@__immutable_store(i256 0, i256 42)")
	assert.Contains(t, text, "@__immutable_load(i256 0)")
	assert.Equal(t, 1, layout.ImmutableCount())
	assert.NoError(t, layout.CheckImmutables())

	// Assigning an immutable in runtime code violates the region
	// contract.
	_, sink2, ok := generate(t, optable.ContextRuntime, build())
	require.False(t, ok)
	assert.Equal(t, diag.CodeRegionLayoutViolation, sink2.Diagnostics()[0].Code)
}

func TestGenerateCodeCopyByContext(t *testing.T) {
	build := func() *ir.Function {
		f := ir.NewFunction("code")
		b := f.Blocks[0]
		b.Append(f, ir.Op{Kind: ir.CodeCopy, Args: []ir.ValueID{
			constOp(f, b, 0), constOp(f, b, 0), constOp(f, b, 32),
		}})
		b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
		return f
	}

	text, sink, ok := generate(t, optable.ContextDeploy, build())
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())
	assert.Contains(t, text, "@__codecopy(")

	_, sink, ok = generate(t, optable.ContextRuntime, build())
	require.False(t, ok)
	assert.Equal(t, diag.CodeUnsupportedOpcode, sink.Diagnostics()[0].Code)
}

func TestGenerateForwardingElision(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	dest := constOp(f, b, 0)
	src := constOp(f, b, 4)
	size := constOp(f, b, 64)
	b.Append(f, ir.Op{Kind: ir.CallDataCopy, Args: []ir.ValueID{dest, src, size}})

	gas := constOp(f, b, 0)
	addr := constOp(f, b, 0xabc)
	val := constOp(f, b, 0)
	outOff := constOp(f, b, 128)
	outCap := constOp(f, b, 32)
	b.Append(f, ir.Op{Kind: ir.Call, Args: []ir.ValueID{gas, addr, val, dest, size, outOff, outCap}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	// The heap round trip disappears; the call forwards the region.
	body := functionBody(t, text, "runtime_code")
	assert.NotContains(t, body, "@__calldata_copy(")
	assert.Contains(t, body, "@__farcall_forward(i256 2748, i256 0, i256 1, i256 3)")
}

func TestGenerateForwardingBlockedByAlias(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	dest := constOp(f, b, 0)
	src := constOp(f, b, 4)
	size := constOp(f, b, 64)
	b.Append(f, ir.Op{Kind: ir.CallDataCopy, Args: []ir.ValueID{dest, src, size}})
	// A store between copy and call may overlap the buffer.
	b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 32), constOp(f, b, 7)}})

	args := []ir.ValueID{constOp(f, b, 0), constOp(f, b, 0xabc), constOp(f, b, 0), dest, size, constOp(f, b, 128), constOp(f, b, 32)}
	b.Append(f, ir.Op{Kind: ir.Call, Args: args})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	body := functionBody(t, text, "runtime_code")
	assert.Contains(t, body, "@__calldata_copy(")
	assert.Contains(t, body, "@__farcall(")
	assert.NotContains(t, body, "@__farcall_forward(")
}

func TestGenerateCallFlags(t *testing.T) {
	// The flags word trails every system-call invocation: bit 0 is the
	// privileged dispatch flag, bit 1 marks a value-bearing call.
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]

	call := make([]ir.ValueID, 7)
	for i := range call {
		call[i] = constOp(f, b, uint64(i+1))
	}
	b.Append(f, ir.Op{Kind: ir.Call, Args: call})

	static := make([]ir.ValueID, 6)
	for i := range static {
		static[i] = constOp(f, b, uint64(i+1))
	}
	b.Append(f, ir.Op{Kind: ir.StaticCall, Args: static})

	b.Append(f, ir.Op{Kind: ir.Balance, Args: []ir.ValueID{constOp(f, b, 9)}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	body := functionBody(t, text, "runtime_code")
	// Value-bearing far call: privileged + value bits set.
	assert.Contains(t, body, "@__farcall(i256 2, i256 3, i256 4, i256 5, i256 3)")
	// Static call: privileged only.
	assert.Contains(t, body, "@__static_call(i256 2, i256 3, i256 4, i256 1)")
	// Balance is an unprivileged query.
	assert.Contains(t, body, "@__balance(i256 9, i256 0)")
}

func TestGenerateExpRoutine(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	base := b.Append(f, ir.Op{Kind: ir.CallDataLoad, Args: []ir.ValueID{constOp(f, b, 0)}})
	exp := b.Append(f, ir.Op{Kind: ir.CallDataLoad, Args: []ir.ValueID{constOp(f, b, 32)}})
	pow := b.Append(f, ir.Op{Kind: ir.Exp, Args: []ir.ValueID{base, exp}})
	b.Append(f, ir.Op{Kind: ir.MStore, Args: []ir.ValueID{constOp(f, b, 0), pow}})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	assert.Contains(t, text, "@__exp(")
	// Square-and-multiply: the routine halves the exponent each round
	// and squares the base, rather than multiplying exponent-many times.
	expDef := text[strings.Index(text, "define i256 @__exp"):]
	assert.Contains(t, expDef, "lshr i256")
	assert.Contains(t, expDef, "mul i256")
	assert.Contains(t, expDef, "phi i256")
}

func TestGenerateEventTopicOrder(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	offset := constOp(f, b, 0)
	size := constOp(f, b, 32)
	t1 := constOp(f, b, 17)
	t2 := constOp(f, b, 34)
	b.Append(f, ir.Op{Kind: ir.Log, Args: []ir.ValueID{offset, size, t1, t2}, Topics: 2})
	b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	// Indexed fields keep their declaration order after the fixed
	// operands and the flags word.
	assert.Contains(t, text, "@__event(i256 0, i256 32, i256 1, i256 17, i256 34)")
}

func TestGenerateDynamicJumpDispatch(t *testing.T) {
	f := ir.NewFunction("runtime_code")
	b := f.Blocks[0]
	dest := b.Append(f, ir.Op{Kind: ir.CallDataLoad, Args: []ir.ValueID{constOp(f, b, 0)}})
	two := f.AddBlock()
	three := f.AddBlock()
	b.Term = ir.Terminator{Kind: ir.TermJump, Cond: dest, Targets: []int{1, 2}}
	two.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
	three.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}

	text, sink, ok := generate(t, optable.ContextRuntime, f)
	require.True(t, ok, "diagnostics: %v", sink.Diagnostics())

	assert.Contains(t, text, "switch i256")
	// A destination outside the label set traps.
	assert.Contains(t, text, "badjump:")
}

func TestGenerateDeterministic(t *testing.T) {
	build := func() *ir.Function {
		f := ir.NewFunction("runtime_code")
		b := f.Blocks[0]
		bal := b.Append(f, ir.Op{Kind: ir.Balance, Args: []ir.ValueID{constOp(f, b, 7)}})
		sum := b.Append(f, ir.Op{Kind: ir.Add, Args: []ir.ValueID{bal, constOp(f, b, 1)}})
		b.Append(f, ir.Op{Kind: ir.SStore, Args: []ir.ValueID{constOp(f, b, 0), sum}})
		b.Term = ir.Terminator{Kind: ir.TermStop, Cond: ir.NoValue}
		return f
	}

	first, _, ok := generate(t, optable.ContextRuntime, build())
	require.True(t, ok)
	for i := 0; i < 8; i++ {
		again, _, ok := generate(t, optable.ContextRuntime, build())
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}
