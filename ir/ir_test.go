package ir

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAllocatesResults(t *testing.T) {
	f := NewFunction("f")
	b := f.Blocks[0]

	c := b.AppendConst(f, uint256.NewInt(1))
	assert.Equal(t, ValueID(0), c)

	sum := b.Append(f, Op{Kind: Add, Args: []ValueID{c, c}})
	assert.Equal(t, ValueID(1), sum)

	// Effects define nothing.
	store := b.Append(f, Op{Kind: MStore, Args: []ValueID{c, sum}})
	assert.Equal(t, NoValue, store)

	assert.Equal(t, 2, f.NumValues)
}

func TestProducesValue(t *testing.T) {
	for _, k := range []OpKind{MStore, MStore8, MCopy, SStore, TStore, CallDataCopy, ReturnDataCopy, CodeCopy, Log, ImmutableStore} {
		assert.False(t, ProducesValue(k), Name(k))
	}
	for _, k := range []OpKind{Const, Add, Keccak256, MLoad, SLoad, Call, Create, ImmutableLoad, Balance} {
		assert.True(t, ProducesValue(k), Name(k))
	}
}

func TestAppendConstClones(t *testing.T) {
	f := NewFunction("f")
	b := f.Blocks[0]
	v := uint256.NewInt(5)
	b.AppendConst(f, v)
	v.SetUint64(9)
	assert.Equal(t, uint64(5), b.Ops[0].Const.Uint64())
}

func TestFunctionString(t *testing.T) {
	f := NewFunction("runtime")
	b := f.Blocks[0]
	c := b.AppendConst(f, uint256.NewInt(42))
	d := b.AppendConst(f, uint256.NewInt(0))
	b.Append(f, Op{Kind: SStore, Args: []ValueID{d, c}})
	b.Term = Terminator{Kind: TermStop, Cond: NoValue}

	join := f.AddBlock()
	join.Phis = append(join.Phis, Phi{Result: f.NewValue(), Edges: []PhiEdge{{Pred: 0, Value: c}}})
	join.Term = Terminator{Kind: TermStop, Cond: NoValue}

	out := f.String()
	require.Contains(t, out, "function runtime:")
	assert.Contains(t, out, "block_0:")
	assert.Contains(t, out, "sstore v1 v0")
	assert.Contains(t, out, "phi [block_0: v0]")
	assert.Contains(t, out, "stop")
}
