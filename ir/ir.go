// Package ir is the structured intermediate form the code generator
// consumes: a graph of basic blocks over named symbolic values, with no
// operand-stack positions left. Frontends hand it over directly; the
// legacy-assembly path produces it through the lifter.
package ir

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
)

// ValueID names a symbolic value within one function. IDs are dense,
// starting at zero, and never reused.
type ValueID int

// NoValue marks operations that produce nothing.
const NoValue ValueID = -1

type OpKind int

const (
	// Const materializes a 256-bit constant.
	Const OpKind = iota

	// Arithmetic.
	Add
	Sub
	Mul
	Div
	SDiv
	Mod
	SMod
	AddMod
	MulMod
	Exp
	SignExtend

	// Comparison.
	Lt
	Gt
	SLt
	SGt
	Eq
	IsZero

	// Bitwise.
	And
	Or
	Xor
	Not
	Byte
	Shl
	Shr
	Sar

	Keccak256

	// Heap.
	MLoad
	MStore
	MStore8
	MSize
	MCopy

	// Storage and transient storage.
	SLoad
	SStore
	TLoad
	TStore

	// Calldata and returndata regions.
	CallDataLoad
	CallDataSize
	CallDataCopy
	ReturnDataSize
	ReturnDataCopy

	// Code regions (deploy context only for the copies).
	CodeSize
	CodeCopy
	DataCopy

	// Environment reads.
	Address
	Caller
	Origin
	CallValue
	Gas
	GasPrice
	GasLimit
	ChainID
	Coinbase
	BaseFee
	Difficulty
	Timestamp
	Number

	// Account queries.
	Balance
	SelfBalance
	BlockHash
	ExtCodeSize
	ExtCodeHash

	// External calls and creation.
	Call
	CallCode
	StaticCall
	DelegateCall
	Create
	Create2

	// Event emission. The Topics field of the Op carries the number of
	// indexed fields; Args is [offset, size, topic1..topicN] and the
	// topic argument order is the source-language evaluation order.
	Log

	// Immutable table access. Sym carries the immutable's name.
	ImmutableLoad
	ImmutableStore

	// Deploy-code specials.
	DeployAddress
	CodeSizePlaceholder
	ContractHash
	ContractHashSize
	LibraryAddress
)

// Op is one structured operation. Args reference previously defined
// values; Result is NoValue for effects.
type Op struct {
	Kind   OpKind
	Args   []ValueID
	Result ValueID

	// Const carries the literal for Kind == Const.
	Const *uint256.Int
	// Sym carries a symbol payload: the immutable name, the factory
	// dependency path, or the library identifier.
	Sym string
	// Topics is the indexed-field count for Log.
	Topics int

	Location diag.SourceLocation
}

type TermKind int

const (
	// TermNone marks a block that falls through to Targets[0].
	TermNone TermKind = iota
	TermJump
	TermBranch
	TermReturn
	TermRevert
	TermStop
	TermInvalid
)

// Terminator ends a block. Branch has Targets [then, else]; a dynamic
// jump lists every feasible target, with Cond carrying the destination
// value for the serializer's dispatch.
type Terminator struct {
	Kind    TermKind
	Cond    ValueID
	Args    []ValueID
	Targets []int
}

// PhiEdge is one incoming value of a join-point phi, keyed by the
// predecessor block it arrives from. Edges are kept sorted by Pred so
// that emission order is deterministic.
type PhiEdge struct {
	Pred  int
	Value ValueID
}

type Phi struct {
	Result ValueID
	Edges  []PhiEdge
}

type Block struct {
	Index int
	Phis  []Phi
	Ops   []Op
	Term  Terminator
}

// Function is one code section of one compilation unit. The translation
// unit that created it exclusively owns it.
type Function struct {
	Name      string
	Blocks    []*Block
	NumValues int
}

// NewFunction returns an empty function with a single entry block.
func NewFunction(name string) *Function {
	f := &Function{Name: name}
	f.AddBlock()
	return f
}

// AddBlock appends a new empty block and returns it.
func (f *Function) AddBlock() *Block {
	b := &Block{Index: len(f.Blocks)}
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewValue allocates a fresh symbolic value id.
func (f *Function) NewValue() ValueID {
	v := ValueID(f.NumValues)
	f.NumValues++
	return v
}

// Append adds an op to the block, allocating its result when the kind
// produces one.
func (b *Block) Append(f *Function, op Op) ValueID {
	if producesValue(op.Kind) {
		op.Result = f.NewValue()
	} else {
		op.Result = NoValue
	}
	b.Ops = append(b.Ops, op)
	return op.Result
}

// AppendConst materializes a constant in the block.
func (b *Block) AppendConst(f *Function, value *uint256.Int) ValueID {
	op := Op{Kind: Const, Const: value.Clone(), Result: f.NewValue()}
	b.Ops = append(b.Ops, op)
	return op.Result
}

func producesValue(k OpKind) bool {
	switch k {
	case MStore, MStore8, MCopy, SStore, TStore, CallDataCopy,
		ReturnDataCopy, CodeCopy, DataCopy, Log, ImmutableStore:
		return false
	default:
		return true
	}
}

// ProducesValue reports whether ops of this kind define a result.
func ProducesValue(k OpKind) bool { return producesValue(k) }

func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s:\n", f.Name)
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "block_%d:\n", b.Index)
		for _, phi := range b.Phis {
			fmt.Fprintf(&sb, "\tv%d = phi", phi.Result)
			for i, e := range phi.Edges {
				if i > 0 {
					sb.WriteString(",")
				}
				fmt.Fprintf(&sb, " [block_%d: v%d]", e.Pred, e.Value)
			}
			sb.WriteByte('\n')
		}
		for _, op := range b.Ops {
			sb.WriteByte('\t')
			if op.Result != NoValue {
				fmt.Fprintf(&sb, "v%d = ", op.Result)
			}
			fmt.Fprintf(&sb, "%s", opNames[op.Kind])
			if op.Const != nil {
				fmt.Fprintf(&sb, " 0x%s", op.Const.Hex()[2:])
			}
			if op.Sym != "" {
				fmt.Fprintf(&sb, " %q", op.Sym)
			}
			for _, a := range op.Args {
				fmt.Fprintf(&sb, " v%d", a)
			}
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "\t%s", termNames[b.Term.Kind])
		if b.Term.Cond != NoValue && (b.Term.Kind == TermBranch || b.Term.Kind == TermJump) {
			fmt.Fprintf(&sb, " v%d", b.Term.Cond)
		}
		for _, a := range b.Term.Args {
			fmt.Fprintf(&sb, " v%d", a)
		}
		for _, t := range b.Term.Targets {
			fmt.Fprintf(&sb, " block_%d", t)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
