package regions

import (
	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
)

// ForwardKind says which region a call input buffer can be forwarded
// from, skipping the intermediate heap copy.
type ForwardKind int

const (
	ForwardNone ForwardKind = iota
	ForwardCallData
	ForwardReturnData
)

// Forwarding marks one elidable copy: the op at CopyIndex writes a heap
// buffer that the call op at CallIndex immediately consumes as its input,
// with nothing in between that could alias the buffer.
type Forwarding struct {
	CopyIndex int
	CallIndex int
	Kind      ForwardKind
}

// AnalyzeForwarding finds calldata/returndata copies whose heap buffer is
// used only as the next call's input and can therefore be forwarded
// without materializing. The analysis is conservative: anything that
// might alias the copied range (a heap access, another call, an offset
// we cannot compare) makes the copy ineligible. Ambiguity means no
// elision.
func AnalyzeForwarding(b *ir.Block) []Forwarding {
	var out []Forwarding

	for i, op := range b.Ops {
		var kind ForwardKind
		switch op.Kind {
		case ir.CallDataCopy:
			kind = ForwardCallData
		case ir.ReturnDataCopy:
			kind = ForwardReturnData
		default:
			continue
		}
		// Args: dest, source offset, size.
		if len(op.Args) != 3 {
			continue
		}
		dest, size := op.Args[0], op.Args[2]

		callIdx, ok := nextCallOverBuffer(b, i+1, dest, size)
		if !ok {
			continue
		}
		out = append(out, Forwarding{CopyIndex: i, CallIndex: callIdx, Kind: kind})
	}
	return out
}

// nextCallOverBuffer scans forward from index from for a call whose input
// buffer is exactly (dest, size). It gives up on the first op that could
// read or write the heap, since that would require an aliasing proof the
// analysis does not attempt.
func nextCallOverBuffer(b *ir.Block, from int, dest, size ir.ValueID) (int, bool) {
	for j := from; j < len(b.Ops); j++ {
		op := b.Ops[j]
		switch op.Kind {
		case ir.Call, ir.StaticCall, ir.DelegateCall:
			inOff, inLen, ok := callInput(op)
			if !ok {
				return 0, false
			}
			if inOff == dest && inLen == size {
				return j, true
			}
			return 0, false
		case ir.MLoad, ir.MStore, ir.MStore8, ir.MCopy, ir.Keccak256,
			ir.Log, ir.CallDataCopy, ir.ReturnDataCopy, ir.CodeCopy,
			ir.DataCopy, ir.Create, ir.Create2, ir.CallCode:
			// Possible alias of the buffer: not eligible.
			return 0, false
		}
	}
	return 0, false
}

// callInput extracts the input offset/length operands of a call op.
// Argument layouts follow the source machine's operand order:
// CALL: gas, address, value, inOff, inLen, outOff, outLen;
// STATICCALL/DELEGATECALL drop the value.
func callInput(op ir.Op) (ir.ValueID, ir.ValueID, bool) {
	switch op.Kind {
	case ir.Call:
		if len(op.Args) != 7 {
			return 0, 0, false
		}
		return op.Args[3], op.Args[4], true
	case ir.StaticCall, ir.DelegateCall:
		if len(op.Args) != 6 {
			return 0, 0, false
		}
		return op.Args[2], op.Args[3], true
	default:
		return 0, 0, false
	}
}
