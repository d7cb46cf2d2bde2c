// Package syscalls lowers source-machine operations that have no native
// target instruction into calls to the privileged system contracts of the
// target machine. The descriptor table identifies every privileged
// operation by a stable selector; the expander turns a descriptor plus its
// structured operands into the target call sequence.
package syscalls

import (
	"fmt"
	"strings"
)

// Selector is the stable numeric identifier of a privileged operation.
// Selectors are part of the versioned output contract and must not be
// renumbered between releases.
type Selector uint32

const (
	SelectorFarCall      Selector = 0x0001
	SelectorStaticCall   Selector = 0x0002
	SelectorDelegateCall Selector = 0x0003
	SelectorCreate       Selector = 0x0004
	SelectorCreate2      Selector = 0x0005
	SelectorExtCodeSize  Selector = 0x0010
	SelectorExtCodeHash  Selector = 0x0011
	SelectorBalance      Selector = 0x0012
	SelectorBlockHash    Selector = 0x0013
	SelectorEvent        Selector = 0x0020
)

// ArgKind describes how one argument of a privileged call is marshaled.
type ArgKind int

const (
	ArgWord    ArgKind = iota // plain 256-bit value
	ArgAddress                // address, zero-extended to 256 bits
	ArgHeapPtr                // heap offset of an input buffer
	ArgLength                 // byte length paired with the preceding pointer
)

// Descriptor identifies a privileged operation, its argument layout, and
// whether the generated call must set the system-call flag that
// distinguishes it from an ordinary external call. A descriptor is
// consumed exactly once per occurrence in the translated program.
type Descriptor struct {
	Selector Selector
	Name     string
	Args     []ArgKind

	// SystemFlag marks invocations that the target's call-dispatch layer
	// must treat as privileged rather than as ordinary far calls.
	SystemFlag bool

	// HasValue marks call-family operations that carry msg.value. A zero
	// value and an absent value produce the same call sequence.
	HasValue bool
}

var descriptors = map[Selector]Descriptor{
	SelectorFarCall: {
		Selector:   SelectorFarCall,
		Name:       "__farcall",
		Args:       []ArgKind{ArgAddress, ArgWord, ArgHeapPtr, ArgLength},
		SystemFlag: true,
		HasValue:   true,
	},
	SelectorStaticCall: {
		Selector:   SelectorStaticCall,
		Name:       "__static_call",
		Args:       []ArgKind{ArgAddress, ArgHeapPtr, ArgLength},
		SystemFlag: true,
	},
	SelectorDelegateCall: {
		Selector:   SelectorDelegateCall,
		Name:       "__delegate_call",
		Args:       []ArgKind{ArgAddress, ArgHeapPtr, ArgLength},
		SystemFlag: true,
	},
	SelectorCreate: {
		Selector:   SelectorCreate,
		Name:       "__create",
		Args:       []ArgKind{ArgWord, ArgHeapPtr, ArgLength},
		SystemFlag: true,
		HasValue:   true,
	},
	SelectorCreate2: {
		Selector:   SelectorCreate2,
		Name:       "__create2",
		Args:       []ArgKind{ArgWord, ArgHeapPtr, ArgLength, ArgWord},
		SystemFlag: true,
		HasValue:   true,
	},
	SelectorExtCodeSize: {
		Selector:   SelectorExtCodeSize,
		Name:       "__extcodesize",
		Args:       []ArgKind{ArgAddress},
		SystemFlag: true,
	},
	SelectorExtCodeHash: {
		Selector:   SelectorExtCodeHash,
		Name:       "__extcodehash",
		Args:       []ArgKind{ArgAddress},
		SystemFlag: true,
	},
	SelectorBalance: {
		Selector: SelectorBalance,
		Name:     "__balance",
		Args:     []ArgKind{ArgAddress},
	},
	SelectorBlockHash: {
		Selector: SelectorBlockHash,
		Name:     "__blockhash",
		Args:     []ArgKind{ArgWord},
	},
	SelectorEvent: {
		Selector:   SelectorEvent,
		Name:       "__event",
		Args:       []ArgKind{ArgHeapPtr, ArgLength},
		SystemFlag: true,
	},
}

// Lookup returns the descriptor for a selector.
func Lookup(sel Selector) (Descriptor, error) {
	d, ok := descriptors[sel]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown system call selector 0x%04x", uint32(sel))
	}
	return d, nil
}

// Reserved reports whether name collides with a function name the
// translation scheme reserves for itself. User-declared identifiers that
// collide must be rejected before code generation proceeds.
func Reserved(name string) bool {
	if _, ok := reservedNames[name]; ok {
		return true
	}
	// Link-time symbols are minted per identifier; the whole prefix is
	// off limits.
	return strings.HasPrefix(name, "__linker_symbol_")
}

// reservedNames covers the system call entry points plus the runtime
// helpers the code generator declares in every module.
var reservedNames = map[string]struct{}{}

func init() {
	for _, d := range descriptors {
		reservedNames[d.Name] = struct{}{}
	}
	for _, name := range []string{
		"__entry",
		"__context",
		"__exp",
		"__addmod",
		"__mulmod",
		"__signextend",
		"__sload",
		"__sstore",
		"__tload",
		"__tstore",
		"__keccak256",
		"__calldata_load",
		"__calldata_size",
		"__calldata_copy",
		"__returndata_size",
		"__returndata_copy",
		"__returndata_reset",
		"__returndata_spill",
		"__immutable_load",
		"__immutable_store",
		"__mload",
		"__mstore",
		"__mstore8",
		"__msize",
		"__mcopy",
		"__codesize",
		"__codecopy",
		"__datacopy",
		"__farcall_forward",
		"__static_call_forward",
		"__delegate_call_forward",
		"__return",
		"__revert",
		"__revert_forward",
	} {
		reservedNames[name] = struct{}{}
	}
}
