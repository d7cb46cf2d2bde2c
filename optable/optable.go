// Package optable maps every source-machine opcode to its translation
// disposition on the target machine: direct native emission, expansion
// into a privileged system-contract call, or a compile-time error.
//
// The table is process-wide, immutable after construction, and shared by
// reference between all translation workers; no locking is required.
package optable

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/w2k-star-forks/zksync-compiler-solidity/syscalls"
)

// Version is the semantic-table version recorded alongside generated
// output. Opcode dispositions change between releases and downstream
// tooling checks this value for compatibility.
const Version = "1.3.9"

// CodeContext distinguishes deployment code from runtime code. A few
// opcodes are sound in one and not the other: CODECOPY of static data is
// a known deploy-time pattern, but in runtime code it would introspect the
// currently executing contract's own code, which the target cannot do.
type CodeContext int

const (
	ContextDeploy CodeContext = iota
	ContextRuntime
)

func (c CodeContext) String() string {
	if c == ContextDeploy {
		return "deploy"
	}
	return "runtime"
}

type DispositionKind int

const (
	// Native opcodes translate 1:1 or via a short fixed sequence of
	// target instructions.
	Native DispositionKind = iota
	// SystemCall opcodes lower to a call into a privileged system
	// contract.
	SystemCall
	// Unsupported opcodes have no sound translation and fail the build.
	// A hard error is preferred over best-effort emulation: silent
	// semantic drift in contract bytecode is worse than a build failure.
	Unsupported
)

func (k DispositionKind) String() string {
	switch k {
	case Native:
		return "native"
	case SystemCall:
		return "system call"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("disposition(%d)", int(k))
	}
}

// UnsupportedReason is the category cited by an UnsupportedOpcode
// diagnostic.
type UnsupportedReason int

const (
	ReasonNone UnsupportedReason = iota
	// ReasonIntrospection covers opcodes that read the executing
	// contract's own code or program counter.
	ReasonIntrospection
	// ReasonSelfDestruct covers the self-destruct semantics the target
	// storage model cannot reproduce.
	ReasonSelfDestruct
	// ReasonUnknown covers byte values with no defined opcode.
	ReasonUnknown
)

func (r UnsupportedReason) String() string {
	switch r {
	case ReasonIntrospection:
		return "introspection-dependent"
	case ReasonSelfDestruct:
		return "self-destruct semantics"
	case ReasonUnknown:
		return "unknown opcode"
	default:
		return "none"
	}
}

// Disposition is the three-way result of an opcode lookup. The payload
// fields are populated according to Kind: Selector for SystemCall, Reason
// for Unsupported.
type Disposition struct {
	Kind     DispositionKind
	Selector syscalls.Selector
	Reason   UnsupportedReason
}

// Arity is the operand-stack effect of an opcode: how many values it
// consumes and produces. The lifter simulates exactly these counts, so a
// wrong entry here shows up as a stack-depth mismatch at the next join
// point rather than as silently wrong code.
type Arity struct {
	Pops   int
	Pushes int
}

type entry struct {
	defined     bool
	arity       Arity
	disposition Disposition
	// runtimeOnly overrides the disposition in runtime code.
	runtimeOverride *Disposition
}

// Table is the opcode semantic table. Construct once with New and share
// read-only.
type Table struct {
	version string
	entries [256]entry
}

// New builds the semantic table for the given version string. An empty
// version selects the current default.
func New(version string) *Table {
	if version == "" {
		version = Version
	}
	t := &Table{version: version}
	t.populate()
	return t
}

// Version returns the semantic-table version this table implements.
func (t *Table) Version() string {
	return t.version
}

// Lookup returns the disposition of op in the given code context.
// Unknown byte values return Unsupported with ReasonUnknown.
func (t *Table) Lookup(op vm.OpCode, ctx CodeContext) Disposition {
	e := t.entries[op]
	if !e.defined {
		return Disposition{Kind: Unsupported, Reason: ReasonUnknown}
	}
	if ctx == ContextRuntime && e.runtimeOverride != nil {
		return *e.runtimeOverride
	}
	return e.disposition
}

// ArityOf returns the stack effect of op. Unknown opcodes report a zero
// arity and false.
func (t *Table) ArityOf(op vm.OpCode) (Arity, bool) {
	e := t.entries[op]
	return e.arity, e.defined
}

func (t *Table) native(op vm.OpCode, pops, pushes int) {
	t.entries[op] = entry{
		defined:     true,
		arity:       Arity{Pops: pops, Pushes: pushes},
		disposition: Disposition{Kind: Native},
	}
}

func (t *Table) system(op vm.OpCode, pops, pushes int, sel syscalls.Selector) {
	t.entries[op] = entry{
		defined:     true,
		arity:       Arity{Pops: pops, Pushes: pushes},
		disposition: Disposition{Kind: SystemCall, Selector: sel},
	}
}

func (t *Table) unsupported(op vm.OpCode, pops, pushes int, reason UnsupportedReason) {
	t.entries[op] = entry{
		defined:     true,
		arity:       Arity{Pops: pops, Pushes: pushes},
		disposition: Disposition{Kind: Unsupported, Reason: reason},
	}
}

func (t *Table) populate() {
	// Arithmetic.
	t.native(vm.STOP, 0, 0)
	t.native(vm.ADD, 2, 1)
	t.native(vm.MUL, 2, 1)
	t.native(vm.SUB, 2, 1)
	t.native(vm.DIV, 2, 1)
	t.native(vm.SDIV, 2, 1)
	t.native(vm.MOD, 2, 1)
	t.native(vm.SMOD, 2, 1)
	t.native(vm.ADDMOD, 3, 1)
	t.native(vm.MULMOD, 3, 1)
	t.native(vm.EXP, 2, 1)
	t.native(vm.SIGNEXTEND, 2, 1)

	// Comparison.
	t.native(vm.LT, 2, 1)
	t.native(vm.GT, 2, 1)
	t.native(vm.SLT, 2, 1)
	t.native(vm.SGT, 2, 1)
	t.native(vm.EQ, 2, 1)
	t.native(vm.ISZERO, 1, 1)

	// Bitwise.
	t.native(vm.AND, 2, 1)
	t.native(vm.OR, 2, 1)
	t.native(vm.XOR, 2, 1)
	t.native(vm.NOT, 1, 1)
	t.native(vm.BYTE, 2, 1)
	t.native(vm.SHL, 2, 1)
	t.native(vm.SHR, 2, 1)
	t.native(vm.SAR, 2, 1)

	// Hashing.
	t.native(vm.KECCAK256, 2, 1)

	// Environment. These read target-native context registers; after the
	// compatibility update DIFFICULTY (PREVRANDAO) is treated as a plain
	// environment read as well.
	t.native(vm.ADDRESS, 0, 1)
	t.native(vm.ORIGIN, 0, 1)
	t.native(vm.CALLER, 0, 1)
	t.native(vm.CALLVALUE, 0, 1)
	t.native(vm.GAS, 0, 1)
	t.native(vm.GASPRICE, 0, 1)
	t.native(vm.GASLIMIT, 0, 1)
	t.native(vm.CHAINID, 0, 1)
	t.native(vm.COINBASE, 0, 1)
	t.native(vm.BASEFEE, 0, 1)
	t.native(vm.PREVRANDAO, 0, 1)
	t.native(vm.TIMESTAMP, 0, 1)
	t.native(vm.NUMBER, 0, 1)

	// Account queries go through system contracts.
	t.system(vm.BALANCE, 1, 1, syscalls.SelectorBalance)
	t.system(vm.SELFBALANCE, 0, 1, syscalls.SelectorBalance)
	t.system(vm.BLOCKHASH, 1, 1, syscalls.SelectorBlockHash)
	t.system(vm.EXTCODESIZE, 1, 1, syscalls.SelectorExtCodeSize)
	t.system(vm.EXTCODEHASH, 1, 1, syscalls.SelectorExtCodeHash)

	// Calldata and returndata.
	t.native(vm.CALLDATALOAD, 1, 1)
	t.native(vm.CALLDATASIZE, 0, 1)
	t.native(vm.CALLDATACOPY, 3, 0)
	t.native(vm.RETURNDATASIZE, 0, 1)
	t.native(vm.RETURNDATACOPY, 3, 0)

	// Code introspection. CODESIZE and CODECOPY are meaningful in deploy
	// code, where "code" is the deploy-input buffer; in runtime code
	// CODECOPY would read the executing contract's own bytecode, which
	// has no sound translation.
	t.native(vm.CODESIZE, 0, 1)
	t.native(vm.CODECOPY, 3, 0)
	t.entries[vm.CODECOPY].runtimeOverride = &Disposition{
		Kind:   Unsupported,
		Reason: ReasonIntrospection,
	}
	t.unsupported(vm.PC, 0, 1, ReasonIntrospection)
	t.unsupported(vm.EXTCODECOPY, 4, 0, ReasonIntrospection)
	t.unsupported(vm.SELFDESTRUCT, 1, 0, ReasonSelfDestruct)

	// Memory.
	t.native(vm.MLOAD, 1, 1)
	t.native(vm.MSTORE, 2, 0)
	t.native(vm.MSTORE8, 2, 0)
	t.native(vm.MSIZE, 0, 1)
	t.native(vm.MCOPY, 3, 0)

	// Storage.
	t.native(vm.SLOAD, 1, 1)
	t.native(vm.SSTORE, 2, 0)
	t.native(vm.TLOAD, 1, 1)
	t.native(vm.TSTORE, 2, 0)

	// Control flow. Jumps are resolved by the lifter; they are native in
	// the sense that no system contract is involved.
	t.native(vm.JUMP, 1, 0)
	t.native(vm.JUMPI, 2, 0)
	t.native(vm.JUMPDEST, 0, 0)

	// Stack manipulation.
	t.native(vm.POP, 1, 0)
	t.native(vm.PUSH0, 0, 1)
	for i := 0; i < 32; i++ {
		t.native(vm.PUSH1+vm.OpCode(i), 0, 1)
	}
	for i := 0; i < 16; i++ {
		t.native(vm.DUP1+vm.OpCode(i), i+1, i+2)
		t.native(vm.SWAP1+vm.OpCode(i), i+2, i+2)
	}

	// Events.
	for i := 0; i <= 4; i++ {
		t.system(vm.LOG0+vm.OpCode(i), 2+i, 0, syscalls.SelectorEvent)
	}

	// External calls and contract creation.
	t.system(vm.CREATE, 3, 1, syscalls.SelectorCreate)
	t.system(vm.CREATE2, 4, 1, syscalls.SelectorCreate2)
	t.system(vm.CALL, 7, 1, syscalls.SelectorFarCall)
	t.system(vm.STATICCALL, 6, 1, syscalls.SelectorStaticCall)
	t.system(vm.DELEGATECALL, 6, 1, syscalls.SelectorDelegateCall)

	// CALLCODE is kept native: it lowers to a constant-zero result with a
	// compatibility warning, matching the reference behavior.
	t.native(vm.CALLCODE, 7, 1)

	// Halting.
	t.native(vm.RETURN, 2, 0)
	t.native(vm.REVERT, 2, 0)
	t.native(vm.INVALID, 0, 0)
}
