// Package evmla models the legacy stack-machine assembly listing that is
// one of the two translation inputs. The parser producing these records is
// a separate component; this package defines the parsed form and splits it
// into a basic-block graph for the lifter.
package evmla

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/w2k-star-forks/zksync-compiler-solidity/diag"
)

// Kind discriminates plain opcodes from the assembler pseudo-operations
// the legacy listing contains.
type Kind int

const (
	// KindOpcode is a plain source-machine opcode; the Op field is valid.
	KindOpcode Kind = iota
	// KindTag is a block label definition.
	KindTag
	// KindPushTag pushes a block label as a jump destination.
	KindPushTag
	// KindPushData pushes an entry of the assembler data section.
	KindPushData
	// KindPushSize pushes the total code size placeholder.
	KindPushSize
	// KindPushLib pushes a library address placeholder.
	KindPushLib
	// KindPushDeployAddress pushes the address the contract was deployed at.
	KindPushDeployAddress
	// KindPushImmutable reads an immutable value by name.
	KindPushImmutable
	// KindAssignImmutable writes an immutable value by name (deploy code only).
	KindAssignImmutable
	// KindPushContractHash pushes a factory dependency's bytecode hash.
	KindPushContractHash
	// KindPushContractHashSize pushes a factory dependency's header size.
	KindPushContractHashSize
)

func (k Kind) String() string {
	switch k {
	case KindOpcode:
		return "opcode"
	case KindTag:
		return "tag"
	case KindPushTag:
		return "push [tag]"
	case KindPushData:
		return "push data"
	case KindPushSize:
		return "pushsize"
	case KindPushLib:
		return "pushlib"
	case KindPushDeployAddress:
		return "pushdeployaddress"
	case KindPushImmutable:
		return "pushimmutable"
	case KindAssignImmutable:
		return "assignimmutable"
	case KindPushContractHash:
		return "push [$]"
	case KindPushContractHashSize:
		return "push #[$]"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Instruction is one parsed legacy-assembly operation. Immutable once
// parsed.
type Instruction struct {
	Kind Kind
	// Op is valid when Kind == KindOpcode.
	Op vm.OpCode
	// Value holds the immediate: a hex constant for PUSHn, a decimal tag
	// id for Tag/PushTag, an identifier for the immutable and library
	// forms, or raw hex for PushData.
	Value    string
	Location diag.SourceLocation
}

// Opcode is a shortcut constructor for a plain opcode instruction.
func Opcode(op vm.OpCode) Instruction {
	return Instruction{Kind: KindOpcode, Op: op}
}

// OpcodeValue is a shortcut constructor for a PUSHn with its immediate.
func OpcodeValue(op vm.OpCode, value string) Instruction {
	return Instruction{Kind: KindOpcode, Op: op, Value: value}
}

// Tag is a shortcut constructor for a block label.
func Tag(id string) Instruction {
	return Instruction{Kind: KindTag, Value: id}
}

// PushTag is a shortcut constructor for a label push.
func PushTag(id string) Instruction {
	return Instruction{Kind: KindPushTag, Value: id}
}

func (i Instruction) String() string {
	switch i.Kind {
	case KindOpcode:
		if i.Value != "" {
			return fmt.Sprintf("%s %s", i.Op, i.Value)
		}
		return i.Op.String()
	case KindTag:
		return fmt.Sprintf("tag %s:", i.Value)
	case KindPushTag:
		return fmt.Sprintf("PUSH [tag %s]", i.Value)
	default:
		if i.Value != "" {
			return fmt.Sprintf("%s %s", i.Kind, i.Value)
		}
		return i.Kind.String()
	}
}

// IsTerminator reports whether the instruction ends a basic block.
func (i Instruction) IsTerminator() bool {
	if i.Kind != KindOpcode {
		return false
	}
	switch i.Op {
	case vm.JUMP, vm.JUMPI, vm.STOP, vm.RETURN, vm.REVERT, vm.SELFDESTRUCT, vm.INVALID:
		return true
	default:
		return false
	}
}

// IsExit reports whether the instruction halts execution, leaving no
// fall-through successor.
func (i Instruction) IsExit() bool {
	if i.Kind != KindOpcode {
		return false
	}
	switch i.Op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.SELFDESTRUCT, vm.INVALID:
		return true
	default:
		return false
	}
}
