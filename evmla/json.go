package evmla

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
)

// rawInstruction is one record of the legacy assembler's JSON listing.
type rawInstruction struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type rawListing struct {
	Code []rawInstruction `json:".code"`
}

// DecodeListing parses the assembler's JSON form of one code section.
// file is recorded in source locations for diagnostics.
func DecodeListing(data []byte, file string) ([]Instruction, error) {
	var listing rawListing
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, errors.Wrap(err, "malformed assembly listing")
	}
	if listing.Code == nil {
		return nil, errors.New("assembly listing has no .code section")
	}

	instrs := make([]Instruction, 0, len(listing.Code))
	for _, raw := range listing.Code {
		in, err := decodeInstruction(raw)
		if err != nil {
			return nil, err
		}
		in.Location.File = file
		instrs = append(instrs, in)
	}
	return instrs, nil
}

func decodeInstruction(raw rawInstruction) (Instruction, error) {
	switch raw.Name {
	case "tag":
		return Tag(raw.Value), nil
	case "PUSH [tag]":
		return PushTag(raw.Value), nil
	case "PUSH data":
		return Instruction{Kind: KindPushData, Value: raw.Value}, nil
	case "PUSHSIZE":
		return Instruction{Kind: KindPushSize}, nil
	case "PUSHLIB":
		return Instruction{Kind: KindPushLib, Value: raw.Value}, nil
	case "PUSHDEPLOYADDRESS":
		return Instruction{Kind: KindPushDeployAddress}, nil
	case "PUSHIMMUTABLE":
		return Instruction{Kind: KindPushImmutable, Value: raw.Value}, nil
	case "ASSIGNIMMUTABLE":
		return Instruction{Kind: KindAssignImmutable, Value: raw.Value}, nil
	case "PUSH [$]":
		return Instruction{Kind: KindPushContractHash, Value: raw.Value}, nil
	case "PUSH #[$]":
		return Instruction{Kind: KindPushContractHashSize, Value: raw.Value}, nil
	case "PUSH":
		// The listing writes a bare PUSH; the width comes from the
		// immediate.
		digits := len(strings.TrimPrefix(raw.Value, "0x"))
		width := (digits + 1) / 2
		if width == 0 {
			width = 1
		}
		if width > 32 {
			return Instruction{}, errors.Errorf("push immediate %q exceeds 32 bytes", raw.Value)
		}
		return OpcodeValue(vm.PUSH1+vm.OpCode(width-1), raw.Value), nil
	case "SHA3":
		// Older listings still carry the pre-rename mnemonic.
		return Opcode(vm.KECCAK256), nil
	}

	op := vm.StringToOp(raw.Name)
	if op == vm.STOP && raw.Name != "STOP" {
		return Instruction{}, errors.Errorf("unknown mnemonic %q in assembly listing", raw.Name)
	}
	if op >= vm.PUSH1 && op <= vm.PUSH32 {
		return OpcodeValue(op, raw.Value), nil
	}
	return Opcode(op), nil
}
