package lifter

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/w2k-star-forks/zksync-compiler-solidity/ir"
)

var opKinds = map[vm.OpCode]ir.OpKind{
	vm.ADD:        ir.Add,
	vm.MUL:        ir.Mul,
	vm.SUB:        ir.Sub,
	vm.DIV:        ir.Div,
	vm.SDIV:       ir.SDiv,
	vm.MOD:        ir.Mod,
	vm.SMOD:       ir.SMod,
	vm.ADDMOD:     ir.AddMod,
	vm.MULMOD:     ir.MulMod,
	vm.EXP:        ir.Exp,
	vm.SIGNEXTEND: ir.SignExtend,

	vm.LT:     ir.Lt,
	vm.GT:     ir.Gt,
	vm.SLT:    ir.SLt,
	vm.SGT:    ir.SGt,
	vm.EQ:     ir.Eq,
	vm.ISZERO: ir.IsZero,

	vm.AND:  ir.And,
	vm.OR:   ir.Or,
	vm.XOR:  ir.Xor,
	vm.NOT:  ir.Not,
	vm.BYTE: ir.Byte,
	vm.SHL:  ir.Shl,
	vm.SHR:  ir.Shr,
	vm.SAR:  ir.Sar,

	vm.KECCAK256: ir.Keccak256,

	vm.MLOAD:   ir.MLoad,
	vm.MSTORE:  ir.MStore,
	vm.MSTORE8: ir.MStore8,
	vm.MSIZE:   ir.MSize,
	vm.MCOPY:   ir.MCopy,

	vm.SLOAD:  ir.SLoad,
	vm.SSTORE: ir.SStore,
	vm.TLOAD:  ir.TLoad,
	vm.TSTORE: ir.TStore,

	vm.CALLDATALOAD:   ir.CallDataLoad,
	vm.CALLDATASIZE:   ir.CallDataSize,
	vm.CALLDATACOPY:   ir.CallDataCopy,
	vm.RETURNDATASIZE: ir.ReturnDataSize,
	vm.RETURNDATACOPY: ir.ReturnDataCopy,
	vm.CODESIZE:       ir.CodeSize,
	vm.CODECOPY:       ir.CodeCopy,

	vm.ADDRESS:   ir.Address,
	vm.CALLER:    ir.Caller,
	vm.CALLVALUE: ir.CallValue,
	vm.ORIGIN:    ir.Origin,
	vm.GASPRICE:  ir.GasPrice,
	vm.GAS:       ir.Gas,
	vm.GASLIMIT:  ir.GasLimit,
	vm.CHAINID:   ir.ChainID,
	vm.NUMBER:    ir.Number,
	vm.TIMESTAMP: ir.Timestamp,
	vm.COINBASE:  ir.Coinbase,
	vm.BASEFEE:   ir.BaseFee,
	// PREVRANDAO shares the DIFFICULTY byte; both lower to the same
	// environment read.
	vm.PREVRANDAO: ir.Difficulty,

	vm.BALANCE:     ir.Balance,
	vm.SELFBALANCE: ir.SelfBalance,
	vm.BLOCKHASH:   ir.BlockHash,
	vm.EXTCODESIZE: ir.ExtCodeSize,
	vm.EXTCODEHASH: ir.ExtCodeHash,

	vm.CALL:         ir.Call,
	vm.CALLCODE:     ir.CallCode,
	vm.STATICCALL:   ir.StaticCall,
	vm.DELEGATECALL: ir.DelegateCall,
	vm.CREATE:       ir.Create,
	vm.CREATE2:      ir.Create2,
}

func opKind(op vm.OpCode) (ir.OpKind, bool) {
	k, ok := opKinds[op]
	return k, ok
}
