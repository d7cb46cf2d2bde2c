package ir

var opNames = map[OpKind]string{
	Const:               "const",
	Add:                 "add",
	Sub:                 "sub",
	Mul:                 "mul",
	Div:                 "div",
	SDiv:                "sdiv",
	Mod:                 "mod",
	SMod:                "smod",
	AddMod:              "addmod",
	MulMod:              "mulmod",
	Exp:                 "exp",
	SignExtend:          "signextend",
	Lt:                  "lt",
	Gt:                  "gt",
	SLt:                 "slt",
	SGt:                 "sgt",
	Eq:                  "eq",
	IsZero:              "iszero",
	And:                 "and",
	Or:                  "or",
	Xor:                 "xor",
	Not:                 "not",
	Byte:                "byte",
	Shl:                 "shl",
	Shr:                 "shr",
	Sar:                 "sar",
	Keccak256:           "keccak256",
	MLoad:               "mload",
	MStore:              "mstore",
	MStore8:             "mstore8",
	MSize:               "msize",
	MCopy:               "mcopy",
	SLoad:               "sload",
	SStore:              "sstore",
	TLoad:               "tload",
	TStore:              "tstore",
	CallDataLoad:        "calldataload",
	CallDataSize:        "calldatasize",
	CallDataCopy:        "calldatacopy",
	ReturnDataSize:      "returndatasize",
	ReturnDataCopy:      "returndatacopy",
	CodeSize:            "codesize",
	CodeCopy:            "codecopy",
	DataCopy:            "datacopy",
	Address:             "address",
	Caller:              "caller",
	Origin:              "origin",
	CallValue:           "callvalue",
	Gas:                 "gas",
	GasPrice:            "gasprice",
	GasLimit:            "gaslimit",
	ChainID:             "chainid",
	Coinbase:            "coinbase",
	BaseFee:             "basefee",
	Difficulty:          "difficulty",
	Timestamp:           "timestamp",
	Number:              "number",
	Balance:             "balance",
	SelfBalance:         "selfbalance",
	BlockHash:           "blockhash",
	ExtCodeSize:         "extcodesize",
	ExtCodeHash:         "extcodehash",
	Call:                "call",
	CallCode:            "callcode",
	StaticCall:          "staticcall",
	DelegateCall:        "delegatecall",
	Create:              "create",
	Create2:             "create2",
	Log:                 "log",
	ImmutableLoad:       "immutable.load",
	ImmutableStore:      "immutable.store",
	DeployAddress:       "deployaddress",
	CodeSizePlaceholder: "pushsize",
	ContractHash:        "contracthash",
	ContractHashSize:    "contracthashsize",
	LibraryAddress:      "libraryaddress",
}

var termNames = map[TermKind]string{
	TermNone:    "fallthrough",
	TermJump:    "jump",
	TermBranch:  "branch",
	TermReturn:  "return",
	TermRevert:  "revert",
	TermStop:    "stop",
	TermInvalid: "invalid",
}

// Name returns the printable mnemonic of an op kind.
func Name(k OpKind) string {
	if n, ok := opNames[k]; ok {
		return n
	}
	return "op?"
}
