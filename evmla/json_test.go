package evmla

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeListing(t *testing.T) {
	data := []byte(`{
		".code": [
			{"name": "PUSH", "value": "80"},
			{"name": "PUSH", "value": "40"},
			{"name": "MSTORE"},
			{"name": "PUSH [tag]", "value": "1"},
			{"name": "JUMP"},
			{"name": "tag", "value": "1"},
			{"name": "JUMPDEST"},
			{"name": "PUSHIMMUTABLE", "value": "owner"},
			{"name": "ASSIGNIMMUTABLE", "value": "owner"},
			{"name": "SHA3"},
			{"name": "PUSH [$]", "value": "child.sol:Child"},
			{"name": "PUSH #[$]", "value": "child.sol:Child"},
			{"name": "PUSHSIZE"},
			{"name": "STOP"}
		]
	}`)

	instrs, err := DecodeListing(data, "counter.sol")
	require.NoError(t, err)
	require.Len(t, instrs, 14)

	assert.Equal(t, KindOpcode, instrs[0].Kind)
	assert.Equal(t, vm.PUSH1, instrs[0].Op)
	assert.Equal(t, "80", instrs[0].Value)
	assert.Equal(t, "counter.sol", instrs[0].Location.File)

	assert.Equal(t, vm.MSTORE, instrs[2].Op)
	assert.Equal(t, KindPushTag, instrs[3].Kind)
	assert.Equal(t, "1", instrs[3].Value)
	assert.Equal(t, KindTag, instrs[5].Kind)
	assert.Equal(t, KindPushImmutable, instrs[7].Kind)
	assert.Equal(t, KindAssignImmutable, instrs[8].Kind)
	// Pre-rename mnemonic maps onto the same opcode.
	assert.Equal(t, vm.KECCAK256, instrs[9].Op)
	assert.Equal(t, KindPushContractHash, instrs[10].Kind)
	assert.Equal(t, KindPushContractHashSize, instrs[11].Kind)
	assert.Equal(t, KindPushSize, instrs[12].Kind)
	assert.Equal(t, vm.STOP, instrs[13].Op)
}

func TestDecodeListingPushWidths(t *testing.T) {
	for _, tc := range []struct {
		value string
		op    vm.OpCode
	}{
		{"ff", vm.PUSH1},
		{"ffff", vm.PUSH2},
		{"fff", vm.PUSH2}, // odd digit count rounds up
		{"ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff", vm.PUSH32},
	} {
		instrs, err := DecodeListing([]byte(`{".code":[{"name":"PUSH","value":"`+tc.value+`"}]}`), "")
		require.NoError(t, err)
		assert.Equal(t, tc.op, instrs[0].Op, "value %s", tc.value)
	}

	_, err := DecodeListing([]byte(`{".code":[{"name":"PUSH","value":"00ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"}]}`), "")
	require.Error(t, err)
}

func TestDecodeListingUnknownMnemonic(t *testing.T) {
	_, err := DecodeListing([]byte(`{".code":[{"name":"FROBNICATE"}]}`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FROBNICATE")

	_, err = DecodeListing([]byte(`{"other": []}`), "")
	require.Error(t, err)
}
