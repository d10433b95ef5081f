package contractclient

import (
	"strings"
	"testing"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

func mustParseABI(t *testing.T, raw string) gethabi.ABI {
	t.Helper()
	parsed, err := gethabi.JSON(strings.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestDecodeTransaction(t *testing.T) {
	parsed := mustParseABI(t, erc20TransferABI)
	cc := NewContractClient(nil, common.HexToAddress("0x6e4141d33021b52c91c28608403db4a0ffb50ec6"), parsed)

	// transfer(address,uint256)
	data := common.Hex2Bytes("a9059cbb0000000000000000000000006e4141d33021b52c91c28608403db4a0ffb50ec600000000000000000000000000000000000000000000000000000000000f4240")

	decoded, err := cc.DecodeTransaction(data)
	assert.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, common.HexToAddress("0x6e4141d33021b52c91c28608403db4a0ffb50ec6"), decoded.Args["to"])
}

func TestDecodeTransactionUnknownSelector(t *testing.T) {
	parsed := mustParseABI(t, erc20TransferABI)
	cc := NewContractClient(nil, common.Address{}, parsed)

	_, err := cc.DecodeTransaction([]byte{0x01, 0x02, 0x03, 0x04})
	assert.Error(t, err)
}

func TestDecodeTransactionTooShort(t *testing.T) {
	parsed := mustParseABI(t, erc20TransferABI)
	cc := NewContractClient(nil, common.Address{}, parsed)

	_, err := cc.DecodeTransaction([]byte{0x01})
	assert.Error(t, err)
}

func TestContractAddress(t *testing.T) {
	addr := common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")
	cc := NewContractClient(nil, addr, mustParseABI(t, erc20TransferABI))
	assert.Equal(t, addr, cc.ContractAddress())
}
