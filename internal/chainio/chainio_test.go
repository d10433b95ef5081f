package chainio

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/dexsentinel/dexsentinel/pkg/contractclient"
)

// fakeClient is a minimal contractclient.ContractClient test double that
// returns canned CallAt results keyed by method name.
type fakeClient struct {
	address common.Address
	results map[string][]interface{}
	errs    map[string]error
}

func (f *fakeClient) ContractAddress() common.Address { return f.address }

func (f *fakeClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return f.CallAt(context.Background(), from, nil, method, args...)
}

func (f *fakeClient) CallAt(ctx context.Context, from *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	if err, ok := f.errs[method]; ok {
		return nil, err
	}
	out, ok := f.results[method]
	if !ok {
		return nil, errors.New("fakeClient: no canned result for " + method)
	}
	return out, nil
}

func (f *fakeClient) TransactionData(ctx context.Context, txHash common.Hash) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) DecodeTransaction(data []byte) (*contractclient.DecodedTransaction, error) {
	return nil, errors.New("not implemented")
}

func TestDecimalsFallsBackTo18OnError(t *testing.T) {
	fc := &fakeClient{errs: map[string]error{"decimals": errors.New("rpc down")}}
	assert.Equal(t, 18, Decimals(context.Background(), fc))
}

func TestDecimalsReturnsCalledValue(t *testing.T) {
	fc := &fakeClient{results: map[string][]interface{}{"decimals": {uint8(6)}}}
	assert.Equal(t, 6, Decimals(context.Background(), fc))
}

func TestGetReservesParsesTuple(t *testing.T) {
	fc := &fakeClient{results: map[string][]interface{}{
		"getReserves": {big.NewInt(1000), big.NewInt(2000), uint32(123)},
	}}
	r, err := GetReserves(context.Background(), fc)
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), r.Reserve0)
	assert.Equal(t, big.NewInt(2000), r.Reserve1)
}

func TestGetSlot0ParsesTuple(t *testing.T) {
	fc := &fakeClient{results: map[string][]interface{}{
		"slot0": {new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(-100), uint16(0), uint16(0), uint16(0), uint8(0), true},
	}}
	s, err := GetSlot0(context.Background(), fc)
	assert.NoError(t, err)
	assert.Equal(t, int32(-100), s.Tick)
}

func TestABIsParseAllExpectedMethods(t *testing.T) {
	_, ok := ERC20ABI().Methods["decimals"]
	assert.True(t, ok)
	_, ok = ERC20ABI().Methods["totalSupply"]
	assert.True(t, ok)

	_, ok = V2PairABI().Methods["getReserves"]
	assert.True(t, ok)
	_, ok = V2PairABI().Events["Swap"]
	assert.True(t, ok)
	_, ok = V2PairABI().Events["Mint"]
	assert.True(t, ok)

	_, ok = V2FactoryABI().Events["PairCreated"]
	assert.True(t, ok)

	_, ok = V2RouterABI().Methods["getAmountsOut"]
	assert.True(t, ok)

	_, ok = V3PoolABI().Methods["slot0"]
	assert.True(t, ok)
	_, ok = V3PoolABI().Events["Swap"]
	assert.True(t, ok)

	_, ok = V3FactoryABI().Methods["getPool"]
	assert.True(t, ok)
	_, ok = V3FactoryABI().Events["PoolCreated"]
	assert.True(t, ok)

	_, ok = V3QuoterABI().Methods["quoteExactInputSingle"]
	assert.True(t, ok)
}
