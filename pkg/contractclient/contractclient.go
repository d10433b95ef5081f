// Package contractclient provides a thin, ABI-driven read client over
// go-ethereum's ethclient. The detector never signs or sends transactions
// (spec.md Non-goals: no trading execution), so unlike the teacher's
// Blackhole.Client, this client only exposes Call and transaction decoding.
package contractclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractClient is a read-only ABI-bound view of a single on-chain
// contract. Every safety probe and pricer in this repo talks to the chain
// exclusively through this interface, so it can be swapped for a mock in
// tests without touching business logic.
type ContractClient interface {
	ContractAddress() common.Address
	Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	CallAt(ctx context.Context, from *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error)
	TransactionData(ctx context.Context, txHash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (*DecodedTransaction, error)
}

// DecodedTransaction is a human-readable view of a decoded contract call.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Args       map[string]interface{} `json:"args"`
}

type client struct {
	eth     *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient binds abi to address over eth. eth may be nil for
// pure decode-only usage (e.g. offline transaction decoding in tests).
func NewContractClient(eth *ethclient.Client, address common.Address, contractABI abi.ABI) ContractClient {
	return &client{eth: eth, address: address, abi: contractABI}
}

func (c *client) ContractAddress() common.Address {
	return c.address
}

// Call invokes method as an eth_call against the latest block.
func (c *client) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return c.CallAt(context.Background(), from, nil, method, args...)
}

// CallAt invokes method as an eth_call pinned to blockNumber (nil means
// latest), honoring ctx for cancellation/timeout.
func (c *client) CallAt(ctx context.Context, from *common.Address, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if from != nil {
		msg.From = *from
	}

	out, err := c.eth.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	result, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return result, nil
}

// TransactionData fetches a mined transaction's calldata by hash.
func (c *client) TransactionData(ctx context.Context, txHash common.Hash) ([]byte, error) {
	tx, _, err := c.eth.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("fetch tx %s: %w", txHash, err)
	}
	return tx.Data(), nil
}

// DecodeTransaction decodes calldata using the bound ABI's method selector
// table. Returns an error if the selector is unknown to this ABI.
func (c *client) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown method selector: %w", err)
	}
	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("unpack args for %s: %w", method.Name, err)
	}
	return &DecodedTransaction{MethodName: method.Name, Args: args}, nil
}

// codeAt checks whether address carries non-empty bytecode, used by the
// bytecode-presence safety probe (spec §4.2 step 1).
func codeAt(ctx context.Context, eth *ethclient.Client, address common.Address) (bool, error) {
	code, err := eth.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("getCode %s: %w", address, err)
	}
	return len(code) > 0, nil
}

// HasCode is the exported form of codeAt, used directly by safety probes
// that only have an *ethclient.Client (no bound ABI) to check with.
func HasCode(ctx context.Context, eth *ethclient.Client, address common.Address) (bool, error) {
	return codeAt(ctx, eth, address)
}
