// Package evm provides the chain client, transaction scanner, and staking
// contract reader for EVM-compatible networks.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/pendergraft/holdergate/internal/chains"
)

// Client implements chains.Client over a JSON-RPC endpoint
type Client struct {
	rpc *rpc.Client
}

// Dial connects to an EVM JSON-RPC endpoint
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
	}
	return &Client{rpc: c}, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.rpc.Close()
}

// LatestBlockNumber returns the current head height
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := c.rpc.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return uint64(head), nil
}

// rpcTransaction is the wire shape of a transaction inside a full block.
// Requesting full transaction objects gives us the sender directly, so no
// signature recovery is needed.
type rpcTransaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Transactions []rpcTransaction `json:"transactions"`
}

// BlockTransactions returns all transactions in the given block
func (c *Client) BlockTransactions(ctx context.Context, number uint64) ([]chains.Transaction, error) {
	var block *rpcBlock
	err := c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", number, err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d not found", number)
	}

	txs := make([]chains.Transaction, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		t := chains.Transaction{
			Hash: tx.Hash.Hex(),
			From: tx.From.Hex(),
		}
		if tx.To != nil {
			t.To = tx.To.Hex()
		}
		if tx.Value != nil {
			t.Value = (*big.Int)(tx.Value).String()
		} else {
			t.Value = "0"
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// Call executes a read-only contract call against the latest block
func (c *Client) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	arg := map[string]any{
		"to":   common.HexToAddress(to),
		"data": hexutil.Bytes(data),
	}
	var result hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &result, "eth_call", arg, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", to, err)
	}
	return result, nil
}

// CodeAt returns the deployed bytecode at an address
func (c *Client) CodeAt(ctx context.Context, address string) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &code, "eth_getCode", common.HexToAddress(address), "latest"); err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", address, err)
	}
	return code, nil
}
