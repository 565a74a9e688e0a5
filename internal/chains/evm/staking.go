package evm

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/holdergate/internal/chains"
)

// Function selectors for the staking contract reads.
var (
	selectorBalanceOf  = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selectorDepositsOf = crypto.Keccak256([]byte("depositsOf(address)"))[:4]
)

const wordSize = 32

// StakingReader reads staked token balances from staking contracts via raw
// eth_call. Responses from arbitrary contracts are untrusted: malformed or
// truncated payloads decode to zero and empty, never to an error.
type StakingReader struct {
	client chains.Client
	logger *slog.Logger
}

// NewStakingReader creates a staking reader
func NewStakingReader(client chains.Client, logger *slog.Logger) *StakingReader {
	return &StakingReader{client: client, logger: logger}
}

// HasCode reports whether the address has deployed bytecode. Contracts that
// were configured but never deployed on this network return false.
func (r *StakingReader) HasCode(ctx context.Context, contract string) (bool, error) {
	code, err := r.client.CodeAt(ctx, contract)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// StakedBalance returns balanceOf(wallet) on the staking contract.
func (r *StakingReader) StakedBalance(ctx context.Context, contract, wallet string) (int, error) {
	out, err := r.client.Call(ctx, contract, callData(selectorBalanceOf, wallet))
	if err != nil {
		return 0, err
	}
	return decodeUint(out), nil
}

// DepositedTokenIDs returns depositsOf(wallet), the token ids the wallet has
// staked, as decimal strings.
func (r *StakingReader) DepositedTokenIDs(ctx context.Context, contract, wallet string) ([]string, error) {
	out, err := r.client.Call(ctx, contract, callData(selectorDepositsOf, wallet))
	if err != nil {
		return nil, err
	}
	return decodeUintArray(out), nil
}

// callData builds selector + left-padded address argument.
func callData(selector []byte, wallet string) []byte {
	data := make([]byte, 0, 4+wordSize)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(wallet).Bytes(), wordSize)...)
	return data
}

// decodeUint decodes a single big-endian uint256 word. Short payloads
// decode to zero.
func decodeUint(data []byte) int {
	if len(data) < wordSize {
		return 0
	}
	n := new(big.Int).SetBytes(data[:wordSize])
	if !n.IsInt64() {
		return 0
	}
	return int(n.Int64())
}

// decodeUintArray decodes a dynamic uint256[] return value: a word holding
// the offset to the array, a length word, then the elements. Anything
// malformed or truncated decodes to nil.
func decodeUintArray(data []byte) []string {
	if len(data) < 2*wordSize {
		return nil
	}
	// Bounds are checked without arithmetic on the untrusted words: adding or
	// multiplying first lets oversized values wrap around int64 and slip past
	// the comparison.
	offset := new(big.Int).SetBytes(data[:wordSize])
	if !offset.IsInt64() || offset.Int64() > int64(len(data)-wordSize) {
		return nil
	}
	off := int(offset.Int64())

	length := new(big.Int).SetBytes(data[off : off+wordSize])
	if !length.IsInt64() {
		return nil
	}
	n := int(length.Int64())
	if n > (len(data)-off-wordSize)/wordSize {
		return nil
	}

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		start := off + wordSize + i*wordSize
		ids = append(ids, new(big.Int).SetBytes(data[start:start+wordSize]).String())
	}
	return ids
}
