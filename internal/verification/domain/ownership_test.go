package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pendergraft/holdergate/internal/config"
	"github.com/pendergraft/holdergate/internal/holdings"
)

const (
	wallet     = "0x1111111111111111111111111111111111111111"
	collection = "0xCCcccCCCcccCCCcccCCCcccCCCcccCCCcccCCCcc"
	staker     = "0x3333333333333333333333333333333333333333"
)

type fakeLookup struct {
	tokens []holdings.Token
	err    error
	calls  int
}

func (f *fakeLookup) OwnedTokens(ctx context.Context, network, wallet, contract string) ([]holdings.Token, error) {
	f.calls++
	return f.tokens, f.err
}

type fakeStaking struct {
	code     map[string]bool
	balances map[string]int
	deposits map[string][]string
	codeErr  error
	balErr   error
	calls    int
}

func (f *fakeStaking) HasCode(ctx context.Context, contract string) (bool, error) {
	f.calls++
	if f.codeErr != nil {
		return false, f.codeErr
	}
	return f.code[contract], nil
}

func (f *fakeStaking) StakedBalance(ctx context.Context, contract, wallet string) (int, error) {
	if f.balErr != nil {
		return 0, f.balErr
	}
	return f.balances[contract], nil
}

func (f *fakeStaking) DepositedTokenIDs(ctx context.Context, contract, wallet string) ([]string, error) {
	return f.deposits[contract], nil
}

func verifierLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNetwork() config.NetworkConfig {
	return config.NetworkConfig{
		Name:             "ethereum",
		Primary:          true,
		Collection:       collection,
		CollectionName:   "Holders Club",
		MinRequired:      1,
		StakingContracts: []string{staker},
	}
}

func ownedToken(id string) holdings.Token {
	return holdings.Token{Contract: collection, TokenID: id}
}

func TestVerifyOwnershipDirect(t *testing.T) {
	lookup := &fakeLookup{tokens: []holdings.Token{ownedToken("17"), ownedToken("42")}}
	v := NewVerifier(testNetwork(), lookup, nil, verifierLogger())

	r := v.VerifyOwnership(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, MethodDirectOwnership, r.Method)
	assert.Equal(t, 2, r.OwnedCount)
	assert.Equal(t, "Holders Club", r.Collection)
}

func TestVerifyOwnershipFiltersForeignContracts(t *testing.T) {
	// The API is asked to filter but responses are re-checked locally,
	// case-insensitively.
	lookup := &fakeLookup{tokens: []holdings.Token{
		{Contract: "0xcccccccccccccccccccccccccccccccccccccccc", TokenID: "17"},
		{Contract: "0xdddddddddddddddddddddddddddddddddddddddd", TokenID: "1"},
	}}
	v := NewVerifier(testNetwork(), lookup, nil, verifierLogger())

	r := v.VerifyOwnership(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, 1, r.OwnedCount)
}

func TestVerifyOwnershipZeroTokensReportsCollection(t *testing.T) {
	lookup := &fakeLookup{}
	v := NewVerifier(testNetwork(), lookup, nil, verifierLogger())

	r := v.VerifyOwnership(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodDirectOwnership, r.Method)
	assert.Equal(t, 0, r.OwnedCount)
	assert.Equal(t, "Holders Club", r.Collection)
}

func TestVerifyOwnershipLookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("upstream down")}
	v := NewVerifier(testNetwork(), lookup, nil, verifierLogger())

	r := v.VerifyOwnership(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodError, r.Method)
	assert.Contains(t, r.Err, "upstream down")
}

func TestStakingFallbackVerifies(t *testing.T) {
	lookup := &fakeLookup{} // zero direct holdings
	staking := &fakeStaking{
		code:     map[string]bool{staker: true},
		balances: map[string]int{staker: 2},
		deposits: map[string][]string{staker: {"17", "42"}},
	}
	v := NewVerifier(testNetwork(), lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, MethodStaked, r.Method)
	assert.Equal(t, 2, r.StakedCount)
	assert.Equal(t, []string{"17", "42"}, r.StakedTokenIDs)
	assert.Equal(t, 0, r.OwnedCount)
}

func TestStakingNotConsultedWhenDirectSucceeds(t *testing.T) {
	lookup := &fakeLookup{tokens: []holdings.Token{ownedToken("17")}}
	staking := &fakeStaking{code: map[string]bool{staker: true}, balances: map[string]int{staker: 5}}
	v := NewVerifier(testNetwork(), lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, MethodDirectOwnership, r.Method)
	assert.Equal(t, 0, staking.calls)
}

func TestStakingInsufficient(t *testing.T) {
	net := testNetwork()
	net.MinRequired = 3
	lookup := &fakeLookup{}
	staking := &fakeStaking{
		code:     map[string]bool{staker: true},
		balances: map[string]int{staker: 2},
		deposits: map[string][]string{staker: {"17", "42"}},
	}
	v := NewVerifier(net, lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodInsufficientStaked, r.Method)
	assert.Equal(t, 2, r.StakedCount)
}

func TestBothFailed(t *testing.T) {
	lookup := &fakeLookup{}
	staking := &fakeStaking{code: map[string]bool{staker: true}}
	v := NewVerifier(testNetwork(), lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodBothFailed, r.Method)
}

func TestStakingSkipsUndeployedContracts(t *testing.T) {
	net := testNetwork()
	net.StakingContracts = []string{staker, "0x4444444444444444444444444444444444444444"}
	lookup := &fakeLookup{}
	staking := &fakeStaking{
		code:     map[string]bool{staker: true}, // second contract has no code
		balances: map[string]int{staker: 1, "0x4444444444444444444444444444444444444444": 99},
		deposits: map[string][]string{staker: {"7"}},
	}
	v := NewVerifier(net, lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, 1, r.StakedCount)
	assert.Equal(t, []string{"7"}, r.StakedTokenIDs)
}

func TestStakingRescuesLookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("upstream down")}
	staking := &fakeStaking{
		code:     map[string]bool{staker: true},
		balances: map[string]int{staker: 1},
		deposits: map[string][]string{staker: {"17"}},
	}
	v := NewVerifier(testNetwork(), lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.True(t, r.Verified)
	assert.Equal(t, MethodStaked, r.Method)
}

func TestLookupErrorWithNoStakeIsError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("upstream down")}
	staking := &fakeStaking{code: map[string]bool{staker: true}}
	v := NewVerifier(testNetwork(), lookup, staking, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodError, r.Method)
	assert.Contains(t, r.Err, "upstream down")
}

func TestNoStakingConfiguredReturnsDirectResult(t *testing.T) {
	net := testNetwork()
	net.StakingContracts = nil
	lookup := &fakeLookup{}
	v := NewVerifier(net, lookup, nil, verifierLogger())

	r := v.VerifyOwnershipWithStaking(context.Background(), wallet)
	assert.False(t, r.Verified)
	assert.Equal(t, MethodDirectOwnership, r.Method)
}
