package domain

import (
	"context"
	"log/slog"

	"github.com/pendergraft/holdergate/internal/config"
	"github.com/pendergraft/holdergate/internal/holdings"
	"github.com/pendergraft/holdergate/internal/validation"
)

// HoldingsLookup is the holdings API surface the verifier needs.
type HoldingsLookup interface {
	OwnedTokens(ctx context.Context, network, wallet, contract string) ([]holdings.Token, error)
}

// StakingContracts reads staked balances from on-chain staking contracts.
type StakingContracts interface {
	HasCode(ctx context.Context, contract string) (bool, error)
	StakedBalance(ctx context.Context, contract, wallet string) (int, error)
	DepositedTokenIDs(ctx context.Context, contract, wallet string) ([]string, error)
}

// Verifier checks NFT ownership for one network. The staking reader is nil on
// networks without a staking fallback.
type Verifier struct {
	network  config.NetworkConfig
	holdings HoldingsLookup
	staking  StakingContracts
	logger   *slog.Logger
}

// NewVerifier creates an ownership verifier for one network
func NewVerifier(network config.NetworkConfig, lookup HoldingsLookup, staking StakingContracts, logger *slog.Logger) *Verifier {
	return &Verifier{
		network:  network,
		holdings: lookup,
		staking:  staking,
		logger:   logger,
	}
}

// collectionLabel is the name reported in results, falling back to the
// contract address when no display name is configured.
func (v *Verifier) collectionLabel() string {
	if v.network.CollectionName != "" {
		return v.network.CollectionName
	}
	return v.network.Collection
}

// VerifyOwnership checks direct wallet holdings against the network's
// collection and threshold.
func (v *Verifier) VerifyOwnership(ctx context.Context, wallet string) OwnershipResult {
	tokens, err := v.holdings.OwnedTokens(ctx, v.network.Name, wallet, v.network.Collection)
	if err != nil {
		v.logger.Error("holdings lookup failed", "network", v.network.Name, "wallet", wallet, "error", err)
		return OwnershipResult{
			Method:     MethodError,
			Collection: v.collectionLabel(),
			Err:        err.Error(),
		}
	}

	owned := 0
	for _, tok := range tokens {
		// The API is asked to filter by contract but is not trusted to.
		if v.network.Collection != "" && !validation.SameAddress(tok.Contract, v.network.Collection) {
			continue
		}
		owned++
	}

	return OwnershipResult{
		Verified:   owned >= v.network.MinRequired,
		Method:     MethodDirectOwnership,
		OwnedCount: owned,
		Collection: v.collectionLabel(),
	}
}

// VerifyOwnershipWithStaking checks direct holdings first, then falls back to
// the configured staking contracts. Wallets that moved their tokens into a
// staking contract own zero directly but still count as holders.
func (v *Verifier) VerifyOwnershipWithStaking(ctx context.Context, wallet string) OwnershipResult {
	direct := v.VerifyOwnership(ctx, wallet)
	if direct.Verified {
		return direct
	}
	if v.staking == nil || len(v.network.StakingContracts) == 0 {
		return direct
	}
	if direct.Method == MethodError {
		// A dead holdings API doesn't prove zero direct holdings; the staking
		// check alone can still verify.
		v.logger.Warn("direct lookup failed, trying staking fallback", "network", v.network.Name, "wallet", wallet)
	}

	totalStaked := 0
	var tokenIDs []string
	for _, contract := range v.network.StakingContracts {
		deployed, err := v.staking.HasCode(ctx, contract)
		if err != nil {
			v.logger.Error("staking contract code check failed", "contract", contract, "error", err)
			continue
		}
		if !deployed {
			continue
		}

		n, err := v.staking.StakedBalance(ctx, contract, wallet)
		if err != nil {
			v.logger.Error("staked balance read failed", "contract", contract, "error", err)
			continue
		}
		totalStaked += n

		ids, err := v.staking.DepositedTokenIDs(ctx, contract, wallet)
		if err != nil {
			v.logger.Error("deposited token read failed", "contract", contract, "error", err)
			continue
		}
		tokenIDs = append(tokenIDs, ids...)
	}

	result := OwnershipResult{
		OwnedCount:     direct.OwnedCount,
		StakedCount:    totalStaked,
		StakedTokenIDs: tokenIDs,
		Collection:     v.collectionLabel(),
	}
	switch {
	case totalStaked >= v.network.MinRequired:
		result.Verified = true
		result.Method = MethodStaked
	case totalStaked > 0:
		result.Method = MethodInsufficientStaked
	case direct.Method == MethodError:
		result.Method = MethodError
		result.Err = direct.Err
	default:
		result.Method = MethodBothFailed
	}
	return result
}
