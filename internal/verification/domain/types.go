// Package domain contains the business logic for holder verification.
package domain

import "time"

// Method tags how a wallet proved (or failed to prove) ownership.
type Method string

const (
	MethodDirectOwnership    Method = "direct-ownership"
	MethodStaked             Method = "staked"
	MethodInsufficientStaked Method = "insufficient-staked"
	MethodBothFailed         Method = "both-failed"
	MethodError              Method = "error"
)

// OwnershipResult is the outcome of one ownership check. Exactly the fields
// relevant to the method are populated: OwnedCount for direct ownership,
// StakedCount and StakedTokenIDs for the staking path, Err for lookup
// failures.
type OwnershipResult struct {
	Verified       bool     `json:"verified"`
	Method         Method   `json:"method"`
	OwnedCount     int      `json:"ownedCount"`
	StakedCount    int      `json:"stakedCount,omitempty"`
	StakedTokenIDs []string `json:"stakedTokenIds,omitempty"`
	Collection     string   `json:"collection,omitempty"`
	Err            string   `json:"error,omitempty"`
}

// StartResult is returned when a challenge is issued or resumed.
type StartResult struct {
	Network         string `json:"network"`
	ClaimedWallet   string `json:"claimedWallet"`
	Amount          string `json:"challengeAmount"`
	AmountBaseUnits string `json:"challengeAmountBaseUnits"`
	BotWallet       string `json:"botWallet"`
	Resumed         bool   `json:"resumed"`
}

// ConfirmResult is the outcome of a challenge confirmation attempt.
type ConfirmResult struct {
	Verified      bool             `json:"verified"`
	TransferFound bool             `json:"transferFound"`
	Retryable     bool             `json:"retryable"`
	Network       string           `json:"network,omitempty"`
	Ownership     *OwnershipResult `json:"ownership,omitempty"`
	RoleGranted   bool             `json:"roleGranted"`
	Message       string           `json:"message"`
}

// NetworkResult is the outcome of a secondary network verification.
type NetworkResult struct {
	Verified    bool             `json:"verified"`
	Network     string           `json:"network"`
	Wallet      string           `json:"wallet"`
	Ownership   *OwnershipResult `json:"ownership,omitempty"`
	RoleGranted bool             `json:"roleGranted"`
}

// StatusEntry is one network's verification state in a status response.
type StatusEntry struct {
	Network       string    `json:"network"`
	WalletAddress string    `json:"walletAddress"`
	VerifiedAt    time.Time `json:"verifiedAt"`
	Method        Method    `json:"method"`
}

// PendingChallenge summarizes an unverified challenge in a status response.
// The amount is included so a user can re-check what to send; the base-unit
// form stays internal.
type PendingChallenge struct {
	ClaimedWallet string    `json:"claimedWallet"`
	Amount        string    `json:"challengeAmount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Status is the full verification state for one user.
type Status struct {
	UserID    string            `json:"userId"`
	Username  string            `json:"username"`
	Networks  []StatusEntry     `json:"networks"`
	Challenge *PendingChallenge `json:"pendingChallenge,omitempty"`
}

// NetworkSummary is one network's public configuration.
type NetworkSummary struct {
	Network          string `json:"network"`
	Primary          bool   `json:"primary"`
	ChainID          int64  `json:"chainId"`
	Collection       string `json:"collection,omitempty"`
	CollectionName   string `json:"collectionName,omitempty"`
	MinRequired      int    `json:"minRequired"`
	StakingContracts int    `json:"stakingContracts"`
	RoleConfigured   bool   `json:"roleConfigured"`
}
