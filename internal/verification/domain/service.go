package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pendergraft/holdergate/internal/config"
	"github.com/pendergraft/holdergate/internal/limits"
	"github.com/pendergraft/holdergate/internal/observability/metrics"
	"github.com/pendergraft/holdergate/internal/roles"
	"github.com/pendergraft/holdergate/internal/storage"
	"github.com/pendergraft/holdergate/internal/validation"
)

// Common errors returned by the verification service.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrPrimaryRequired   = errors.New("primary network verification required")
	ErrChallengeRequired = errors.New("no active challenge")
)

// RateLimitError reports a denied rate-limit or penalty check, carrying when
// the caller may retry.
type RateLimitError struct {
	Action  limits.Action
	RetryAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s until %s", e.Action, e.RetryAt.UTC().Format(time.RFC3339))
}

// UserStore defines the storage operations needed by the verification domain.
type UserStore interface {
	SaveUser(ctx context.Context, userID, username string) error
	GetUser(ctx context.Context, userID string) (*storage.User, error)
	DeleteUser(ctx context.Context, userID string) error
	UpsertVerification(ctx context.Context, userID string, v storage.NetworkVerification) error
}

// ChallengeManager defines the challenge operations needed by the service.
type ChallengeManager interface {
	CreateOrResume(ctx context.Context, userID, claimedWallet string) (*storage.Challenge, bool, error)
	FindByUser(ctx context.Context, userID string) (*storage.Challenge, error)
	MarkVerified(ctx context.Context, userID string, result *storage.VerificationResult) (*storage.Challenge, error)
	RemoveByUser(ctx context.Context, userID string) error
}

// TransferScanner confirms challenge payments on the primary network.
type TransferScanner interface {
	ConfirmTransfer(ctx context.Context, from, to, exactBaseUnits string) bool
}

// OwnershipVerifier checks NFT ownership for one network.
type OwnershipVerifier interface {
	VerifyOwnership(ctx context.Context, wallet string) OwnershipResult
	VerifyOwnershipWithStaking(ctx context.Context, wallet string) OwnershipResult
}

// Service orchestrates the verification flow across networks. All state lives
// in the stores and the limiter; the service itself only holds configuration
// and per-user locks.
type Service struct {
	networks   map[string]config.NetworkConfig
	primary    config.NetworkConfig
	users      UserStore
	challenges ChallengeManager
	scanner    TransferScanner
	verifiers  map[string]OwnershipVerifier
	limiter    *limits.Limiter
	grantor    roles.Grantor
	maxFailed  int

	lockMu    sync.Mutex
	userLocks map[string]*userLock

	failMu     sync.Mutex
	failCounts map[string]int
}

// NewService creates the verification orchestrator.
func NewService(
	networks []config.NetworkConfig,
	users UserStore,
	challenges ChallengeManager,
	scanner TransferScanner,
	verifiers map[string]OwnershipVerifier,
	limiter *limits.Limiter,
	grantor roles.Grantor,
	maxFailedSubmits int,
) (*Service, error) {
	s := &Service{
		networks:   make(map[string]config.NetworkConfig, len(networks)),
		users:      users,
		challenges: challenges,
		scanner:    scanner,
		verifiers:  verifiers,
		limiter:    limiter,
		grantor:    grantor,
		maxFailed:  maxFailedSubmits,
		userLocks:  make(map[string]*userLock),
		failCounts: make(map[string]int),
	}
	for _, n := range networks {
		s.networks[n.Name] = n
		if n.Primary {
			s.primary = n
		}
	}
	if s.primary.Name == "" {
		return nil, fmt.Errorf("no primary network configured")
	}
	return s, nil
}

// Start validates the claim and issues or resumes the user's challenge on the
// primary network.
func (s *Service) Start(ctx context.Context, userID, username, wallet string) (*StartResult, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	if err := validation.ValidateAddress(wallet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	if d := s.limiter.CheckUser(userID, limits.ActionVerify); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionVerify, RetryAt: d.ResetAt}
	}

	if err := s.users.SaveUser(ctx, userID, username); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	ch, resumed, err := s.challenges.CreateOrResume(ctx, userID, wallet)
	if err != nil {
		return nil, fmt.Errorf("issuing challenge: %w", err)
	}
	if !resumed {
		metrics.RecordChallengeIssued()
	}

	return &StartResult{
		Network:         s.primary.Name,
		ClaimedWallet:   ch.ClaimedWallet,
		Amount:          ch.Amount,
		AmountBaseUnits: ch.AmountBaseUnits,
		BotWallet:       s.primary.BotWallet,
		Resumed:         resumed,
	}, nil
}

// Confirm scans for the challenge payment and, once found, runs the ownership
// check with staking fallback. Success marks the challenge verified, records
// the network verification, and fires the role grant; the grant fires again on
// re-verification.
func (s *Service) Confirm(ctx context.Context, userID string) (*ConfirmResult, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}

	// One confirm at a time per user: a double-submit must not scan twice or
	// race the grant.
	unlock := s.lockUser(userID)
	defer unlock()

	if penalized, until := s.limiter.IsPenalized(userID, limits.ActionSubmit); penalized {
		return nil, &RateLimitError{Action: limits.ActionSubmit, RetryAt: until}
	}
	if d := s.limiter.CheckUser(userID, limits.ActionSubmit); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionSubmit, RetryAt: d.ResetAt}
	}

	ch, err := s.challenges.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChallengeRequired
		}
		return nil, fmt.Errorf("loading challenge: %w", err)
	}

	// The scanner matches the stored base-unit string verbatim, so a
	// non-canonical form could never confirm. Reject it before burning scan
	// budget.
	if err := validation.ValidateBaseUnits(ch.AmountBaseUnits); err != nil {
		return nil, fmt.Errorf("challenge record for user %s: %w", userID, err)
	}

	// An already-verified challenge skips the scan; the payment was proven
	// once and the amount never changes afterwards.
	if !ch.Verified {
		if d := s.limiter.CheckGlobal(limits.ActionScan); !d.Allowed {
			return nil, &RateLimitError{Action: limits.ActionScan, RetryAt: d.ResetAt}
		}
		if !s.scanner.ConfirmTransfer(ctx, ch.ClaimedWallet, s.primary.BotWallet, ch.AmountBaseUnits) {
			s.recordFailure(userID)
			return &ConfirmResult{
				TransferFound: false,
				Retryable:     true,
				Network:       s.primary.Name,
				Message:       fmt.Sprintf("transfer of %s not found yet, send the exact amount and retry", ch.Amount),
			}, nil
		}
	}

	if d := s.limiter.CheckGlobal(limits.ActionLookup); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionLookup, RetryAt: d.ResetAt}
	}

	verifier, ok := s.verifiers[s.primary.Name]
	if !ok {
		return nil, fmt.Errorf("no verifier for network %s", s.primary.Name)
	}
	ownership := verifier.VerifyOwnershipWithStaking(ctx, ch.ClaimedWallet)
	metrics.RecordVerification(s.primary.Name, string(ownership.Method))

	if !ownership.Verified {
		s.recordFailure(userID)
		return &ConfirmResult{
			Verified:      false,
			TransferFound: true,
			Retryable:     ownership.Method == MethodError,
			Network:       s.primary.Name,
			Ownership:     &ownership,
			Message:       "ownership requirement not met",
		}, nil
	}

	s.clearFailures(userID)

	result := toStoredResult(ownership)
	if _, err := s.challenges.MarkVerified(ctx, userID, result); err != nil {
		return nil, fmt.Errorf("marking challenge verified: %w", err)
	}
	if err := s.users.UpsertVerification(ctx, userID, storage.NetworkVerification{
		Network:       s.primary.Name,
		WalletAddress: ch.ClaimedWallet,
		VerifiedAt:    time.Now().UTC(),
		Result:        *result,
	}); err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}

	granted := s.grantRole(ctx, userID, s.primary)

	return &ConfirmResult{
		Verified:      true,
		TransferFound: true,
		Network:       s.primary.Name,
		Ownership:     &ownership,
		RoleGranted:   granted,
		Message:       "wallet verified",
	}, nil
}

// VerifyNetwork verifies holdings on a secondary network, reusing the wallet
// proven on the primary network. No challenge is ever issued here.
func (s *Service) VerifyNetwork(ctx context.Context, userID, network string) (*NetworkResult, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	cfg, ok := s.networks[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	if cfg.Primary {
		return nil, fmt.Errorf("%w: use the challenge flow for %s", ErrChallengeRequired, network)
	}

	if d := s.limiter.CheckUser(userID, limits.ActionVerify); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionVerify, RetryAt: d.ResetAt}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPrimaryRequired
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	primaryRec, ok := user.Verifications[s.primary.Name]
	if !ok {
		return nil, ErrPrimaryRequired
	}
	wallet := primaryRec.WalletAddress

	if d := s.limiter.CheckGlobal(limits.ActionLookup); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionLookup, RetryAt: d.ResetAt}
	}

	verifier, ok := s.verifiers[network]
	if !ok {
		return nil, fmt.Errorf("no verifier for network %s", network)
	}
	ownership := verifier.VerifyOwnership(ctx, wallet)
	metrics.RecordVerification(network, string(ownership.Method))

	if !ownership.Verified {
		return &NetworkResult{
			Verified:  false,
			Network:   network,
			Wallet:    wallet,
			Ownership: &ownership,
		}, nil
	}

	result := toStoredResult(ownership)
	if err := s.users.UpsertVerification(ctx, userID, storage.NetworkVerification{
		Network:       network,
		WalletAddress: wallet,
		VerifiedAt:    time.Now().UTC(),
		Result:        *result,
	}); err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}

	granted := s.grantRole(ctx, userID, cfg)

	return &NetworkResult{
		Verified:    true,
		Network:     network,
		Wallet:      wallet,
		Ownership:   &ownership,
		RoleGranted: granted,
	}, nil
}

// Status returns the user's per-network verification state and any pending
// challenge.
func (s *Service) Status(ctx context.Context, userID string) (*Status, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}
	if d := s.limiter.CheckUser(userID, limits.ActionStatus); !d.Allowed {
		return nil, &RateLimitError{Action: limits.ActionStatus, RetryAt: d.ResetAt}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	st := &Status{
		UserID:   user.UserID,
		Username: user.Username,
		Networks: make([]StatusEntry, 0, len(user.Verifications)),
	}
	for _, v := range user.Verifications {
		st.Networks = append(st.Networks, StatusEntry{
			Network:       v.Network,
			WalletAddress: v.WalletAddress,
			VerifiedAt:    v.VerifiedAt,
			Method:        Method(v.Result.Method),
		})
	}
	sort.Slice(st.Networks, func(i, j int) bool { return st.Networks[i].Network < st.Networks[j].Network })

	ch, err := s.challenges.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading challenge: %w", err)
	}
	if ch != nil && !ch.Verified {
		st.Challenge = &PendingChallenge{
			ClaimedWallet: ch.ClaimedWallet,
			Amount:        ch.Amount,
			CreatedAt:     ch.CreatedAt,
		}
	}
	return st, nil
}

// Reset removes the user's challenge and record and revokes the roles granted
// for each verified network.
func (s *Service) Reset(ctx context.Context, userID string) error {
	if err := validation.ValidateUserID(userID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUserID, err)
	}

	unlock := s.lockUser(userID)
	defer unlock()

	user, err := s.users.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("loading user: %w", err)
	}
	if user != nil {
		for network := range user.Verifications {
			cfg, ok := s.networks[network]
			if !ok || cfg.RoleID == "" {
				continue
			}
			if err := s.grantor.Revoke(ctx, userID, cfg.RoleID); err != nil {
				// Role revocation is best effort; the record removal is not.
				continue
			}
		}
	}

	if err := s.challenges.RemoveByUser(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing challenge: %w", err)
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("removing user: %w", err)
	}
	s.clearFailures(userID)
	return nil
}

// Config summarizes the per-network verification requirements.
func (s *Service) Config() []NetworkSummary {
	summaries := make([]NetworkSummary, 0, len(s.networks))
	for _, n := range s.networks {
		summaries = append(summaries, NetworkSummary{
			Network:          n.Name,
			Primary:          n.Primary,
			ChainID:          n.ChainID,
			Collection:       n.Collection,
			CollectionName:   n.CollectionName,
			MinRequired:      n.MinRequired,
			StakingContracts: len(n.StakingContracts),
			RoleConfigured:   n.RoleID != "",
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Primary != summaries[j].Primary {
			return summaries[i].Primary
		}
		return summaries[i].Network < summaries[j].Network
	})
	return summaries
}

// grantRole fires the role grant when the network has a role configured.
// Grant failures don't fail the verification; the record is already stored.
func (s *Service) grantRole(ctx context.Context, userID string, cfg config.NetworkConfig) bool {
	if cfg.RoleID == "" {
		return false
	}
	if err := s.grantor.Grant(ctx, userID, cfg.RoleID); err != nil {
		return false
	}
	return true
}

// recordFailure counts a failed submit and applies the penalty once the user
// crosses the threshold.
func (s *Service) recordFailure(userID string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failCounts[userID]++
	if s.maxFailed > 0 && s.failCounts[userID] >= s.maxFailed {
		s.limiter.AddPenalty(userID, limits.ActionSubmit)
		s.failCounts[userID] = 0
	}
}

func (s *Service) clearFailures(userID string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	delete(s.failCounts, userID)
}

// userLock is a keyed mutex entry with a count of current holders and waiters.
type userLock struct {
	mu      sync.Mutex
	holders int
}

// lockUser serializes operations for one user. Lock entries are refcounted and
// dropped once uncontended so the map doesn't grow with every user id seen.
func (s *Service) lockUser(userID string) func() {
	s.lockMu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &userLock{}
		s.userLocks[userID] = l
	}
	l.holders++
	s.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.lockMu.Lock()
		l.holders--
		if l.holders == 0 {
			delete(s.userLocks, userID)
		}
		s.lockMu.Unlock()
	}
}

// toStoredResult converts a domain ownership result to its persisted form.
func toStoredResult(r OwnershipResult) *storage.VerificationResult {
	return &storage.VerificationResult{
		Verified:       r.Verified,
		Method:         string(r.Method),
		OwnedCount:     r.OwnedCount,
		StakedCount:    r.StakedCount,
		StakedTokenIDs: r.StakedTokenIDs,
		Collection:     r.Collection,
		Error:          r.Err,
	}
}
