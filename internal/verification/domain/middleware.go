package domain

import (
	"context"
	"log/slog"
	"time"
)

// VerificationService is the full service surface, implemented by Service and
// the logging middleware.
type VerificationService interface {
	Start(ctx context.Context, userID, username, wallet string) (*StartResult, error)
	Confirm(ctx context.Context, userID string) (*ConfirmResult, error)
	VerifyNetwork(ctx context.Context, userID, network string) (*NetworkResult, error)
	Status(ctx context.Context, userID string) (*Status, error)
	Reset(ctx context.Context, userID string) error
	Config() []NetworkSummary
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(VerificationService) VerificationService {
	return func(next VerificationService) VerificationService {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   VerificationService
	logger *slog.Logger
}

func (m *loggingMiddleware) Start(ctx context.Context, userID, username, wallet string) (*StartResult, error) {
	start := time.Now()
	result, err := m.next.Start(ctx, userID, username, wallet)
	m.logger.Info("Start",
		"user_id", userID,
		"wallet", wallet,
		"resumed", result != nil && result.Resumed,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Confirm(ctx context.Context, userID string) (*ConfirmResult, error) {
	start := time.Now()
	result, err := m.next.Confirm(ctx, userID)
	attrs := []any{
		"user_id", userID,
		"duration", time.Since(start),
		"error", err,
	}
	if result != nil {
		attrs = append(attrs,
			"verified", result.Verified,
			"transfer_found", result.TransferFound,
		)
		if result.Ownership != nil {
			attrs = append(attrs, "method", result.Ownership.Method)
		}
	}
	m.logger.Info("Confirm", attrs...)
	return result, err
}

func (m *loggingMiddleware) VerifyNetwork(ctx context.Context, userID, network string) (*NetworkResult, error) {
	start := time.Now()
	result, err := m.next.VerifyNetwork(ctx, userID, network)
	m.logger.Info("VerifyNetwork",
		"user_id", userID,
		"network", network,
		"verified", result != nil && result.Verified,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Status(ctx context.Context, userID string) (*Status, error) {
	start := time.Now()
	result, err := m.next.Status(ctx, userID)
	m.logger.Debug("Status",
		"user_id", userID,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Reset(ctx context.Context, userID string) error {
	start := time.Now()
	err := m.next.Reset(ctx, userID)
	m.logger.Info("Reset",
		"user_id", userID,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) Config() []NetworkSummary {
	return m.next.Config()
}
