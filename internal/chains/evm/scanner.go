package evm

import (
	"context"
	"log/slog"

	"github.com/pendergraft/holdergate/internal/chains"
	"github.com/pendergraft/holdergate/internal/observability/metrics"
	"github.com/pendergraft/holdergate/internal/validation"
)

// Scanner searches the trailing blocks of one network for an exact challenge
// payment.
type Scanner struct {
	client  chains.Client
	network string
	window  uint64
	logger  *slog.Logger
}

// NewScanner creates a scanner over the trailing window blocks of a network
func NewScanner(client chains.Client, network string, window uint64, logger *slog.Logger) *Scanner {
	return &Scanner{client: client, network: network, window: window, logger: logger}
}

// ConfirmTransfer reports whether a transaction from the claimed wallet to the
// bot wallet with exactly baseUnits value exists within the trailing scan
// window. Addresses match case-insensitively; the value must equal the
// base-unit string verbatim. Any RPC failure fails the scan closed: the error
// is logged and counted, and the transfer is reported as not found.
func (s *Scanner) ConfirmTransfer(ctx context.Context, from, to, baseUnits string) bool {
	head, err := s.client.LatestBlockNumber(ctx)
	if err != nil {
		s.logger.Error("head lookup failed", "network", s.network, "error", err)
		metrics.RecordRPCError(s.network)
		metrics.RecordTransferScan(s.network, "error")
		return false
	}

	stop := uint64(0)
	if head > s.window {
		stop = head - s.window
	}

	// Newest first: a fresh payment is near the head.
	for n := head; ; n-- {
		txs, err := s.client.BlockTransactions(ctx, n)
		if err != nil {
			s.logger.Error("block fetch failed", "network", s.network, "block", n, "error", err)
			metrics.RecordRPCError(s.network)
			metrics.RecordTransferScan(s.network, "error")
			return false
		}
		for _, tx := range txs {
			if validation.SameAddress(tx.From, from) && validation.SameAddress(tx.To, to) && tx.Value == baseUnits {
				s.logger.Info("challenge transfer found",
					"network", s.network,
					"block", n,
					"tx", tx.Hash,
				)
				metrics.RecordTransferScan(s.network, "found")
				return true
			}
		}
		if n == stop {
			break
		}
	}

	metrics.RecordTransferScan(s.network, "not_found")
	return false
}
