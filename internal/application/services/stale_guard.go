package services

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/treasury-sync/internal/domain/entities"
	"github.com/bimakw/treasury-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/treasury-sync/internal/infrastructure/metrics"
)

// Liveness is the outcome of an eth_getCode check
type Liveness int

const (
	// LivenessUnknown means the check failed; never treated as gone
	LivenessUnknown Liveness = iota
	// LivenessLive means the address has deployed code
	LivenessLive
	// LivenessGone means the address returned empty code
	LivenessGone
)

func (l Liveness) String() string {
	switch l {
	case LivenessLive:
		return "live"
	case LivenessGone:
		return "gone"
	}
	return "unknown"
}

// LivenessCheck is the liveness of one treasury
type LivenessCheck struct {
	TreasuryID string
	Address    string
	State      Liveness
	Err        error
}

// Guard abort reasons
const (
	GuardNoLiveCheck = "no_live_check"
	GuardAllGone     = "all_gone"
)

// GuardDecision is the candidate list to submit to the reconciler
type GuardDecision struct {
	Candidates []string
	Live       int
	Gone       int
	Unknown    int
	// AbortReason is set when the guard emptied the candidate list
	AbortReason string
}

// StaleGuard checks treasury liveness and decides which treasuries may be
// submitted for deletion
type StaleGuard struct {
	code    ethereum.CodeReader
	workers int
	logger  *zap.Logger
}

// NewStaleGuard creates a new stale guard
func NewStaleGuard(code ethereum.CodeReader, workers int, logger *zap.Logger) *StaleGuard {
	if workers <= 0 {
		workers = 1
	}
	return &StaleGuard{
		code:    code,
		workers: workers,
		logger:  logger,
	}
}

// Check runs eth_getCode for every treasury with bounded concurrency.
// Results keep the input order.
func (g *StaleGuard) Check(ctx context.Context, treasuries []entities.Treasury) []LivenessCheck {
	checks := make([]LivenessCheck, len(treasuries))
	var mu sync.Mutex

	var eg errgroup.Group
	eg.SetLimit(g.workers)

	for i, t := range treasuries {
		i, t := i, t
		eg.Go(func() error {
			check := LivenessCheck{TreasuryID: t.ID, Address: t.Address}

			code, err := g.code.CodeAt(ctx, common.HexToAddress(t.Address))
			switch {
			case err != nil:
				check.State = LivenessUnknown
				check.Err = err
				g.logger.Warn("Liveness check failed",
					zap.String("treasury_id", t.ID),
					zap.String("address", t.Address),
					zap.Error(err),
				)
			case len(code) == 0:
				check.State = LivenessGone
			default:
				check.State = LivenessLive
			}

			mu.Lock()
			checks[i] = check
			mu.Unlock()
			return nil
		})
	}

	_ = eg.Wait()
	return checks
}

// Decide applies the mass-deletion guard. It submits nothing when no check
// returned live code, which includes every successfully checked treasury
// being gone. An owner that migrated every treasury away therefore has to
// be cleaned up by hand.
func (g *StaleGuard) Decide(checks []LivenessCheck) GuardDecision {
	decision := GuardDecision{Candidates: []string{}}
	var gone []string

	for _, c := range checks {
		switch c.State {
		case LivenessLive:
			decision.Live++
		case LivenessGone:
			decision.Gone++
			gone = append(gone, c.TreasuryID)
		default:
			decision.Unknown++
		}
	}

	switch {
	case len(checks) == 0:
		return decision
	case decision.Live == 0 && decision.Gone == 0:
		decision.AbortReason = GuardNoLiveCheck
	case decision.Live == 0:
		decision.AbortReason = GuardAllGone
	default:
		decision.Candidates = gone
		return decision
	}

	metrics.GuardAbortsTotal.WithLabelValues(decision.AbortReason).Inc()
	g.logger.Warn("Mass-deletion guard emptied the candidate list",
		zap.String("reason", decision.AbortReason),
		zap.Int("gone", decision.Gone),
		zap.Int("unknown", decision.Unknown),
	)
	return decision
}
