// Package chain links new orders to the latest unconsumed order of the opposite side.
package chain

import (
	"context"

	"github.com/vadiminshakov/spotchain/internal/domain"
	"go.uber.org/zap"
)

// Outcome how a resolution ended.
type Outcome string

const (
	// OutcomeLinked an unconsumed opposite-side order was found.
	OutcomeLinked Outcome = "linked"
	// OutcomeNone the ledger holds no live order of that side.
	OutcomeNone Outcome = "none"
	// OutcomeConsumed the candidate is already referenced by a later order.
	OutcomeConsumed Outcome = "consumed"
	// OutcomeUnavailable the ledger could not be read, market pricing is used.
	OutcomeUnavailable Outcome = "unavailable"
)

// Resolution result of a chain lookup. Link is nil unless Outcome is OutcomeLinked.
type Resolution struct {
	Link    *domain.LedgerOrder
	Outcome Outcome
}

type ledgerReader interface {
	FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error)
	FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error)
}

// Resolver looks up the order a new order should be based on.
type Resolver struct {
	ledger ledgerReader
	l      *zap.Logger
}

// NewResolver creates a Resolver over ledger.
func NewResolver(l *zap.Logger, ledger ledgerReader) *Resolver {
	return &Resolver{ledger: ledger, l: l}
}

// Resolve returns the latest live, unconsumed order of side for pair on exchange.
// Side is the side of the order to link to, i.e. the opposite of the order being created.
// A row appended moments ago may not be visible yet; a miss only means the new
// order is priced from the market, so ledger errors never fail the caller.
func (r *Resolver) Resolve(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) Resolution {
	candidate, err := r.ledger.FindLatestUnconsumed(ctx, pair, exchange, side)
	if err != nil {
		r.l.Warn("ledger lookup failed, pricing from market",
			zap.String("pair", pair.String()), zap.String("side", side.String()), zap.Error(err))
		return Resolution{Outcome: OutcomeUnavailable}
	}
	if candidate == nil {
		return Resolution{Outcome: OutcomeNone}
	}

	consumers, err := r.ledger.FindConsumersOf(ctx, candidate.ID)
	if err != nil {
		r.l.Warn("ledger consumers lookup failed, pricing from market",
			zap.String("pair", pair.String()), zap.Uint64("candidate", candidate.ID), zap.Error(err))
		return Resolution{Outcome: OutcomeUnavailable}
	}
	if len(consumers) > 0 {
		r.l.Debug("reference order already consumed",
			zap.String("pair", pair.String()), zap.Uint64("candidate", candidate.ID), zap.Uint64("consumer", consumers[0].ID))
		return Resolution{Outcome: OutcomeConsumed}
	}

	return Resolution{Link: candidate, Outcome: OutcomeLinked}
}
