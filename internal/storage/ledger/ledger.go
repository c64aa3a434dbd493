// Package ledger stores the append-only order ledger used for chaining orders across cycles.
package ledger

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

const (
	BackendWAL    = "wal"
	BackendPebble = "pebble"

	DefaultDir = "./wal/ledger"
)

// Store order ledger. Rows are never updated or deleted once appended.
type Store interface {
	AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error)
	FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error)
	FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error)
	FindByExternalID(ctx context.Context, exchange, externalID string) (*domain.LedgerOrder, error)
	After(ctx context.Context, id uint64, limit int) ([]domain.LedgerOrder, error)
	Close() error
}

// Open opens the ledger backend under dir.
func Open(backend, dir string) (Store, error) {
	if dir == "" {
		dir = DefaultDir
	}

	switch backend {
	case "", BackendWAL:
		return NewWALStore(dir)
	case BackendPebble:
		return NewPebbleStore(dir)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

func unavailable(err error, op string) error {
	return errors.Wrapf(domain.ErrLedgerUnavailable, "%s: %v", op, err)
}

func validateOrder(order domain.LedgerOrder) error {
	if order.Exchange == "" {
		return errors.New("ledger order exchange is required")
	}
	if order.Pair.From == "" || order.Pair.To == "" {
		return errors.New("ledger order pair is required")
	}
	if !order.Side.IsValid() {
		return fmt.Errorf("ledger order side %q is invalid", order.Side)
	}
	if order.ExternalOrderID != nil && order.CancelsExternalID != nil {
		return errors.New("ledger order cannot be both a placement and a cancel record")
	}

	return nil
}

// validateBasis checks that parent may be referenced by a new order with the given id.
func validateBasis(order domain.LedgerOrder, parent *domain.LedgerOrder, newID uint64) error {
	if parent == nil {
		return errors.Wrapf(domain.ErrInvalidChain, "order #%d does not exist", *order.BasedOnOrderID)
	}
	if parent.ID >= newID {
		return errors.Wrapf(domain.ErrInvalidChain, "order #%d is not earlier than #%d", parent.ID, newID)
	}
	if parent.Pair != order.Pair || parent.Exchange != order.Exchange {
		return errors.Wrapf(domain.ErrInvalidChain, "order #%d belongs to %s on %s", parent.ID, parent.Pair, parent.Exchange)
	}
	if parent.IsCancel() {
		return errors.Wrapf(domain.ErrInvalidChain, "order #%d is a cancel record", parent.ID)
	}

	return nil
}
