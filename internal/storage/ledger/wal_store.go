package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

const (
	walSegmentLimit = 1000
	// the ledger is the chain history, segments must never rotate out
	walMaxSegments = 1 << 20

	orderKeyPrefix = "ledger_order_"
)

// WALStore persists ledger orders in a WAL and serves queries from an in-memory index.
type WALStore struct {
	wal *gowal.Wal
	ix  *index
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed ledger and replays its history.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: walSegmentLimit,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init ledger WAL")
	}

	ix := newIndex()
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, orderKeyPrefix) {
			continue
		}

		var order domain.LedgerOrder
		if err := json.Unmarshal(msg.Value, &order); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode ledger record %s", msg.Key)
		}
		ix.add(order)
	}

	return &WALStore{wal: wal, ix: ix}, nil
}

// AppendOrder assigns the next id to order and writes it to the WAL.
func (s *WALStore) AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error) {
	if s == nil || s.wal == nil {
		return 0, errors.New("ledger store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err, "append order")
	}
	if err := validateOrder(order); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.ID = s.ix.lastID() + 1
	if order.BasedOnOrderID != nil {
		if err := validateBasis(order, s.ix.get(*order.BasedOnOrderID), order.ID); err != nil {
			return 0, err
		}
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return 0, errors.Wrap(err, "marshal ledger order")
	}

	key := fmt.Sprintf("%s%d", orderKeyPrefix, order.ID)
	if err := s.wal.Write(s.wal.CurrentIndex()+1, key, payload); err != nil {
		return 0, unavailable(err, "write ledger order")
	}
	s.ix.add(order)

	return order.ID, nil
}

// FindLatestUnconsumed returns the newest live order of side for pair on exchange,
// nil when it is already consumed or none exists.
func (s *WALStore) FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find latest unconsumed")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ix.latestUnconsumed(pair, exchange, side), nil
}

// FindConsumersOf returns the orders based on id.
func (s *WALStore) FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find consumers")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ix.consumersOf(id), nil
}

// FindByExternalID returns the placement row of an exchange order, nil if unknown.
func (s *WALStore) FindByExternalID(ctx context.Context, exchange, externalID string) (*domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find by external id")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ix.byExternal(exchange, externalID), nil
}

// After returns up to limit orders with ids greater than id, oldest first. limit <= 0 means all.
func (s *WALStore) After(ctx context.Context, id uint64, limit int) ([]domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "list orders")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.ix.after(id, limit), nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("ledger store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
