package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

// PebbleStore keeps the ledger in pebble with secondary keys for chain lookups:
//
//	o/<id>                      order json
//	c/<based_on>/<id>           consumer edge
//	x/<exchange>/<external id>  external id superseded by a cancel record
//	e/<exchange>/<external id>  placement row id
type PebbleStore struct {
	db *pebble.DB
	// serializes id allocation
	mu sync.Mutex
}

// NewPebbleStore opens the ledger database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open ledger pebble db")
	}
	return &PebbleStore{db: db}, nil
}

func orderKey(id uint64) []byte { return []byte(fmt.Sprintf("o/%020d", id)) }
func consumerPrefix(id uint64) []byte {
	return []byte(fmt.Sprintf("c/%020d/", id))
}
func consumerKey(basedOn, id uint64) []byte {
	return []byte(fmt.Sprintf("c/%020d/%020d", basedOn, id))
}
func canceledKey(exchange, externalID string) []byte {
	return []byte(fmt.Sprintf("x/%s/%s", exchange, externalID))
}
func externalKey(exchange, externalID string) []byte {
	return []byte(fmt.Sprintf("e/%s/%s", exchange, externalID))
}

// upperBound smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}

// AppendOrder assigns the next id to order and writes it with its index keys in one batch.
func (s *PebbleStore) AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err, "append order")
	}
	if err := validateOrder(order); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, err := s.lastID()
	if err != nil {
		return 0, err
	}
	order.ID = last + 1

	if order.BasedOnOrderID != nil {
		parent, err := s.get(*order.BasedOnOrderID)
		if err != nil {
			return 0, err
		}
		if err := validateBasis(order, parent, order.ID); err != nil {
			return 0, err
		}
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return 0, errors.Wrap(err, "marshal ledger order")
	}

	idValue := make([]byte, 8)
	binary.BigEndian.PutUint64(idValue, order.ID)

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(orderKey(order.ID), payload, nil); err != nil {
		return 0, unavailable(err, "stage order")
	}
	if order.BasedOnOrderID != nil {
		if err := batch.Set(consumerKey(*order.BasedOnOrderID, order.ID), nil, nil); err != nil {
			return 0, unavailable(err, "stage consumer edge")
		}
	}
	if order.CancelsExternalID != nil {
		if err := batch.Set(canceledKey(order.Exchange, *order.CancelsExternalID), idValue, nil); err != nil {
			return 0, unavailable(err, "stage cancel marker")
		}
	}
	if order.ExternalOrderID != nil {
		if err := batch.Set(externalKey(order.Exchange, *order.ExternalOrderID), idValue, nil); err != nil {
			return 0, unavailable(err, "stage external id")
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, unavailable(err, "commit order")
	}

	return order.ID, nil
}

// FindLatestUnconsumed returns the newest live order of side for pair on exchange,
// nil when it is already consumed or none exists.
func (s *PebbleStore) FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find latest unconsumed")
	}

	prefix := []byte("o/")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, unavailable(err, "open order iterator")
	}
	defer iter.Close()

	for valid := iter.Last(); valid; valid = iter.Prev() {
		var o domain.LedgerOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, errors.Wrapf(err, "decode ledger record %s", iter.Key())
		}
		if o.Pair != pair || o.Exchange != exchange || o.Side != side || o.IsCancel() {
			continue
		}

		if o.ExternalOrderID != nil {
			canceled, err := s.has(canceledKey(o.Exchange, *o.ExternalOrderID))
			if err != nil {
				return nil, err
			}
			if canceled {
				continue
			}
		}

		consumed, err := s.hasPrefix(consumerPrefix(o.ID))
		if err != nil {
			return nil, err
		}
		if consumed {
			return nil, nil
		}

		return &o, nil
	}

	if err := iter.Error(); err != nil {
		return nil, unavailable(err, "scan orders")
	}

	return nil, nil
}

// FindConsumersOf returns the orders based on id.
func (s *PebbleStore) FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find consumers")
	}

	prefix := consumerPrefix(id)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, unavailable(err, "open consumer iterator")
	}
	defer iter.Close()

	ids := make([]uint64, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		consumer, err := strconv.ParseUint(string(iter.Key()[len(prefix):]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "decode consumer key %s", iter.Key())
		}
		ids = append(ids, consumer)
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable(err, "scan consumers")
	}

	out := make([]domain.LedgerOrder, 0, len(ids))
	for _, cid := range ids {
		o, err := s.get(cid)
		if err != nil {
			return nil, err
		}
		if o != nil {
			out = append(out, *o)
		}
	}

	return out, nil
}

// FindByExternalID returns the placement row of an exchange order, nil if unknown.
func (s *PebbleStore) FindByExternalID(ctx context.Context, exchange, externalID string) (*domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "find by external id")
	}

	val, closer, err := s.db.Get(externalKey(exchange, externalID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "get external id")
	}
	id := binary.BigEndian.Uint64(val)
	closer.Close()

	return s.get(id)
}

// After returns up to limit orders with ids greater than id, oldest first. limit <= 0 means all.
func (s *PebbleStore) After(ctx context.Context, id uint64, limit int) ([]domain.LedgerOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "list orders")
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: orderKey(id + 1), UpperBound: upperBound([]byte("o/"))})
	if err != nil {
		return nil, unavailable(err, "open order iterator")
	}
	defer iter.Close()

	out := make([]domain.LedgerOrder, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		var o domain.LedgerOrder
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, errors.Wrapf(err, "decode ledger record %s", iter.Key())
		}
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable(err, "scan orders")
	}

	return out, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) get(id uint64) (*domain.LedgerOrder, error) {
	val, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "get order")
	}
	defer closer.Close()

	var o domain.LedgerOrder
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, errors.Wrapf(err, "decode ledger order #%d", id)
	}
	return &o, nil
}

func (s *PebbleStore) lastID() (uint64, error) {
	prefix := []byte("o/")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, unavailable(err, "open order iterator")
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, nil
	}

	id, err := strconv.ParseUint(string(iter.Key()[len(prefix):]), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "decode order key %s", iter.Key())
	}
	return id, nil
}

func (s *PebbleStore) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, unavailable(err, "get key")
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStore) hasPrefix(prefix []byte) (bool, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return false, unavailable(err, "open prefix iterator")
	}
	defer iter.Close()

	return iter.First(), nil
}
