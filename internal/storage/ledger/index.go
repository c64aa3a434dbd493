package ledger

import (
	"github.com/vadiminshakov/spotchain/internal/domain"
)

// index in-memory view of the ledger rebuilt from the WAL on open.
type index struct {
	orders    []domain.LedgerOrder
	byID      map[uint64]int
	consumers map[uint64][]uint64
	// canceled external ids per exchange
	canceled map[string]map[string]struct{}
	external map[string]map[string]uint64
}

func newIndex() *index {
	return &index{
		byID:      make(map[uint64]int),
		consumers: make(map[uint64][]uint64),
		canceled:  make(map[string]map[string]struct{}),
		external:  make(map[string]map[string]uint64),
	}
}

func (ix *index) lastID() uint64 {
	if len(ix.orders) == 0 {
		return 0
	}
	return ix.orders[len(ix.orders)-1].ID
}

func (ix *index) get(id uint64) *domain.LedgerOrder {
	pos, ok := ix.byID[id]
	if !ok {
		return nil
	}
	o := ix.orders[pos]
	return &o
}

func (ix *index) add(o domain.LedgerOrder) {
	ix.byID[o.ID] = len(ix.orders)
	ix.orders = append(ix.orders, o)

	if o.BasedOnOrderID != nil {
		ix.consumers[*o.BasedOnOrderID] = append(ix.consumers[*o.BasedOnOrderID], o.ID)
	}
	if o.CancelsExternalID != nil {
		if ix.canceled[o.Exchange] == nil {
			ix.canceled[o.Exchange] = make(map[string]struct{})
		}
		ix.canceled[o.Exchange][*o.CancelsExternalID] = struct{}{}
	}
	if o.ExternalOrderID != nil {
		if ix.external[o.Exchange] == nil {
			ix.external[o.Exchange] = make(map[string]uint64)
		}
		ix.external[o.Exchange][*o.ExternalOrderID] = o.ID
	}
}

func (ix *index) isCanceled(o domain.LedgerOrder) bool {
	if o.ExternalOrderID == nil {
		return false
	}
	_, ok := ix.canceled[o.Exchange][*o.ExternalOrderID]
	return ok
}

// latestUnconsumed walks back from the newest row. The latest live order of the
// side wins; if a later order already consumed it there is nothing to link to.
func (ix *index) latestUnconsumed(pair domain.Pair, exchange string, side domain.Side) *domain.LedgerOrder {
	for i := len(ix.orders) - 1; i >= 0; i-- {
		o := ix.orders[i]
		if o.Pair != pair || o.Exchange != exchange || o.Side != side {
			continue
		}
		if o.IsCancel() || ix.isCanceled(o) {
			continue
		}
		if len(ix.consumers[o.ID]) > 0 {
			return nil
		}

		return &o
	}

	return nil
}

func (ix *index) consumersOf(id uint64) []domain.LedgerOrder {
	ids := ix.consumers[id]
	out := make([]domain.LedgerOrder, 0, len(ids))
	for _, cid := range ids {
		if o := ix.get(cid); o != nil {
			out = append(out, *o)
		}
	}
	return out
}

func (ix *index) byExternal(exchange, externalID string) *domain.LedgerOrder {
	id, ok := ix.external[exchange][externalID]
	if !ok {
		return nil
	}
	return ix.get(id)
}

func (ix *index) after(id uint64, limit int) []domain.LedgerOrder {
	out := make([]domain.LedgerOrder, 0)
	for _, o := range ix.orders {
		if o.ID <= id {
			continue
		}
		out = append(out, o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
