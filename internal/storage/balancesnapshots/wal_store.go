package balancesnapshots

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

const (
	DefaultDir           = "./wal/balance"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "balance_snapshot_"
	// snapshots kept in memory for readers
	historyLimit = 1000
)

// WALStore persists per-cycle balance snapshots in a WAL for the status server.
type WALStore struct {
	wal     *gowal.Wal
	history []domain.BalanceSnapshotRecord
	seq     uint64
	mu      sync.RWMutex
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	s := &WALStore{wal: wal}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, snapshotKeyPrefix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimPrefix(msg.Key, snapshotKeyPrefix), 10, 64)
		if err != nil {
			continue
		}
		var snapshot domain.BalanceSnapshot
		if err := json.Unmarshal(msg.Value, &snapshot); err != nil {
			continue
		}
		s.remember(domain.BalanceSnapshotRecord{Index: seq, Snapshot: snapshot})
	}

	return s, nil
}

func (s *WALStore) remember(rec domain.BalanceSnapshotRecord) {
	if rec.Index > s.seq {
		s.seq = rec.Index
	}
	s.history = append(s.history, rec)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

// Save writes the snapshot to WAL.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("balance snapshot store is not initialized")
	}
	if snapshot.Exchange == "" {
		return fmt.Errorf("balance snapshot exchange is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal balance snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq + 1
	key := fmt.Sprintf("%s%d", snapshotKeyPrefix, seq)
	if err := s.wal.Write(s.wal.CurrentIndex()+1, key, payload); err != nil {
		return errors.Wrap(err, "write balance snapshot")
	}
	s.remember(domain.BalanceSnapshotRecord{Index: seq, Snapshot: snapshot})

	return nil
}

// SnapshotsAfter returns the retained snapshots written after index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("balance snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.BalanceSnapshotRecord, 0)
	for _, rec := range s.history {
		if rec.Index > index {
			records = append(records, rec)
		}
	}

	return records, nil
}

// CurrentIndex returns the latest snapshot index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seq
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("balance snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
