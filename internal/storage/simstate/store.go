// Package simstate persists paper-trading wallets and resting orders between restarts.
package simstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

const defaultStateDir = "./wal/paper"

// Store keeps one JSON file per paper account.
type Store struct {
	path string
}

func getStateDir() string {
	if stateDir := os.Getenv("SPOTCHAIN_PAPER_STATE_DIR"); stateDir != "" {
		return stateDir
	}
	return defaultStateDir
}

// NewStore creates a state store for the given account scope.
// Empty dir falls back to SPOTCHAIN_PAPER_STATE_DIR, then ./wal/paper.
func NewStore(dir, scope string) (*Store, error) {
	if dir == "" {
		dir = getStateDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create paper state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "default"
	}

	return &Store{path: filepath.Join(dir, fmt.Sprintf("%s.json", name))}, nil
}

// State all persisted paper-trading data of one account.
type State struct {
	Wallet map[string]StoredBalance `json:"wallet"`
	Orders []StoredOrder            `json:"orders"`
	Seq    uint64                   `json:"seq"`
}

// StoredBalance wallet entry; Locked is reserved by resting orders.
type StoredBalance struct {
	Total  string `json:"total"`
	Locked string `json:"locked"`
}

// StoredOrder resting limit order.
type StoredOrder struct {
	ID       string      `json:"id"`
	Pair     domain.Pair `json:"pair"`
	Side     domain.Side `json:"side"`
	Price    string      `json:"price"`
	Quantity string      `json:"qty"`
}

// NewStoredOrder converts an open order into its stored representation.
func NewStoredOrder(o domain.OpenOrder) StoredOrder {
	return StoredOrder{
		ID:       o.ID,
		Pair:     o.Pair,
		Side:     o.Side,
		Price:    o.LimitPrice.String(),
		Quantity: o.Quantity.String(),
	}
}

// ToOpenOrder reconstructs the open order from stored data.
func (so StoredOrder) ToOpenOrder() (domain.OpenOrder, error) {
	price, err := decimal.NewFromString(so.Price)
	if err != nil {
		return domain.OpenOrder{}, errors.Wrapf(err, "decode order %s price", so.ID)
	}
	qty, err := decimal.NewFromString(so.Quantity)
	if err != nil {
		return domain.OpenOrder{}, errors.Wrapf(err, "decode order %s quantity", so.ID)
	}

	return domain.OpenOrder{ID: so.ID, Pair: so.Pair, Side: so.Side, LimitPrice: price, Quantity: qty}, nil
}

// Load reads state from disk. A missing file yields nil state and no error.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read paper state")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode paper state")
	}

	return &state, nil
}

// Save writes state to disk atomically via temp file.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode paper state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write paper state temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist paper state")
	}

	return nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
