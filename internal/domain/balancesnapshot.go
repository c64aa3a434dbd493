package domain

import (
	"sort"
	"time"
)

// BalanceSnapshot wallet state of an exchange account after a cycle.
type BalanceSnapshot struct {
	Timestamp time.Time      `json:"ts"`
	Exchange  string         `json:"exchange"`
	Account   string         `json:"account"`
	Balances  []BalanceEntry `json:"balances"`
}

// BalanceEntry serializable Balance.
type BalanceEntry struct {
	Currency  string `json:"currency"`
	Total     string `json:"total"`
	Available string `json:"available"`
}

// NewBalanceSnapshot creates a snapshot from the cycle's current balances.
func NewBalanceSnapshot(timestamp time.Time, exchange string, account AccountID, balances map[string]Balance) BalanceSnapshot {
	entries := make([]BalanceEntry, 0, len(balances))
	for _, b := range balances {
		entries = append(entries, BalanceEntry{
			Currency:  b.Currency,
			Total:     b.Total.String(),
			Available: b.Available.String(),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Currency < entries[j].Currency })

	return BalanceSnapshot{
		Timestamp: timestamp,
		Exchange:  exchange,
		Account:   string(account),
		Balances:  entries,
	}
}

// BalanceSnapshotRecord bundles a snapshot with its WAL index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
