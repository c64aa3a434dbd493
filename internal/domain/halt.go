package domain

import "time"

// BuyHalts buy-side halts per pair for a single exchange, value is the expiry.
// Process-local, a restart clears every halt.
type BuyHalts map[Pair]time.Time

// Set halts buys on pair until now+d.
func (h BuyHalts) Set(pair Pair, now time.Time, d time.Duration) {
	h[pair] = now.Add(d)
}

// Active reports whether buys on pair are halted at now. Expired halts are dropped.
func (h BuyHalts) Active(pair Pair, now time.Time) bool {
	until, ok := h[pair]
	if !ok {
		return false
	}
	if !now.Before(until) {
		delete(h, pair)
		return false
	}

	return true
}

// Until returns the expiry of an active halt.
func (h BuyHalts) Until(pair Pair) (time.Time, bool) {
	until, ok := h[pair]
	return until, ok
}
