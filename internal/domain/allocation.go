package domain

import "github.com/shopspring/decimal"

// AllocationTier which rule produced an allocation.
type AllocationTier int

const (
	// TierAllocationCut total*cut fits into available and clears the minimum.
	TierAllocationCut AllocationTier = iota + 1
	// TierAvailable the cut did not fit, the whole available balance is used instead.
	TierAvailable
)

// String returns the string representation.
func (t AllocationTier) String() string {
	switch t {
	case TierAllocationCut:
		return "allocation_cut"
	case TierAvailable:
		return "available"
	default:
		return "none"
	}
}

// Allocation tradable amount for one leg of a cycle.
type Allocation struct {
	Amount decimal.Decimal
	Tier   AllocationTier
}

// Allocate sizes one leg from a balance. For the buy leg the balance is the
// quote currency and minimum is the minimum order value; for the sell leg the
// balance is the base currency and minimum is the base quantity floor.
//
// Returns false when neither total*cut nor the whole available balance clears
// the minimum. Falling back to the available balance keeps small wallets
// tradable when the cut undersizes them.
func Allocate(b Balance, cut, minimum decimal.Decimal) (Allocation, bool) {
	spendable := b.Total.Mul(cut)

	if spendable.LessThanOrEqual(b.Available) && spendable.GreaterThan(minimum) {
		return Allocation{Amount: spendable, Tier: TierAllocationCut}, true
	}

	if b.Available.GreaterThan(minimum) {
		return Allocation{Amount: b.Available, Tier: TierAvailable}, true
	}

	return Allocation{}, false
}

// AllocateBuy sizes the buy leg from the quote balance.
func AllocateBuy(quote Balance, cut, minOrderValue decimal.Decimal) (Allocation, bool) {
	return Allocate(quote, cut, minOrderValue)
}

// AllocateSell sizes the sell leg from the base balance.
func AllocateSell(base Balance, cut, minBaseQuantity decimal.Decimal) (Allocation, bool) {
	return Allocate(base, cut, minBaseQuantity)
}
