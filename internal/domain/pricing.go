package domain

import "github.com/shopspring/decimal"

// PriceSource where the final price of an order came from.
type PriceSource string

const (
	PriceSourceMarket PriceSource = "market"
	PriceSourceLinked PriceSource = "linked"
)

// PriceRequest inputs of the order pricer.
type PriceRequest struct {
	Side Side
	Book OrderBook
	// Margin fraction applied to the reference price, 0.011 = 1.1%.
	Margin decimal.Decimal
	// Linked ledger order of the opposite side the new order responds to, may be nil.
	Linked *LedgerOrder
	// Disparity fraction a linked price may beat the market by before it is discarded.
	Disparity decimal.Decimal
}

// PriceQuote priced limit order.
type PriceQuote struct {
	// Price truncated to OrderPrecision.
	Price  decimal.Decimal
	Source PriceSource
	// LinkDiscarded linked price was too far from the market and ignored.
	LinkDiscarded bool
	// Clamped price would have crossed the book and was pinned to it.
	Clamped bool
}

// PriceOrder computes the limit price for a new order.
//
// Without a link a buy rests margin below the best ask and a sell margin above
// the best bid. With a link the price improves on the linked order by margin:
// a sell linked to a buy asks more than that buy paid, a buy linked to a sell
// bids less than that sell got. A linked price that beats the market by more
// than Disparity is discarded in favour of the market price. Finally the price
// never crosses the book: a sell is not placed below the best bid and a buy is
// not placed above the best ask.
func PriceOrder(req PriceRequest) (PriceQuote, error) {
	if err := req.Book.Validate(); err != nil {
		return PriceQuote{}, err
	}
	if !req.Side.IsValid() {
		return PriceQuote{}, invalidMarketData("unknown side %q", req.Side)
	}

	one := decimal.NewFromInt(1)
	quote := PriceQuote{Source: PriceSourceMarket}

	if req.Side == SideBuy {
		quote.Price = req.Book.BestAsk.Mul(one.Sub(req.Margin))
	} else {
		quote.Price = req.Book.BestBid.Mul(one.Add(req.Margin))
	}

	if req.Linked != nil && req.Linked.Price.IsPositive() {
		var linked decimal.Decimal
		var tooFavorable bool

		if req.Side == SideBuy {
			linked = req.Linked.Price.Mul(one.Sub(req.Margin))
			tooFavorable = linked.LessThan(req.Book.BestBid.Mul(one.Sub(req.Disparity)))
		} else {
			linked = req.Linked.Price.Mul(one.Add(req.Margin))
			tooFavorable = linked.GreaterThan(req.Book.BestAsk.Mul(one.Add(req.Disparity)))
		}

		if tooFavorable {
			quote.LinkDiscarded = true
		} else {
			quote.Price = linked
			quote.Source = PriceSourceLinked
		}
	}

	if req.Side == SideSell && quote.Price.LessThan(req.Book.BestBid) {
		quote.Price = req.Book.BestBid
		quote.Clamped = true
	}
	if req.Side == SideBuy && quote.Price.GreaterThan(req.Book.BestAsk) {
		quote.Price = req.Book.BestAsk
		quote.Clamped = true
	}

	quote.Price = Truncate(quote.Price)

	return quote, nil
}
