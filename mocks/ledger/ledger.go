package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

// Ledger mock of the order ledger.
type Ledger struct {
	mock.Mock
}

// AppendOrder provides a mock function with given fields: ctx, order
func (_m *Ledger) AppendOrder(ctx context.Context, order domain.LedgerOrder) (uint64, error) {
	ret := _m.Called(ctx, order)

	var r0 uint64
	if rf, ok := ret.Get(0).(func(context.Context, domain.LedgerOrder) uint64); ok {
		r0 = rf(ctx, order)
	} else {
		r0 = ret.Get(0).(uint64)
	}

	return r0, ret.Error(1)
}

// FindLatestUnconsumed provides a mock function with given fields: ctx, pair, exchange, side
func (_m *Ledger) FindLatestUnconsumed(ctx context.Context, pair domain.Pair, exchange string, side domain.Side) (*domain.LedgerOrder, error) {
	ret := _m.Called(ctx, pair, exchange, side)

	var r0 *domain.LedgerOrder
	if rf, ok := ret.Get(0).(func(context.Context, domain.Pair, string, domain.Side) *domain.LedgerOrder); ok {
		r0 = rf(ctx, pair, exchange, side)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*domain.LedgerOrder)
	}

	return r0, ret.Error(1)
}

// FindConsumersOf provides a mock function with given fields: ctx, id
func (_m *Ledger) FindConsumersOf(ctx context.Context, id uint64) ([]domain.LedgerOrder, error) {
	ret := _m.Called(ctx, id)

	var r0 []domain.LedgerOrder
	if rf, ok := ret.Get(0).(func(context.Context, uint64) []domain.LedgerOrder); ok {
		r0 = rf(ctx, id)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.LedgerOrder)
	}

	return r0, ret.Error(1)
}

// FindByExternalID provides a mock function with given fields: ctx, exchange, externalID
func (_m *Ledger) FindByExternalID(ctx context.Context, exchange string, externalID string) (*domain.LedgerOrder, error) {
	ret := _m.Called(ctx, exchange, externalID)

	var r0 *domain.LedgerOrder
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *domain.LedgerOrder); ok {
		r0 = rf(ctx, exchange, externalID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*domain.LedgerOrder)
	}

	return r0, ret.Error(1)
}

// NewLedger creates a new instance of Ledger. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewLedger(t interface {
	mock.TestingT
	Cleanup(func())
}) *Ledger {
	m := &Ledger{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
