package gateway

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vadiminshakov/spotchain/internal/domain"
)

// Gateway mock of an exchange market gateway.
type Gateway struct {
	mock.Mock
}

// Name provides a mock function.
func (_m *Gateway) Name() string {
	ret := _m.Called()

	if rf, ok := ret.Get(0).(func() string); ok {
		return rf()
	}
	return ret.String(0)
}

// Accounts provides a mock function with given fields: ctx
func (_m *Gateway) Accounts(ctx context.Context) ([]domain.AccountID, error) {
	ret := _m.Called(ctx)

	var r0 []domain.AccountID
	if rf, ok := ret.Get(0).(func(context.Context) []domain.AccountID); ok {
		r0 = rf(ctx)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.AccountID)
	}

	return r0, ret.Error(1)
}

// Balances provides a mock function with given fields: ctx, account
func (_m *Gateway) Balances(ctx context.Context, account domain.AccountID) ([]domain.Balance, error) {
	ret := _m.Called(ctx, account)

	var r0 []domain.Balance
	if rf, ok := ret.Get(0).(func(context.Context, domain.AccountID) []domain.Balance); ok {
		r0 = rf(ctx, account)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.Balance)
	}

	return r0, ret.Error(1)
}

// Ticker provides a mock function with given fields: ctx, pair
func (_m *Gateway) Ticker(ctx context.Context, pair domain.Pair) (domain.Ticker, error) {
	ret := _m.Called(ctx, pair)

	var r0 domain.Ticker
	if rf, ok := ret.Get(0).(func(context.Context, domain.Pair) domain.Ticker); ok {
		r0 = rf(ctx, pair)
	} else {
		r0 = ret.Get(0).(domain.Ticker)
	}

	return r0, ret.Error(1)
}

// OrderBook provides a mock function with given fields: ctx, pair
func (_m *Gateway) OrderBook(ctx context.Context, pair domain.Pair) (domain.OrderBook, error) {
	ret := _m.Called(ctx, pair)

	var r0 domain.OrderBook
	if rf, ok := ret.Get(0).(func(context.Context, domain.Pair) domain.OrderBook); ok {
		r0 = rf(ctx, pair)
	} else {
		r0 = ret.Get(0).(domain.OrderBook)
	}

	return r0, ret.Error(1)
}

// OpenOrders provides a mock function with given fields: ctx, account, pair
func (_m *Gateway) OpenOrders(ctx context.Context, account domain.AccountID, pair domain.Pair) ([]domain.OpenOrder, error) {
	ret := _m.Called(ctx, account, pair)

	var r0 []domain.OpenOrder
	if rf, ok := ret.Get(0).(func(context.Context, domain.AccountID, domain.Pair) []domain.OpenOrder); ok {
		r0 = rf(ctx, account, pair)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]domain.OpenOrder)
	}

	return r0, ret.Error(1)
}

// Order provides a mock function with given fields: ctx, account, pair, orderID
func (_m *Gateway) Order(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) (domain.OpenOrder, error) {
	ret := _m.Called(ctx, account, pair, orderID)

	var r0 domain.OpenOrder
	if rf, ok := ret.Get(0).(func(context.Context, domain.AccountID, domain.Pair, string) domain.OpenOrder); ok {
		r0 = rf(ctx, account, pair, orderID)
	} else {
		r0 = ret.Get(0).(domain.OpenOrder)
	}

	return r0, ret.Error(1)
}

// PlaceOrder provides a mock function with given fields: ctx, account, req
func (_m *Gateway) PlaceOrder(ctx context.Context, account domain.AccountID, req domain.OrderRequest) (string, error) {
	ret := _m.Called(ctx, account, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, domain.AccountID, domain.OrderRequest) string); ok {
		r0 = rf(ctx, account, req)
	} else {
		r0 = ret.String(0)
	}

	return r0, ret.Error(1)
}

// CancelOrder provides a mock function with given fields: ctx, account, pair, orderID
func (_m *Gateway) CancelOrder(ctx context.Context, account domain.AccountID, pair domain.Pair, orderID string) error {
	ret := _m.Called(ctx, account, pair, orderID)

	if rf, ok := ret.Get(0).(func(context.Context, domain.AccountID, domain.Pair, string) error); ok {
		return rf(ctx, account, pair, orderID)
	}
	return ret.Error(0)
}

// NewGateway creates a new instance of Gateway. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *Gateway {
	m := &Gateway{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
