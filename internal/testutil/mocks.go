package testutil

import (
	"context"

	"otpbot/internal/domain"
	"otpbot/internal/provider"

	"github.com/stretchr/testify/mock"
)

// MockCatalogProvider is a mock for service.CatalogProvider
type MockCatalogProvider struct {
	mock.Mock
}

func (m *MockCatalogProvider) FetchServices(ctx context.Context, kind domain.ListKind) ([]domain.Service, error) {
	args := m.Called(ctx, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Service), args.Error(1)
}

// MockOrderProvider is a mock for service.OrderProvider
type MockOrderProvider struct {
	mock.Mock
}

func (m *MockOrderProvider) PlaceOrder(ctx context.Context, serviceID string) (provider.Placement, error) {
	args := m.Called(ctx, serviceID)
	return args.Get(0).(provider.Placement), args.Error(1)
}

func (m *MockOrderProvider) CheckOrderSms(ctx context.Context, orderID string) (provider.SMSStatus, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(provider.SMSStatus), args.Error(1)
}

func (m *MockOrderProvider) SetOrderStatus(ctx context.Context, orderID string, code provider.StatusCode) error {
	args := m.Called(ctx, orderID, code)
	return args.Error(0)
}

// MockBalanceProvider is a mock for handler.BalanceProvider
type MockBalanceProvider struct {
	mock.Mock
}

func (m *MockBalanceProvider) GetBalance(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock for service.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyOrder(ctx context.Context, event domain.OrderEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockOrderJournal is a mock for repository.OrderJournal
type MockOrderJournal struct {
	mock.Mock
}

func (m *MockOrderJournal) RecordOrder(ctx context.Context, order domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderJournal) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, sms string) error {
	args := m.Called(ctx, orderID, status, sms)
	return args.Error(0)
}

func (m *MockOrderJournal) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Order), args.Error(1)
}
