package testutil

import (
	"fmt"
	"time"

	"otpbot/internal/domain"

	"go.uber.org/zap"
)

// NewTestLogger creates a no-op logger for tests
func NewTestLogger() *zap.Logger {
	return zap.NewNop()
}

// NewTestServices creates n services with ids "1".."n"
func NewTestServices(n int) []domain.Service {
	services := make([]domain.Service, 0, n)
	for i := 1; i <= n; i++ {
		services = append(services, domain.Service{
			ID:    fmt.Sprint(i),
			Name:  fmt.Sprintf("Service %d", i),
			Price: fmt.Sprint(1000 + i),
		})
	}
	return services
}

// NewTestOrder creates a pending order
func NewTestOrder(orderID string, userID int64) domain.Order {
	now := time.Now()
	return domain.Order{
		ID:          orderID,
		UserID:      userID,
		ChatID:      userID,
		ServiceID:   "123",
		ServiceName: "WhatsApp",
		Phone:       "+6281234",
		Price:       "10",
		Status:      domain.OrderPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
