package repository

import (
	"context"

	"otpbot/internal/domain"
)

// OrderJournal is an append-only audit trail of placed orders.
// It is never read back to restore tracker state.
type OrderJournal interface {
	RecordOrder(ctx context.Context, order domain.Order) error
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, sms string) error
	ListRecent(ctx context.Context, userID int64, limit int) ([]domain.Order, error)
}

// NopJournal is used when no database is configured
type NopJournal struct{}

func (NopJournal) RecordOrder(context.Context, domain.Order) error { return nil }

func (NopJournal) UpdateStatus(context.Context, string, domain.OrderStatus, string) error {
	return nil
}

func (NopJournal) ListRecent(context.Context, int64, int) ([]domain.Order, error) {
	return nil, ErrJournalDisabled
}
