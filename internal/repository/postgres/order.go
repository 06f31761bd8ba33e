package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"otpbot/internal/domain"
)

// OrderRepo implements repository.OrderJournal
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo creates a new order repository
func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// RecordOrder inserts a newly placed order
func (r *OrderRepo) RecordOrder(ctx context.Context, order domain.Order) error {
	query := `
		INSERT INTO orders (order_id, user_id, chat_id, service_id, service_name, phone, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (order_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.UserID, order.ChatID, order.ServiceID, order.ServiceName,
		order.Phone, order.Price, string(order.Status), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

// UpdateStatus records a status transition and the received SMS, if any
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, sms string) error {
	query := `
		UPDATE orders
		SET status = $2, sms = COALESCE(NULLIF($3, ''), sms), updated_at = NOW()
		WHERE order_id = $1
	`
	_, err := r.db.ExecContext(ctx, query, orderID, string(status), sms)
	if err != nil {
		return fmt.Errorf("update order %s: %w", orderID, err)
	}
	return nil
}

// ListRecent returns the user's latest orders, newest first
func (r *OrderRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	query := `
		SELECT order_id, user_id, chat_id, service_id, service_name, phone, price, status, COALESCE(sms, ''), created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o      domain.Order
			status string
		)
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.ChatID, &o.ServiceID, &o.ServiceName,
			&o.Phone, &o.Price, &status, &o.SMS, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}

	return orders, rows.Err()
}
