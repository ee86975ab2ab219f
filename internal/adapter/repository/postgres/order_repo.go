package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mvukovic/bankcore/internal/domain"
)

// orderRepository implements domain.OrderRepository
type orderRepository struct {
	db *DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *DB) domain.OrderRepository {
	return &orderRepository{db: db}
}

// FindOpenByTickers retrieves all Open orders for the given tickers, oldest
// first, which is the arrival order the matcher walks in.
func (r *orderRepository) FindOpenByTickers(ctx context.Context, tickers []string) ([]*domain.Order, error) {
	query := `
		SELECT o.id, o.security_id, s.ticker, o.account_id, o.direction, o.order_type,
		       o.limit_price, o.stop_price, o.remaining_portions, o.status, o.created_at
		FROM orders o
		JOIN securities s ON s.id = o.security_id
		WHERE o.status = 'OPEN' AND s.ticker = ANY($1)
		ORDER BY o.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(tickers))
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		var limitStr, stopStr, portionsStr string

		err := rows.Scan(
			&order.ID,
			&order.SecurityID,
			&order.Ticker,
			&order.AccountID,
			&order.Direction,
			&order.Type,
			&limitStr,
			&stopStr,
			&portionsStr,
			&order.Status,
			&order.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		if order.LimitPrice, err = decimal.NewFromString(limitStr); err != nil {
			return nil, fmt.Errorf("failed to parse limit_price: %w", err)
		}
		if order.StopPrice, err = decimal.NewFromString(stopStr); err != nil {
			return nil, fmt.Errorf("failed to parse stop_price: %w", err)
		}
		if order.RemainingPortions, err = decimal.NewFromString(portionsStr); err != nil {
			return nil, fmt.Errorf("failed to parse remaining_portions: %w", err)
		}

		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read open orders: %w", err)
	}

	return orders, nil
}

// Complete marks fully consumed orders Completed, removing them from the
// open working set.
func (r *orderRepository) Complete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE orders
		SET status = 'COMPLETED', remaining_portions = 0
		WHERE id = ANY($1) AND status = 'OPEN'
	`

	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to complete orders: %w", err)
	}
	return nil
}
