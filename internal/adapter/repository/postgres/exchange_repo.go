package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvukovic/bankcore/internal/domain"
)

// exchangeRepository implements domain.ExchangeRepository
type exchangeRepository struct {
	db *DB
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(db *DB) domain.ExchangeRepository {
	return &exchangeRepository{db: db}
}

// LatestByPair retrieves the most recent Exchange matching the pair in
// either direction
func (r *exchangeRepository) LatestByPair(ctx context.Context, firstCurrencyID, secondCurrencyID uuid.UUID) (*domain.Exchange, error) {
	query := `
		SELECT id, currency_from_id, currency_to_id, commission, rate, created_at
		FROM exchanges
		WHERE (currency_from_id = $1 AND currency_to_id = $2)
		   OR (currency_from_id = $2 AND currency_to_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var exchange domain.Exchange
	var commissionStr, rateStr string

	err := r.db.QueryRowContext(ctx, query, firstCurrencyID, secondCurrencyID).Scan(
		&exchange.ID,
		&exchange.CurrencyFromID,
		&exchange.CurrencyToID,
		&commissionStr,
		&rateStr,
		&exchange.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}

	if exchange.Commission, err = decimal.NewFromString(commissionStr); err != nil {
		return nil, fmt.Errorf("failed to parse commission: %w", err)
	}
	if exchange.Rate, err = decimal.NewFromString(rateStr); err != nil {
		return nil, fmt.Errorf("failed to parse rate: %w", err)
	}

	return &exchange, nil
}

// Create appends a new rate observation
func (r *exchangeRepository) Create(ctx context.Context, exchange *domain.Exchange) error {
	query := `
		INSERT INTO exchanges (id, currency_from_id, currency_to_id, commission, rate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		exchange.ID,
		exchange.CurrencyFromID,
		exchange.CurrencyToID,
		exchange.Commission.String(),
		exchange.Rate.String(),
		exchange.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return nil
}
