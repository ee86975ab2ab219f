package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvukovic/bankcore/internal/domain"
)

// currencyRepository implements domain.CurrencyRepository
type currencyRepository struct {
	db *DB
}

// NewCurrencyRepository creates a new currency repository
func NewCurrencyRepository(db *DB) domain.CurrencyRepository {
	return &currencyRepository{db: db}
}

func (r *currencyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Currency, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *currencyRepository) GetByCode(ctx context.Context, code string) (*domain.Currency, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *currencyRepository) getOne(ctx context.Context, where string, arg interface{}) (*domain.Currency, error) {
	query := `SELECT id, name, code, symbol FROM currencies ` + where

	var currency domain.Currency
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&currency.ID,
		&currency.Name,
		&currency.Code,
		&currency.Symbol,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get currency: %w", err)
	}
	return &currency, nil
}
