package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvukovic/bankcore/internal/domain"
)

// transactionCodeRepository implements domain.TransactionCodeRepository
type transactionCodeRepository struct {
	db *DB
}

// NewTransactionCodeRepository creates a new transaction code repository
func NewTransactionCodeRepository(db *DB) domain.TransactionCodeRepository {
	return &transactionCodeRepository{db: db}
}

func (r *transactionCodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TransactionCode, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *transactionCodeRepository) GetByCode(ctx context.Context, code string) (*domain.TransactionCode, error) {
	return r.getOne(ctx, `WHERE code = $1`, code)
}

func (r *transactionCodeRepository) getOne(ctx context.Context, where string, arg interface{}) (*domain.TransactionCode, error) {
	query := `SELECT id, code, name FROM transaction_codes ` + where

	var transactionCode domain.TransactionCode
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&transactionCode.ID,
		&transactionCode.Code,
		&transactionCode.Name,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction code: %w", err)
	}
	return &transactionCode, nil
}
