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

// transactionRepository implements domain.TransactionRepository
type transactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *DB) domain.TransactionRepository {
	return &transactionRepository{db: db}
}

// Create persists a new transaction. A reference-number collision surfaces
// as domain.ErrDuplicate so the preparer can retry with a fresh number.
func (r *transactionRepository) Create(ctx context.Context, transaction *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, from_account_id, from_currency_id, from_amount,
		                          to_account_id, to_currency_id, to_amount,
		                          code_id, reference_number, purpose, tax_amount,
		                          status, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.ExecContext(ctx, query,
		transaction.ID,
		transaction.FromAccountID,
		transaction.FromCurrencyID,
		transaction.FromAmount.String(),
		transaction.ToAccountID,
		transaction.ToCurrencyID,
		transaction.ToAmount.String(),
		transaction.CodeID,
		transaction.ReferenceNumber,
		transaction.Purpose,
		transaction.TaxAmount.String(),
		string(transaction.Status),
		transaction.CreatedAt,
		transaction.ModifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reference number %s: %w", transaction.ReferenceNumber, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its id
func (r *transactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, from_account_id, from_currency_id, from_amount,
		       to_account_id, to_currency_id, to_amount,
		       code_id, reference_number, purpose, tax_amount,
		       status, created_at, modified_at
		FROM transactions
		WHERE id = $1
	`

	var transaction domain.Transaction
	var fromAccountID, fromCurrencyID, toAccountID, toCurrencyID sql.NullString
	var fromAmountStr, toAmountStr, taxAmountStr string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&transaction.ID,
		&fromAccountID,
		&fromCurrencyID,
		&fromAmountStr,
		&toAccountID,
		&toCurrencyID,
		&toAmountStr,
		&transaction.CodeID,
		&transaction.ReferenceNumber,
		&transaction.Purpose,
		&taxAmountStr,
		&transaction.Status,
		&transaction.CreatedAt,
		&transaction.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if transaction.FromAccountID, err = nullableUUID(fromAccountID); err != nil {
		return nil, fmt.Errorf("failed to parse from_account_id: %w", err)
	}
	if transaction.FromCurrencyID, err = nullableUUID(fromCurrencyID); err != nil {
		return nil, fmt.Errorf("failed to parse from_currency_id: %w", err)
	}
	if transaction.ToAccountID, err = nullableUUID(toAccountID); err != nil {
		return nil, fmt.Errorf("failed to parse to_account_id: %w", err)
	}
	if transaction.ToCurrencyID, err = nullableUUID(toCurrencyID); err != nil {
		return nil, fmt.Errorf("failed to parse to_currency_id: %w", err)
	}

	if transaction.FromAmount, err = decimal.NewFromString(fromAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse from_amount: %w", err)
	}
	if transaction.ToAmount, err = decimal.NewFromString(toAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse to_amount: %w", err)
	}
	if transaction.TaxAmount, err = decimal.NewFromString(taxAmountStr); err != nil {
		return nil, fmt.Errorf("failed to parse tax_amount: %w", err)
	}

	return &transaction, nil
}

// UpdateStatus advances the settlement status. The guard in the WHERE clause
// keeps terminal statuses final: an update against a Completed, Failed or
// Canceled row affects nothing and is silently dropped.
func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `
		UPDATE transactions
		SET status = $2, modified_at = NOW()
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED', 'CANCELED')
	`

	if _, err := r.db.ExecContext(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return nil
}

func nullableUUID(value sql.NullString) (*uuid.UUID, error) {
	if !value.Valid {
		return nil, nil
	}
	parsed, err := uuid.Parse(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
