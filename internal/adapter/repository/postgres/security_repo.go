package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvukovic/bankcore/internal/domain"
)

// securityRepository implements domain.SecurityRepository
type securityRepository struct {
	db *DB
}

// NewSecurityRepository creates a new security repository
func NewSecurityRepository(db *DB) domain.SecurityRepository {
	return &securityRepository{db: db}
}

// FindAll retrieves all securities of one asset class
func (r *securityRepository) FindAll(ctx context.Context, securityType domain.SecurityType) ([]*domain.Security, error) {
	query := `
		SELECT id, ticker, security_type, currency_id
		FROM securities
		WHERE security_type = $1
		ORDER BY ticker
	`

	rows, err := r.db.QueryContext(ctx, query, string(securityType))
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []*domain.Security
	for rows.Next() {
		var security domain.Security
		if err := rows.Scan(&security.ID, &security.Ticker, &security.Type, &security.CurrencyID); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, &security)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read securities: %w", err)
	}

	return securities, nil
}

// GetByID retrieves a security by its id
func (r *securityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	query := `SELECT id, ticker, security_type, currency_id FROM securities WHERE id = $1`

	var security domain.Security
	err := r.db.QueryRowContext(ctx, query, id).Scan(&security.ID, &security.Ticker, &security.Type, &security.CurrencyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get security: %w", err)
	}
	return &security, nil
}
