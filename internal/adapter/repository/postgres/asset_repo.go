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

// assetRepository implements domain.AssetRepository
type assetRepository struct {
	db *DB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *DB) domain.AssetRepository {
	return &assetRepository{db: db}
}

// GetBySecurityAndActuary retrieves the holding for one owner and security
func (r *assetRepository) GetBySecurityAndActuary(ctx context.Context, securityID, actuaryID uuid.UUID) (*domain.Asset, error) {
	query := `
		SELECT id, actuary_id, security_id, quantity, average_price, created_at, modified_at
		FROM assets
		WHERE security_id = $1 AND actuary_id = $2
	`

	var asset domain.Asset
	var quantityStr, averagePriceStr string

	err := r.db.QueryRowContext(ctx, query, securityID, actuaryID).Scan(
		&asset.ID,
		&asset.ActuaryID,
		&asset.SecurityID,
		&quantityStr,
		&averagePriceStr,
		&asset.CreatedAt,
		&asset.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	if asset.Quantity, err = decimal.NewFromString(quantityStr); err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	if asset.AveragePrice, err = decimal.NewFromString(averagePriceStr); err != nil {
		return nil, fmt.Errorf("failed to parse average_price: %w", err)
	}

	return &asset, nil
}

// Save inserts or updates a holding
func (r *assetRepository) Save(ctx context.Context, asset *domain.Asset) error {
	query := `
		INSERT INTO assets (id, actuary_id, security_id, quantity, average_price, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (actuary_id, security_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    average_price = EXCLUDED.average_price,
		    modified_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		asset.ID,
		asset.ActuaryID,
		asset.SecurityID,
		asset.Quantity.String(),
		asset.AveragePrice.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

// Delete removes a holding entirely
func (r *assetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return nil
}
