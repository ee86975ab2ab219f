package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mvukovic/bankcore/internal/domain"
)

// userRepository implements domain.UserRepository
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) domain.UserRepository {
	return &userRepository{db: db}
}

// Create persists a new user (shadow counterparty owners included)
func (r *userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (id, first_name, last_name, email, bank_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	// bank_id is nullable; a shadow user's bank is derived from the account
	// number prefix instead
	var bankID interface{}
	if user.BankID != uuid.Nil {
		bankID = user.BankID
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}
