package domain

import (
	"github.com/google/uuid"
)

// Currency represents a currency the bank keeps ledgers in
type Currency struct {
	ID     uuid.UUID
	Name   string
	Code   string // ISO 4217, e.g. "EUR"
	Symbol string
}
