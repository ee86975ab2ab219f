package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bank identifies an institution taking part in interbank transfers.
// IsExternal is true for every bank other than the one this node runs as.
type Bank struct {
	ID         uuid.UUID
	Name       string
	Code       string // first three characters of every account number issued by the bank
	BaseURL    string
	IsExternal bool
}

// User is the owner of one or more accounts. For counterparties held at
// external banks a shadow user is materialized on first contact.
type User struct {
	ID        uuid.UUID
	FirstName string
	LastName  string
	Email     string
	BankID    uuid.UUID
	CreatedAt time.Time
}

// AccountCurrency is the per-currency sub-ledger of an account. Balance is
// the booked total; AvailableBalance is what the owner may still spend, and
// is decremented eagerly when a transfer is prepared.
type AccountCurrency struct {
	ID               uuid.UUID
	AccountID        uuid.UUID
	CurrencyID       uuid.UUID
	AvailableBalance decimal.Decimal
	Balance          decimal.Decimal
}

// Account represents a client account holding one sub-ledger per currency
type Account struct {
	ID         uuid.UUID
	Number     string // bank code prefix + client part
	ClientID   uuid.UUID
	Bank       *Bank
	CurrencyID uuid.UUID // the account's primary currency
	Currencies []AccountCurrency
	CreatedAt  time.Time
}

// BankCode returns the three-character bank prefix of the account number,
// or an empty string when the number is malformed.
func (a *Account) BankCode() string {
	if len(a.Number) < 3 {
		return ""
	}
	return a.Number[:3]
}

// FindCurrency resolves the sub-ledger id holding the given currency.
// The balance primitives of AccountRepository operate on that id.
func (a *Account) FindCurrency(currencyID uuid.UUID) (uuid.UUID, bool) {
	for _, accountCurrency := range a.Currencies {
		if accountCurrency.CurrencyID == currencyID {
			return accountCurrency.ID, true
		}
	}
	return uuid.Nil, false
}
