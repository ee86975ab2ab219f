package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Exchange is one currency-pair rate observation. Records are append-only:
// a fresh quote creates a new row rather than mutating an old one, so
// point-in-time lookups and the audit trail stay intact.
type Exchange struct {
	ID             uuid.UUID
	CurrencyFromID uuid.UUID
	CurrencyToID   uuid.UUID
	Commission     decimal.Decimal
	Rate           decimal.Decimal
	CreatedAt      time.Time
}

// InverseRate converts in the to→from direction.
func (e *Exchange) InverseRate() decimal.Decimal {
	return decimal.NewFromInt(1).Div(e.Rate)
}

// BidRate is the inverse rate padded with the bank's commission.
func (e *Exchange) BidRate() decimal.Decimal {
	return e.InverseRate().Mul(decimal.NewFromInt(1).Add(e.Commission))
}

// AskRate is the inverse rate net of the bank's commission.
func (e *Exchange) AskRate() decimal.Decimal {
	return e.InverseRate().Mul(decimal.NewFromInt(1).Sub(e.Commission))
}

// ExchangeDetails is the resolved set of rates used to convert an amount
// between two currencies for one transfer. It is recomputed per transfer
// from the most recent Exchange record and never cached, so every transfer
// uses the rate in effect at preparation time.
//
// AverageRate is the mid rate from→to; ExchangeRate is the spot rate the
// transfer actually converts at (mid net of commission); the inverse fields
// are their reciprocals.
type ExchangeDetails struct {
	CurrencyFromID      uuid.UUID
	CurrencyToID        uuid.UUID
	AverageRate         decimal.Decimal
	ExchangeRate        decimal.Decimal
	InverseAverageRate  decimal.Decimal
	InverseExchangeRate decimal.Decimal
}

// UnitExchangeDetails returns the identity conversion used when both sides
// of a transfer share a currency.
func UnitExchangeDetails(currencyID uuid.UUID) *ExchangeDetails {
	one := decimal.NewFromInt(1)
	return &ExchangeDetails{
		CurrencyFromID:      currencyID,
		CurrencyToID:        currencyID,
		AverageRate:         one,
		ExchangeRate:        one,
		InverseAverageRate:  one,
		InverseExchangeRate: one,
	}
}
