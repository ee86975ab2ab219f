package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SecurityType distinguishes the asset classes matched in separate cycles
type SecurityType string

const (
	SecurityTypeStock     SecurityType = "STOCK"
	SecurityTypeForexPair SecurityType = "FOREX_PAIR"
)

// Security is a tradeable instrument listed on an exchange
type Security struct {
	ID         uuid.UUID
	Ticker     string
	Type       SecurityType
	CurrencyID uuid.UUID // currency the listing exchange settles in
}

// Quote is a snapshot of bid/ask price and size for a security at a point
// in time. Matching cycles work on local copies: BidSize and AskSize are
// decremented as orders consume liquidity, the ingested snapshot itself is
// never mutated.
type Quote struct {
	SecurityID uuid.UUID
	Ticker     string
	BidPrice   decimal.Decimal
	BidSize    decimal.Decimal
	AskPrice   decimal.Decimal
	AskSize    decimal.Decimal
	HighPrice  decimal.Decimal
	LowPrice   decimal.Decimal
	OpenPrice  decimal.Decimal
	ClosePrice decimal.Decimal
	CreatedAt  time.Time
}

// Asset is a security holding of one actuary (beneficial owner).
// Buys merge into the holding at a weighted-average price, sells decrease
// it; Quantity never goes below zero.
type Asset struct {
	ID           uuid.UUID
	ActuaryID    uuid.UUID
	SecurityID   uuid.UUID
	Quantity     decimal.Decimal
	AveragePrice decimal.Decimal
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// Merge folds an additional purchase into the holding, recomputing the
// weighted-average price.
func (a *Asset) Merge(quantity, price decimal.Decimal) {
	total := a.Quantity.Add(quantity)
	if total.IsZero() {
		return
	}
	a.AveragePrice = a.Quantity.Mul(a.AveragePrice).Add(quantity.Mul(price)).Div(total)
	a.Quantity = total
	a.ModifiedAt = time.Now().UTC()
}
