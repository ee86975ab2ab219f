package rates

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvukovic/bankcore/internal/domain"
)

// Service resolves the ExchangeDetails a transfer converts with. Details
// are computed on demand from the most recent currency-pair record and
// never cached across requests, so each transfer uses the rate in effect
// at preparation time.
type Service struct {
	ExchangeRepo domain.ExchangeRepository
}

// NewService creates a new rate calculator
func NewService(exchangeRepo domain.ExchangeRepository) *Service {
	return &Service{ExchangeRepo: exchangeRepo}
}

// Details computes the rate set converting fromID into toID.
// A same-currency pair converts at 1. Otherwise the latest Exchange record
// matching the pair in either direction is oriented so that AverageRate
// points from->to, and the spot ExchangeRate nets out the commission.
func (s *Service) Details(ctx context.Context, fromID, toID uuid.UUID) (*domain.ExchangeDetails, error) {
	if fromID == toID {
		return domain.UnitExchangeDetails(fromID), nil
	}

	exchange, err := s.ExchangeRepo.LatestByPair(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("no exchange rate for pair: %w", err)
	}

	one := decimal.NewFromInt(1)

	average := exchange.Rate
	if exchange.CurrencyFromID != fromID {
		average = exchange.InverseRate()
	}

	spot := average.Mul(one.Sub(exchange.Commission))

	return &domain.ExchangeDetails{
		CurrencyFromID:      fromID,
		CurrencyToID:        toID,
		AverageRate:         average,
		ExchangeRate:        spot,
		InverseAverageRate:  one.Div(average),
		InverseExchangeRate: one.Div(spot),
	}, nil
}
