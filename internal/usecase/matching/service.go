package matching

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mvukovic/bankcore/internal/domain"
	"github.com/mvukovic/bankcore/internal/usecase/transfer"
)

// TransferCreator is the slice of the transaction preparer the matcher
// needs: every executed order becomes one security transfer.
type TransferCreator interface {
	Create(ctx context.Context, in transfer.Input) (*domain.Transaction, error)
}

// Service matches open orders against quote snapshots.
//
// A cycle is driven by one batch of quotes: orders whose trigger condition
// holds are grouped under their quote and walked greedily against the
// quote's size on the relevant side. Only full fills execute; a partially
// coverable order and everything queued behind it wait for the next cycle.
type Service struct {
	orders     domain.OrderRepository
	assets     domain.AssetRepository
	securities domain.SecurityRepository
	accounts   domain.AccountRepository
	transfers  TransferCreator
	log        *logrus.Logger
}

// NewService creates a new order matching service
func NewService(
	orders domain.OrderRepository,
	assets domain.AssetRepository,
	securities domain.SecurityRepository,
	accounts domain.AccountRepository,
	transfers TransferCreator,
	log *logrus.Logger,
) *Service {
	return &Service{
		orders:     orders,
		assets:     assets,
		securities: securities,
		accounts:   accounts,
		transfers:  transfers,
		log:        log,
	}
}

// ProcessQuotes runs one matching cycle over a batch of quote snapshots.
// Quotes are worked on by value: the sizes consumed here never leak back
// into the ingested snapshot.
func (s *Service) ProcessQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tickers := make([]string, 0, len(quotes))
	seen := make(map[string]struct{}, len(quotes))
	for _, quote := range quotes {
		if _, ok := seen[quote.Ticker]; ok {
			continue
		}
		seen[quote.Ticker] = struct{}{}
		tickers = append(tickers, quote.Ticker)
	}

	orders, err := s.orders.FindOpenByTickers(ctx, tickers)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	byTicker := make(map[string][]*domain.Order, len(tickers))
	for _, order := range orders {
		byTicker[order.Ticker] = append(byTicker[order.Ticker], order)
	}

	var completed []uuid.UUID
	for _, quote := range quotes {
		var eligibleOrders []*domain.Order
		for _, order := range byTicker[quote.Ticker] {
			if eligible(order, quote) {
				eligibleOrders = append(eligibleOrders, order)
			}
		}
		if len(eligibleOrders) == 0 {
			continue
		}

		for _, order := range fill(quote, eligibleOrders) {
			if err := s.execute(ctx, quote, order); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"order":  order.ID,
					"ticker": order.Ticker,
				}).Warn("Order execution failed, order stays open")
				continue
			}
			completed = append(completed, order.ID)
		}
	}

	if len(completed) == 0 {
		return nil
	}

	return s.orders.Complete(ctx, completed)
}

// eligible reports whether the quote triggers the order. Boundaries are
// inclusive on every comparison.
func eligible(order *domain.Order, quote domain.Quote) bool {
	switch order.Type {
	case domain.OrderTypeMarket:
		return true
	case domain.OrderTypeLimit:
		if order.Direction == domain.DirectionBuy {
			return quote.BidPrice.LessThanOrEqual(order.LimitPrice)
		}
		return quote.AskPrice.GreaterThanOrEqual(order.LimitPrice)
	case domain.OrderTypeStop:
		if order.Direction == domain.DirectionBuy {
			return quote.BidPrice.GreaterThanOrEqual(order.StopPrice)
		}
		return quote.AskPrice.LessThanOrEqual(order.StopPrice)
	case domain.OrderTypeStopLimit:
		if order.Direction == domain.DirectionBuy {
			return quote.BidPrice.GreaterThanOrEqual(order.StopPrice) &&
				quote.AskPrice.LessThanOrEqual(order.LimitPrice)
		}
		return quote.AskPrice.LessThanOrEqual(order.StopPrice) &&
			quote.BidPrice.GreaterThanOrEqual(order.LimitPrice)
	}
	return false
}

// fill runs the two greedy walks on a local copy of the quote sizes.
// Sells consume BidSize, buys consume AskSize, each subset independently
// and in arrival order. The first order a side cannot fully cover stops
// that side's walk; partial fills never happen.
func fill(quote domain.Quote, orders []*domain.Order) []*domain.Order {
	var filled []*domain.Order

	bidSize := quote.BidSize
	askSize := quote.AskSize

	for _, order := range orders {
		if order.Direction != domain.DirectionSell {
			continue
		}
		if order.RemainingPortions.GreaterThan(bidSize) {
			break
		}
		bidSize = bidSize.Sub(order.RemainingPortions)
		filled = append(filled, order)
	}

	for _, order := range orders {
		if order.Direction != domain.DirectionBuy {
			continue
		}
		if order.RemainingPortions.GreaterThan(askSize) {
			break
		}
		askSize = askSize.Sub(order.RemainingPortions)
		filled = append(filled, order)
	}

	return filled
}

// execute turns one filled order into a security transfer and the matching
// asset mutation.
func (s *Service) execute(ctx context.Context, quote domain.Quote, order *domain.Order) error {
	account, err := s.accounts.GetByID(ctx, order.AccountID)
	if err != nil {
		return err
	}
	security, err := s.securities.GetByID(ctx, order.SecurityID)
	if err != nil {
		return err
	}

	if order.Direction == domain.DirectionBuy {
		return s.executeBuy(ctx, quote, order, account, security)
	}
	return s.executeSell(ctx, quote, order, account, security)
}

func (s *Service) executeBuy(ctx context.Context, quote domain.Quote, order *domain.Order, account *domain.Account, security *domain.Security) error {
	_, err := s.transfers.Create(ctx, transfer.Input{
		FromAccountNumber: account.Number,
		FromCurrencyID:    account.CurrencyID,
		ToCurrencyID:      security.CurrencyID,
		Amount:            order.RemainingPortions.Mul(quote.AskPrice),
		Code:              domain.CodeSecurityTrade,
		Purpose:           "Execute order",
	})
	if err != nil {
		return err
	}

	asset, err := s.assets.GetBySecurityAndActuary(ctx, order.SecurityID, account.ClientID)
	switch {
	case err == nil:
		asset.Merge(order.RemainingPortions, quote.AskPrice)
	case errors.Is(err, domain.ErrNotFound):
		asset = &domain.Asset{
			ID:           uuid.New(),
			ActuaryID:    account.ClientID,
			SecurityID:   order.SecurityID,
			Quantity:     order.RemainingPortions,
			AveragePrice: quote.AskPrice,
		}
	default:
		return err
	}

	return s.assets.Save(ctx, asset)
}

func (s *Service) executeSell(ctx context.Context, quote domain.Quote, order *domain.Order, account *domain.Account, security *domain.Security) error {
	asset, err := s.assets.GetBySecurityAndActuary(ctx, order.SecurityID, account.ClientID)
	if err != nil {
		return err
	}

	profit := quote.BidPrice.Sub(asset.AveragePrice).Mul(order.RemainingPortions)

	_, err = s.transfers.Create(ctx, transfer.Input{
		ToAccountNumber: account.Number,
		ToCurrencyID:    account.CurrencyID,
		FromCurrencyID:  security.CurrencyID,
		Amount:          order.RemainingPortions.Mul(quote.BidPrice),
		Profit:          profit,
		Code:            domain.CodeSecurityTrade,
		Purpose:         "Execute order",
	})
	if err != nil {
		return err
	}

	asset.Quantity = asset.Quantity.Sub(order.RemainingPortions)
	if asset.Quantity.LessThanOrEqual(decimal.Zero) {
		return s.assets.Delete(ctx, asset.ID)
	}
	return s.assets.Save(ctx, asset)
}
