package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of an order
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderType is the trigger condition family of an order
type OrderType string

const (
	OrderTypeMarket    OrderType = "MARKET"
	OrderTypeLimit     OrderType = "LIMIT"
	OrderTypeStop      OrderType = "STOP"
	OrderTypeStopLimit OrderType = "STOP_LIMIT"
)

// OrderStatus tracks the order lifecycle. Orders enter the matcher Open and
// leave it Completed once fully consumed by a quote.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusDeclined  OrderStatus = "DECLINED"
)

// Order is a standing instruction to buy or sell a quantity ("portions")
// of a security once its trigger condition holds
type Order struct {
	ID                uuid.UUID
	SecurityID        uuid.UUID
	Ticker            string
	AccountID         uuid.UUID
	Direction         Direction
	Type              OrderType
	LimitPrice        decimal.Decimal
	StopPrice         decimal.Decimal
	RemainingPortions decimal.Decimal
	Status            OrderStatus
	CreatedAt         time.Time
}

// Validate ensures the order adheres to domain rules
func (o *Order) Validate() error {
	if o.Ticker == "" {
		return errors.New("order ticker cannot be empty")
	}

	if o.Status == OrderStatusOpen && o.RemainingPortions.LessThanOrEqual(decimal.Zero) {
		return errors.New("open order must have remaining portions")
	}

	switch o.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.LimitPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("limit order must have a positive limit price")
		}
	case OrderTypeStop:
		if o.StopPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("stop order must have a positive stop price")
		}
	case OrderTypeStopLimit:
		if o.LimitPrice.LessThanOrEqual(decimal.Zero) || o.StopPrice.LessThanOrEqual(decimal.Zero) {
			return errors.New("stop-limit order must have positive limit and stop prices")
		}
	default:
		return errors.New("order type must be MARKET, LIMIT, STOP or STOP_LIMIT")
	}

	if o.Direction != DirectionBuy && o.Direction != DirectionSell {
		return errors.New("order direction must be BUY or SELL")
	}

	return nil
}
