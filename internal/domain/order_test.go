package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrder_Validate(t *testing.T) {
	valid := Order{
		Ticker:            "AAPL",
		Direction:         DirectionBuy,
		Type:              OrderTypeLimit,
		LimitPrice:        decimal.NewFromInt(100),
		RemainingPortions: decimal.NewFromInt(10),
		Status:            OrderStatusOpen,
	}

	tests := []struct {
		name    string
		mutate  func(*Order)
		wantErr bool
	}{
		{"valid limit buy", func(o *Order) {}, false},
		{"market needs no prices", func(o *Order) {
			o.Type = OrderTypeMarket
			o.LimitPrice = decimal.Zero
		}, false},
		{"empty ticker", func(o *Order) { o.Ticker = "" }, true},
		{"open without portions", func(o *Order) { o.RemainingPortions = decimal.Zero }, true},
		{"limit without limit price", func(o *Order) { o.LimitPrice = decimal.Zero }, true},
		{"stop without stop price", func(o *Order) {
			o.Type = OrderTypeStop
		}, true},
		{"stop-limit needs both prices", func(o *Order) {
			o.Type = OrderTypeStopLimit
			o.StopPrice = decimal.Zero
		}, true},
		{"unknown type", func(o *Order) { o.Type = "ICEBERG" }, true},
		{"unknown direction", func(o *Order) { o.Direction = "HOLD" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := valid
			tt.mutate(&order)
			err := order.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
