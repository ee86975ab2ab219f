package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAsset_Merge_WeightedAverage(t *testing.T) {
	asset := &Asset{
		Quantity:     decimal.NewFromInt(10),
		AveragePrice: decimal.NewFromInt(100),
	}

	asset.Merge(decimal.NewFromInt(30), decimal.NewFromInt(120))

	assert.True(t, asset.Quantity.Equal(decimal.NewFromInt(40)))
	// (10*100 + 30*120) / 40 = 115
	assert.True(t, asset.AveragePrice.Equal(decimal.NewFromInt(115)))
}

func TestAsset_Merge_FirstBuy(t *testing.T) {
	asset := &Asset{}

	asset.Merge(decimal.NewFromInt(5), decimal.NewFromInt(95))

	assert.True(t, asset.Quantity.Equal(decimal.NewFromInt(5)))
	assert.True(t, asset.AveragePrice.Equal(decimal.NewFromInt(95)))
}
