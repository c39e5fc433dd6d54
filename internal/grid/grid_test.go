package grid

import (
	"futures-grid-bot/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pricesBySide(l Ladder, side models.Side) []float64 {
	var out []float64
	for _, lv := range l.Levels {
		if lv.Side == side {
			out = append(out, lv.Price)
		}
	}
	return out
}

func TestPlanSymmetricLadder(t *testing.T) {
	ladder, err := Plan(Params{
		ReferencePrice: 100,
		Levels:         5,
		SpacingPct:     0.5,
		TotalCapital:   100,
		Leverage:       3,
		Precision:      models.Precision{Price: 2, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, ladder.Levels, 10)
	assert.Empty(t, ladder.Skipped)

	assert.Equal(t, []float64{99.5, 99.0, 98.5, 98.0, 97.5}, pricesBySide(ladder, models.Buy))
	assert.Equal(t, []float64{100.5, 101.0, 101.5, 102.0, 102.5}, pricesBySide(ladder, models.Sell))

	for i, lv := range ladder.Levels {
		assert.Equal(t, i/2+1, lv.Index)
		assert.Equal(t, 0.6, lv.Quantity)
		assert.Zero(t, lv.OrderID)
	}
	assert.Equal(t, models.Buy, ladder.Levels[0].Side)
	assert.Equal(t, models.Sell, ladder.Levels[1].Side)
}

func TestPlanRoundsToTick(t *testing.T) {
	ladder, err := Plan(Params{
		ReferencePrice: 100,
		Levels:         2,
		SpacingPct:     0.3,
		TotalCapital:   100,
		Leverage:       1,
		Precision:      models.Precision{Price: 2, Quantity: 3, PriceTick: 0.25},
	})
	require.NoError(t, err)

	// 99.7 -> 99.75, 99.4 -> 99.5, 100.3 -> 100.25, 100.6 -> 100.5
	assert.Equal(t, []float64{99.75, 99.5}, pricesBySide(ladder, models.Buy))
	assert.Equal(t, []float64{100.25, 100.5}, pricesBySide(ladder, models.Sell))
}

func TestPlanRoundsToPrecision(t *testing.T) {
	ladder, err := Plan(Params{
		ReferencePrice: 65432.17,
		Levels:         3,
		SpacingPct:     0.3,
		TotalCapital:   250,
		Leverage:       5,
		Precision:      models.Precision{Price: 1, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, ladder.Levels, 6)

	// 65432.17 × 0.997 = 65235.87 -> 65235.9
	assert.Equal(t, 65235.9, ladder.Levels[0].Price)
	// 65432.17 × 1.003 = 65628.47 -> 65628.5
	assert.Equal(t, 65628.5, ladder.Levels[1].Price)
	// 250/3×5/65432.17 = 0.006368 -> 0.006
	assert.Equal(t, 0.006, ladder.Levels[0].Quantity)
}

func TestPlanNotionalMatchesCapitalTimesLeverage(t *testing.T) {
	ladder, err := Plan(Params{
		ReferencePrice: 2500,
		Levels:         4,
		SpacingPct:     1,
		TotalCapital:   1000,
		Leverage:       2,
		Precision:      models.Precision{Price: 2, Quantity: 3},
	})
	require.NoError(t, err)

	// quantity sized off the reference price; buys sit below it, sells above
	qtyNotional := 0.0
	for _, lv := range ladder.Levels {
		if lv.Side == models.Buy {
			qtyNotional += lv.Quantity * 2500
		}
	}
	assert.InDelta(t, 2000, qtyNotional, 2000*0.01)
	assert.Less(t, ladder.Notional(models.Buy), ladder.Notional(models.Sell))
}

func TestPlanSkipsZeroQuantity(t *testing.T) {
	ladder, err := Plan(Params{
		ReferencePrice: 60000,
		Levels:         5,
		SpacingPct:     0.5,
		TotalCapital:   10,
		Leverage:       1,
		Precision:      models.Precision{Price: 2, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Empty(t, ladder.Levels)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, ladder.Skipped)
}

func TestPlanDeterministic(t *testing.T) {
	p := Params{ReferencePrice: 1.2345, Levels: 7, SpacingPct: 0.25, TotalCapital: 500, Leverage: 10,
		Precision: models.Precision{Price: 4, Quantity: 0}}
	a, err := Plan(p)
	require.NoError(t, err)
	b, err := Plan(p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPlanRejectsBadInput(t *testing.T) {
	_, err := Plan(Params{ReferencePrice: 0, Levels: 5, SpacingPct: 0.5, TotalCapital: 100, Leverage: 1})
	assert.Error(t, err)
	_, err = Plan(Params{ReferencePrice: 100, Levels: 0, SpacingPct: 0.5, TotalCapital: 100, Leverage: 1})
	assert.Error(t, err)
}
