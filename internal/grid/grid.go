// Package grid computes the symmetric ladder of limit orders around a reference price.
package grid

import (
	"fmt"
	"futures-grid-bot/internal/models"

	"github.com/shopspring/decimal"
)

// Params holds everything the planner needs. It carries no exchange state.
type Params struct {
	ReferencePrice float64
	Levels         int
	SpacingPct     float64 // 0.5 means 0.5%
	TotalCapital   float64
	Leverage       int
	Precision      models.Precision
}

// Ladder is the planned set of orders.
type Ladder struct {
	Levels  []models.GridLevel
	Skipped []int // level indices whose rounded quantity was not positive
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Plan returns, for i = 1..N, a buy at P·(1−s·i) and a sell at P·(1+s·i), each
// rounded to the nearest price tick (or to the price precision when no tick is known), with quantity (capital/N·leverage)/P rounded
// to the quantity precision. Output order is buy_1, sell_1, buy_2, sell_2, ...
// Plan is deterministic and performs no I/O.
func Plan(p Params) (Ladder, error) {
	if p.ReferencePrice <= 0 {
		return Ladder{}, fmt.Errorf("reference price must be positive, got %v", p.ReferencePrice)
	}
	if p.Levels <= 0 {
		return Ladder{}, fmt.Errorf("level count must be positive, got %d", p.Levels)
	}

	ref := decimal.NewFromFloat(p.ReferencePrice)
	spacing := decimal.NewFromFloat(p.SpacingPct).Div(hundred)
	pricePlaces := int32(p.Precision.Price)
	roundPrice := func(v decimal.Decimal) decimal.Decimal {
		if p.Precision.PriceTick > 0 {
			tick := decimal.NewFromFloat(p.Precision.PriceTick)
			v = v.Div(tick).Round(0).Mul(tick)
		}
		return v.Round(pricePlaces)
	}

	perLevel := decimal.NewFromFloat(p.TotalCapital).
		Div(decimal.NewFromInt(int64(p.Levels))).
		Mul(decimal.NewFromInt(int64(p.Leverage)))
	qty := perLevel.Div(ref).Round(int32(p.Precision.Quantity))

	ladder := Ladder{Levels: make([]models.GridLevel, 0, 2*p.Levels)}
	for i := 1; i <= p.Levels; i++ {
		offset := spacing.Mul(decimal.NewFromInt(int64(i)))
		buy := roundPrice(ref.Mul(one.Sub(offset)))
		sell := roundPrice(ref.Mul(one.Add(offset)))

		if !qty.IsPositive() || !buy.IsPositive() {
			ladder.Skipped = append(ladder.Skipped, i)
			continue
		}

		q := qty.InexactFloat64()
		ladder.Levels = append(ladder.Levels,
			models.GridLevel{Index: i, Side: models.Buy, Price: buy.InexactFloat64(), Quantity: q},
			models.GridLevel{Index: i, Side: models.Sell, Price: sell.InexactFloat64(), Quantity: q},
		)
	}
	return ladder, nil
}

// Notional returns Σ price×quantity over one side of the ladder.
func (l Ladder) Notional(side models.Side) float64 {
	total := decimal.Zero
	for _, lv := range l.Levels {
		if lv.Side == side {
			total = total.Add(decimal.NewFromFloat(lv.Price).Mul(decimal.NewFromFloat(lv.Quantity)))
		}
	}
	return total.InexactFloat64()
}
