// Package risk decides whether the grid keeps running given the balance change since start.
package risk

// Outcome is the result of a risk evaluation.
type Outcome int

const (
	Continue Outcome = iota
	StopLoss
	TakeProfit
)

func (o Outcome) String() string {
	switch o {
	case StopLoss:
		return "stop_loss"
	case TakeProfit:
		return "take_profit"
	default:
		return "continue"
	}
}

// ChangePct returns the percentage change from start to current, or 0 when start is not positive.
func ChangePct(start, current float64) float64 {
	if start <= 0 {
		return 0
	}
	return (current - start) / start * 100
}

// Evaluate compares the balance change against the stop-loss and take-profit
// thresholds, both given as positive percentages and both inclusive.
// A non-positive start balance always yields Continue.
func Evaluate(start, current, stopLossPct, takeProfitPct float64) Outcome {
	if start <= 0 {
		return Continue
	}
	pct := ChangePct(start, current)
	switch {
	case pct <= -stopLossPct:
		return StopLoss
	case pct >= takeProfitPct:
		return TakeProfit
	}
	return Continue
}
