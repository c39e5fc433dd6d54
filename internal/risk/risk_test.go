package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		start   float64
		current float64
		want    Outcome
	}{
		{"beyond stop loss", 100, 89.9, StopLoss},
		{"exactly stop loss", 100, 90, StopLoss},
		{"just above stop loss", 100, 90.01, Continue},
		{"flat", 100, 100, Continue},
		{"just below take profit", 100, 119.9, Continue},
		{"exactly take profit", 100, 120, TakeProfit},
		{"beyond take profit", 100, 150, TakeProfit},
		{"zero start", 0, 50, Continue},
		{"negative start", -5, 50, Continue},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Evaluate(c.start, c.current, 10, 20))
		})
	}
}

func TestChangePct(t *testing.T) {
	assert.InDelta(t, -21.0, ChangePct(100, 79), 1e-9)
	assert.InDelta(t, 5.0, ChangePct(200, 210), 1e-9)
	assert.Equal(t, 0.0, ChangePct(0, 10))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "stop_loss", StopLoss.String())
	assert.Equal(t, "take_profit", TakeProfit.String())
	assert.Equal(t, "continue", Continue.String())
}
