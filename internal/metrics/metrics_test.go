package metrics

import (
	"futures-grid-bot/internal/models"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetStateFlipsSeries(t *testing.T) {
	SetState(models.StateRunning)
	assert.Equal(t, 1.0, testutil.ToFloat64(loopState.WithLabelValues(string(models.StateRunning))))
	assert.Equal(t, 0.0, testutil.ToFloat64(loopState.WithLabelValues(string(models.StateIdle))))

	SetState(models.StateStopped)
	assert.Equal(t, 0.0, testutil.ToFloat64(loopState.WithLabelValues(string(models.StateRunning))))
	assert.Equal(t, 1.0, testutil.ToFloat64(loopState.WithLabelValues(string(models.StateStopped))))
}
