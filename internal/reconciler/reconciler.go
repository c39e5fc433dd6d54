// Package reconciler folds polled trade history into cumulative statistics,
// counting each exchange trade exactly once.
package reconciler

import (
	"futures-grid-bot/internal/models"
	"sync"
)

// HistoryLimit is the number of most recent trades kept for display.
const HistoryLimit = 50

// Counters are the cumulative trade statistics. Wins + Losses == Total.
type Counters struct {
	Total  int `json:"total_trades"`
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}

// Reconciler deduplicates trades by id across overlapping polling windows.
// The seen set lives for one run and is never trimmed, so a trade that drops
// out of the display history is still never recounted.
type Reconciler struct {
	mu       sync.Mutex
	seen     map[int64]struct{}
	history  []models.Trade // newest first
	counters Counters
}

func New() *Reconciler {
	return &Reconciler{seen: make(map[int64]struct{})}
}

// Prime marks trades as already seen without counting them or adding them to history.
func (r *Reconciler) Prime(trades []models.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range trades {
		r.seen[t.ID] = struct{}{}
	}
}

// Reconcile takes trades in ascending time order and returns those not seen
// before, in the same order. Each new trade is prepended to the history and
// counted as a win when its realized PnL is positive, a loss otherwise.
func (r *Reconciler) Reconcile(trades []models.Trade) []models.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()

	var fresh []models.Trade
	for _, t := range trades {
		if _, dup := r.seen[t.ID]; dup {
			continue
		}
		r.seen[t.ID] = struct{}{}
		fresh = append(fresh, t)

		r.history = append([]models.Trade{t}, r.history...)
		if len(r.history) > HistoryLimit {
			r.history = r.history[:HistoryLimit]
		}

		r.counters.Total++
		if t.RealizedPnl > 0 {
			r.counters.Wins++
		} else {
			r.counters.Losses++
		}
	}
	return fresh
}

// History returns a copy of the retained trades, newest first.
func (r *Reconciler) History() []models.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Trade, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Reconciler) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}
