package persistence

import (
	"futures-grid-bot/internal/models"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerRepositoryRoundTrip(t *testing.T) {
	repo, err := NewBadgerRepository(t.TempDir())
	require.NoError(t, err)
	defer repo.Close()

	loaded, err := repo.LoadStatus()
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty database should load nothing")

	msg := "stop loss"
	status := &models.BotStatus{
		Running:      true,
		State:        models.StateRunning,
		Symbol:       "BTCUSDT",
		StartBalance: 100,
		Balance:      95,
		Trades:       []models.Trade{{ID: 7, Side: models.Buy, Price: 99.5, Quantity: 0.6}},
		TotalTrades:  1,
		Losses:       1,
		LastUpdate:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Error:        &msg,
		Logs:         []models.LogEntry{{Time: "12:00:00", Level: models.LevelErr, Msg: msg}},
	}
	require.NoError(t, repo.SaveStatus(status))

	loaded, err = repo.LoadStatus()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, status.Symbol, loaded.Symbol)
	assert.Equal(t, status.Trades, loaded.Trades)
	assert.Equal(t, msg, *loaded.Error)
	assert.True(t, status.LastUpdate.Equal(loaded.LastUpdate))
}

func TestBadgerRepositoryOverwrites(t *testing.T) {
	repo, err := newInMemoryBadgerRepository()
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveStatus(&models.BotStatus{Symbol: "BTCUSDT"}))
	require.NoError(t, repo.SaveStatus(&models.BotStatus{Symbol: "ETHUSDT"}))

	loaded, err := repo.LoadStatus()
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", loaded.Symbol)

	assert.Error(t, repo.SaveStatus(nil))
}

func newInMemoryBadgerRepository() (StatusRepository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}
