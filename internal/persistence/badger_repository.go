package persistence

import (
	"encoding/json"
	"errors"
	"futures-grid-bot/internal/models"

	"github.com/dgraph-io/badger/v3"
)

var statusKey = []byte("grid_status")

// badgerRepository stores the latest status snapshot as JSON under a single key.
type badgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) the database at dbPath.
func NewBadgerRepository(dbPath string) (StatusRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still come back from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db}, nil
}

func (r *badgerRepository) SaveStatus(status *models.BotStatus) error {
	if status == nil {
		return errors.New("refusing to save nil status")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(statusKey, data)
	})
}

func (r *badgerRepository) LoadStatus() (*models.BotStatus, error) {
	var status models.BotStatus

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statusKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("status value is empty in database")
			}
			return json.Unmarshal(val, &status)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
