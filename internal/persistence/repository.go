package persistence

import "futures-grid-bot/internal/models"

// StatusRepository defines the interface for status snapshot persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StatusRepository interface {
	// SaveStatus atomically replaces the stored snapshot.
	SaveStatus(status *models.BotStatus) error

	// LoadStatus loads the last stored snapshot.
	// If nothing has been stored yet, it returns (nil, nil).
	LoadStatus() (*models.BotStatus, error)

	Close() error
}
