// Package store persists conversation timelines. The default policy is
// no durability: the no-op store drops everything, and Clear is invoked
// on session init so a durable store starts fresh too. The SQLite
// implementation can be enabled through configuration without touching
// the session controller's contract.
package store

import "time"

// Record is one persisted timeline message.
type Record struct {
	ID         string
	Index      int
	Sender     string
	Text       string
	IsVoice    bool
	ImageCount int
	CreatedAt  time.Time
}

// ConversationStore is the persistence collaborator.
type ConversationStore interface {
	// SaveMessage appends one record.
	SaveMessage(rec Record) error

	// LoadMessages returns all records in timeline order.
	LoadMessages() ([]Record, error)

	// Clear removes all persisted records.
	Clear() error

	// Close releases underlying resources.
	Close() error
}
