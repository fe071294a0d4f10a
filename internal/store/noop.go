package store

// NoopStore is the default persistence policy: write nothing, load
// nothing. Conversations do not survive a restart.
type NoopStore struct{}

// NewNoopStore returns the no-op store.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (*NoopStore) SaveMessage(Record) error { return nil }

func (*NoopStore) LoadMessages() ([]Record, error) { return nil, nil }

func (*NoopStore) Clear() error { return nil }

func (*NoopStore) Close() error { return nil }
