package profile

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[string]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (store *MemoryStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	record, ok := store.records[userID]
	return record, ok, nil
}

func (store *MemoryStore) Merge(ctx context.Context, record Record) error {
	if record.UserID == "" {
		return ErrEmptyUserID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.records[record.UserID] = mergeInto(store.records[record.UserID], record)
	return nil
}
