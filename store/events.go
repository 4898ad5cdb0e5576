package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/errors"
)

// DefaultEventCapacity bounds the event record store when no capacity is
// configured.
const DefaultEventCapacity = 65536

// EventStore keeps the most recently seen event records by id. Writes for an
// existing id replace the stored record. When full, the least recently used
// record is evicted.
type EventStore struct {
	cache *lru.Cache[string, bus.EventRecord]
}

// NewEventStore creates a store holding at most capacity records. A
// non-positive capacity selects DefaultEventCapacity.
func NewEventStore(capacity int) (*EventStore, error) {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	cache, err := lru.New[string, bus.EventRecord](capacity)
	if err != nil {
		return nil, errors.WrapInvalid(err, "EventStore", "NewEventStore", "create cache")
	}
	return &EventStore{cache: cache}, nil
}

// Put stores rec under its id. Records without an id are ignored.
func (s *EventStore) Put(rec bus.EventRecord) {
	if rec.ID == "" {
		return
	}
	s.cache.Add(rec.ID, rec)
}

// Get returns the record for id.
func (s *EventStore) Get(id string) (bus.EventRecord, bool) {
	if id == "" {
		return bus.EventRecord{}, false
	}
	return s.cache.Get(id)
}

// Len returns the number of stored records.
func (s *EventStore) Len() int {
	return s.cache.Len()
}
