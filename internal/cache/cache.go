package cache

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// TTLs per resource class. Isochrones barely change; listings pages go
// stale within a day.
const (
	TTLListingsPage = 12 * time.Hour
	TTLIsochrones   = 7 * 24 * time.Hour
)

// Key namespaces. Clearing one resource class never touches the other.
const (
	ListingsPrefix   = "listings/"
	IsochronePrefix  = "isochrones/"
	IsochroneSetKey  = IsochronePrefix + "set"
	listingsPageStem = ListingsPrefix + "page-"
)

// ListingsPageKey returns the cache key for one upstream page.
func ListingsPageKey(page int) string {
	return listingsPageStem + strconv.Itoa(page)
}

// Entry wraps a cached payload with the time it was written. Expiry is
// evaluated at read time against the resource's TTL.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store is a pluggable raw key-value backend. A Get that cannot return
// the stored bytes for any reason reports a miss, never an error.
// Put must be atomic enough that a concurrent reader never observes a
// partially-written value.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
	Clear(prefix string) error
}

// Cache layers the TTL envelope and JSON serialization over any Store.
type Cache struct {
	store  Store
	logger *logrus.Logger
}

func New(store Store, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{store: store, logger: logger}
}

// Get unmarshals the entry for key into out and reports whether it was
// usable. Absent, corrupt, and expired entries are all plain misses;
// the caller refetches in every case.
func (c *Cache) Get(key string, ttl time.Duration, out interface{}) bool {
	raw, ok := c.store.Get(key)
	if !ok {
		return false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding corrupt cache entry")
		return false
	}
	if time.Since(entry.Timestamp) > ttl {
		c.logger.WithFields(logrus.Fields{
			"key": key,
			"age": time.Since(entry.Timestamp).String(),
			"ttl": ttl.String(),
		}).Debug("Cache entry expired")
		return false
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable cache payload")
		return false
	}
	return true
}

// Put overwrites any prior entry for key.
func (c *Cache) Put(key string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(Entry{Timestamp: time.Now(), Data: payload})
	if err != nil {
		return err
	}
	return c.store.Put(key, raw)
}

// Clear drops every entry in one resource class.
func (c *Cache) Clear(prefix string) error {
	return c.store.Clear(prefix)
}
