package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := New(NewMemoryStore(), logrus.New())

	in := payload{Name: "page one", Count: 42}
	require.NoError(t, c.Put(ListingsPageKey(1), in))

	var out payload
	ok := c.Get(ListingsPageKey(1), TTLListingsPage, &out)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := New(NewMemoryStore(), logrus.New())

	var out payload
	assert.False(t, c.Get("listings/page-99", TTLListingsPage, &out))
}

func TestCache_MissAfterExpiry(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, logrus.New())

	// Write an entry whose timestamp is already past the TTL. The
	// backing data is still present but Get must report a miss.
	data, err := json.Marshal(payload{Name: "stale"})
	require.NoError(t, err)
	raw, err := json.Marshal(Entry{Timestamp: time.Now().Add(-13 * time.Hour), Data: data})
	require.NoError(t, err)
	require.NoError(t, store.Put(ListingsPageKey(1), raw))

	var out payload
	assert.False(t, c.Get(ListingsPageKey(1), TTLListingsPage, &out))

	_, stillThere := store.Get(ListingsPageKey(1))
	assert.True(t, stillThere)
}

func TestCache_MissOnCorruptEntry(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, logrus.New())
	require.NoError(t, store.Put("listings/page-1", []byte("{not json")))

	var out payload
	assert.False(t, c.Get("listings/page-1", TTLListingsPage, &out))
}

func TestCache_PutOverwrites(t *testing.T) {
	c := New(NewMemoryStore(), logrus.New())
	require.NoError(t, c.Put("listings/page-1", payload{Name: "old"}))
	require.NoError(t, c.Put("listings/page-1", payload{Name: "new"}))

	var out payload
	require.True(t, c.Get("listings/page-1", TTLListingsPage, &out))
	assert.Equal(t, "new", out.Name)
}

func TestCache_ClearIsPerResourceClass(t *testing.T) {
	c := New(NewMemoryStore(), logrus.New())
	require.NoError(t, c.Put(ListingsPageKey(1), payload{Name: "page"}))
	require.NoError(t, c.Put(IsochroneSetKey, payload{Name: "polygons"}))

	require.NoError(t, c.Clear(ListingsPrefix))

	var out payload
	assert.False(t, c.Get(ListingsPageKey(1), TTLListingsPage, &out))
	assert.True(t, c.Get(IsochroneSetKey, TTLIsochrones, &out))
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "cache"), logrus.New())

	// Backing directory is created on first write.
	require.NoError(t, store.Put("listings/page-3", []byte(`{"a":1}`)))

	data, ok := store.Get("listings/page-3")
	require.True(t, ok)
	assert.Equal(t, []byte(`{"a":1}`), data)

	_, ok = store.Get("listings/page-4")
	assert.False(t, ok)
}

func TestFileStore_Clear(t *testing.T) {
	store := NewFileStore(t.TempDir(), logrus.New())
	require.NoError(t, store.Put("listings/page-1", []byte("a")))
	require.NoError(t, store.Put("isochrones/set", []byte("b")))

	require.NoError(t, store.Clear("listings/"))

	_, ok := store.Get("listings/page-1")
	assert.False(t, ok)
	_, ok = store.Get("isochrones/set")
	assert.True(t, ok)
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, logrus.New())
	require.NoError(t, store.Put("listings/page-1", []byte("a")))

	entries, err := os.ReadDir(filepath.Join(dir, "listings"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "page-1.json", entries[0].Name())
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "listings/page-1", sanitizeKey("listings/page-1"))
	assert.Equal(t, "etc/passwd", sanitizeKey("../etc/passwd"))
	assert.Equal(t, "a/b", sanitizeKey("a//b"))
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), logrus.New())
	require.NoError(t, err)

	require.NoError(t, store.Put("listings/page-1", []byte("one")))
	require.NoError(t, store.Put("listings/page-1", []byte("two")))

	data, ok := store.Get("listings/page-1")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), data)

	require.NoError(t, store.Clear("listings/"))
	_, ok = store.Get("listings/page-1")
	assert.False(t, ok)
}
