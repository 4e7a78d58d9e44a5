package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleRecord struct {
	Name   string
	Amount string
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(NewMemDB())

	record := sampleRecord{Name: "treasury", Amount: "1000"}
	require.NoError(t, store.KVPut([]byte("prism/sample"), &record))

	var loaded sampleRecord
	ok, err := store.KVGet([]byte("prism/sample"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record, loaded)
}

func TestStoreMissingKey(t *testing.T) {
	store := NewStore(NewMemDB())

	var loaded sampleRecord
	ok, err := store.KVGet([]byte("prism/absent"), &loaded)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	store := NewStore(NewMemDB())
	require.Error(t, store.KVPut(nil, sampleRecord{}))
	_, err := store.KVGet(nil, nil)
	require.Error(t, err)
}

func TestAppendDeduplicates(t *testing.T) {
	store := NewStore(NewMemDB())
	key := []byte("prism/index")

	require.NoError(t, store.KVAppend(key, []byte("a")))
	require.NoError(t, store.KVAppend(key, []byte("b")))
	require.NoError(t, store.KVAppend(key, []byte("a")))

	var list [][]byte
	require.NoError(t, store.KVGetList(key, &list))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list)
}

func TestGetListMissingKeyYieldsEmptySlice(t *testing.T) {
	store := NewStore(NewMemDB())

	list := [][]byte{[]byte("stale")}
	require.NoError(t, store.KVGetList([]byte("prism/none"), &list))
	require.Empty(t, list)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	store := NewStore(db)
	require.NoError(t, store.KVPut([]byte("prism/persist"), sampleRecord{Name: "x", Amount: "1"}))
	require.NoError(t, store.Close())

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	var loaded sampleRecord
	ok, err := NewStore(reopened).KVGet([]byte("prism/persist"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", loaded.Name)
}
