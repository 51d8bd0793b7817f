package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunnelarr/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSearchHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSearch(ctx, "inception 2010", 12))
	require.NoError(t, store.RecordSearch(ctx, "breaking bad s01e01", 4))

	records, err := store.RecentSearches(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "breaking bad s01e01", records[0].Query)
	assert.Equal(t, 4, records[0].ResultCount)
	assert.Equal(t, "inception 2010", records[1].Query)
}

func TestRecentSearchesLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordSearch(ctx, "query", i))
	}

	records, err := store.RecentSearches(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecordTransferUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	transfer := models.Transfer{
		ID:         "t-1",
		ClientName: "qbittorrent",
		Locator:    "magnet:?xt=urn:btih:abc",
		SavePath:   "/downloads",
		State:      models.TransferGateChecking,
		AddedAt:    now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.RecordTransfer(transfer))

	transfer.State = models.TransferActive
	transfer.HandleID = "abc"
	transfer.Progress = 0.5
	transfer.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.RecordTransfer(transfer))

	stored, err := store.ListTransfers(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1, "re-recording the same transfer must update, not duplicate")

	assert.Equal(t, models.TransferActive, stored[0].State)
	assert.Equal(t, "abc", stored[0].HandleID)
	assert.InDelta(t, 0.5, stored[0].Progress, 1e-9)
}

func TestListTransfersStateFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, state := range []models.TransferState{models.TransferActive, models.TransferDenied, models.TransferActive} {
		require.NoError(t, store.RecordTransfer(models.Transfer{
			ID:         string(rune('a' + i)),
			ClientName: "qbittorrent",
			Locator:    "magnet:?xt=urn:btih:x",
			State:      state,
			AddedAt:    now.Add(time.Duration(i) * time.Second),
			UpdatedAt:  now,
		}))
	}

	active, err := store.ListTransfers(ctx, string(models.TransferActive), 10)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	denied, err := store.ListTransfers(ctx, string(models.TransferDenied), 10)
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, models.TransferDenied, denied[0].State)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.RecordSearch(context.Background(), "persisted", 1))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.RecentSearches(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "persisted", records[0].Query)
}
