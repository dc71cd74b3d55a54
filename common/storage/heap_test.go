package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/models"
)

func newTestAsset(collection, fullPath string, owner uuid.UUID, createdAt time.Time) *models.Asset {
	return &models.Asset{
		Key: models.AssetKey{
			Name:       fullPath,
			FullPath:   fullPath,
			Collection: collection,
			Owner:      owner,
		},
		Encodings: map[models.EncodingType]*models.AssetEncoding{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Version:   1,
	}
}

func TestHeapStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()
	require.NoError(t, store.CreateCollection(ctx, "#dapp"))

	owner := uuid.New()
	asset := newTestAsset("#dapp", "/hello.txt", owner, time.Now())
	require.NoError(t, store.Insert(ctx, "#dapp", "/hello.txt", asset))

	got, err := store.Get(ctx, "#dapp", "/hello.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, asset.Key, got.Key)
	assert.Equal(t, asset.Version, got.Version)
}

func TestHeapStore_UnknownCollection(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()

	_, err := store.Get(ctx, "#missing", "/x")
	assert.Error(t, err)

	err = store.Insert(ctx, "#missing", "/x", &models.Asset{})
	assert.Error(t, err)
}

func TestHeapStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()
	require.NoError(t, store.CreateCollection(ctx, "#dapp"))

	asset := newTestAsset("#dapp", "/a", uuid.New(), time.Now())
	require.NoError(t, store.Insert(ctx, "#dapp", "/a", asset))

	deleted, err := store.Delete(ctx, "#dapp", "/a")
	require.NoError(t, err)
	assert.Equal(t, asset, deleted)

	got, err := store.Get(ctx, "#dapp", "/a")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent path returns nil without error
	deleted, err = store.Delete(ctx, "#dapp", "/a")
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestHeapStore_ListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()
	require.NoError(t, store.CreateCollection(ctx, "#dapp"))

	alice := uuid.New()
	bob := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, "#dapp", "/a.html", newTestAsset("#dapp", "/a.html", alice, base)))
	require.NoError(t, store.Insert(ctx, "#dapp", "/b.html", newTestAsset("#dapp", "/b.html", bob, base.Add(time.Hour))))
	require.NoError(t, store.Insert(ctx, "#dapp", "/c.css", newTestAsset("#dapp", "/c.css", alice, base.Add(2*time.Hour))))

	// Regex filter on full path
	result, err := store.List(ctx, "#dapp", ListParams{
		Filter: ListFilter{MatcherFullPath: `\.html$`},
		Order:  ListOrder{Field: OrderKeys},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.MatchesLength)
	assert.Equal(t, "/a.html", result.Items[0].Key.FullPath)
	assert.Equal(t, "/b.html", result.Items[1].Key.FullPath)

	// Owner filter
	result, err = store.List(ctx, "#dapp", ListParams{
		Filter: ListFilter{Owner: &alice},
		Order:  ListOrder{Field: OrderKeys},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.MatchesLength)

	// Timestamp descending
	result, err = store.List(ctx, "#dapp", ListParams{
		Order: ListOrder{Field: OrderCreatedAt, Desc: true},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.ItemsLength)
	assert.Equal(t, "/c.css", result.Items[0].Key.FullPath)
}

func TestHeapStore_ListBadMatcher(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()
	require.NoError(t, store.CreateCollection(ctx, "#dapp"))

	_, err := store.List(ctx, "#dapp", ListParams{
		Filter: ListFilter{MatcherFullPath: `([`},
	})
	assert.Error(t, err)
}

func TestHeapStore_PaginationStableUnderInserts(t *testing.T) {
	ctx := context.Background()
	store := NewHeapStore()
	require.NoError(t, store.CreateCollection(ctx, "#dapp"))

	now := time.Now()
	for _, path := range []string{"/a", "/c", "/e", "/g"} {
		require.NoError(t, store.Insert(ctx, "#dapp", path, newTestAsset("#dapp", path, uuid.New(), now)))
	}

	page1, err := store.List(ctx, "#dapp", ListParams{
		Order:      ListOrder{Field: OrderKeys},
		Pagination: ListPagination{Limit: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, page1.ItemsLength)
	assert.Equal(t, "/a", page1.Items[0].Key.FullPath)
	assert.Equal(t, "/c", page1.Items[1].Key.FullPath)

	// Insert between the pages; the cursor is a seen key, not an offset,
	// so page 2 must continue after /c regardless.
	require.NoError(t, store.Insert(ctx, "#dapp", "/b", newTestAsset("#dapp", "/b", uuid.New(), now)))

	cursor := page1.Items[1].Key.FullPath
	page2, err := store.List(ctx, "#dapp", ListParams{
		Order:      ListOrder{Field: OrderKeys},
		Pagination: ListPagination{StartAfter: &cursor, Limit: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, page2.ItemsLength)
	assert.Equal(t, "/e", page2.Items[0].Key.FullPath)
	assert.Equal(t, "/g", page2.Items[1].Key.FullPath)
}

func TestMemoryChunkStore_ContentAddressed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChunkStore()

	ref1, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	ref2, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	content, err := store.Get(ctx, ref1)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), content)

	require.NoError(t, store.Delete(ctx, ref1))
	_, err = store.Get(ctx, ref1)
	assert.Error(t, err)
}

func TestFallbackReader_PrefersFastStore(t *testing.T) {
	ctx := context.Background()
	fast := NewHeapStore()
	durable := NewHeapStore()
	require.NoError(t, fast.CreateCollection(ctx, "#dapp"))
	require.NoError(t, durable.CreateCollection(ctx, "#dapp"))

	stableOnly := newTestAsset("#dapp", "/stable", uuid.New(), time.Now())
	require.NoError(t, durable.Insert(ctx, "#dapp", "/stable", stableOnly))

	reader := NewFallbackReader(fast, durable)

	got, err := reader.Get(ctx, "#dapp", "/stable")
	require.NoError(t, err)
	assert.Equal(t, stableOnly, got)

	heapAsset := newTestAsset("#dapp", "/stable", uuid.New(), time.Now())
	require.NoError(t, fast.Insert(ctx, "#dapp", "/stable", heapAsset))

	got, err = reader.Get(ctx, "#dapp", "/stable")
	require.NoError(t, err)
	assert.Equal(t, heapAsset, got)
}
