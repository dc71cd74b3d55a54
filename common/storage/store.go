package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/models"
)

// OrderField selects the sort key for asset listings
type OrderField string

const (
	OrderKeys      OrderField = "keys"
	OrderCreatedAt OrderField = "created_at"
	OrderUpdatedAt OrderField = "updated_at"
)

// ListFilter narrows an asset listing. Matcher fields are regular
// expressions applied to the full path and description respectively.
type ListFilter struct {
	MatcherFullPath    string
	MatcherDescription string
	Owner              *uuid.UUID
}

// ListOrder controls listing order
type ListOrder struct {
	Field OrderField
	Desc  bool
}

// ListPagination pages a listing. StartAfter is a previously-seen full path
// (a key cursor, not an offset) so pages stay stable under concurrent
// inserts. Limit of 0 means no limit.
type ListPagination struct {
	StartAfter *string
	Limit      int
}

// ListParams bundles filter, order and pagination
type ListParams struct {
	Filter     ListFilter
	Order      ListOrder
	Pagination ListPagination
}

// ListResult is one page of a listing. MatchesLength counts all matches
// before pagination.
type ListResult struct {
	Items         []*models.Asset
	ItemsLength   int
	MatchesLength int
}

// AssetStrategy is the narrow capability interface over one backing store
// for assets. Heap and stable implementations are injected per collection
// by its declared storage affinity.
type AssetStrategy interface {
	// Get returns the asset at the full path, nil when absent.
	// An unknown collection is an error.
	Get(ctx context.Context, collection, fullPath string) (*models.Asset, error)

	// Insert writes the asset under (collection, fullPath)
	Insert(ctx context.Context, collection, fullPath string, asset *models.Asset) error

	// Delete removes and returns the asset, nil when absent
	Delete(ctx context.Context, collection, fullPath string) (*models.Asset, error)

	// List returns a filtered, ordered, paginated snapshot of the collection
	List(ctx context.Context, collection string, params ListParams) (*ListResult, error)

	// CreateCollection registers a collection namespace
	CreateCollection(ctx context.Context, collection string) error
}

// ChunkStrategy is the content-addressed store for encoding chunk content.
// Put returns a reference derived from the chunk's SHA-256.
type ChunkStrategy interface {
	Put(ctx context.Context, content []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, refs ...string) error
}
