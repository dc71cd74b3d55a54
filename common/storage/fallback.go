package storage

import (
	"context"
	"errors"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// FallbackReader resolves public asset reads across both backing stores.
// Callers of the serving path do not know a priori which affinity a
// collection declares, so reads prefer the fast store and fall back to the
// durable one transparently.
type FallbackReader struct {
	fast    AssetStrategy
	durable AssetStrategy
}

// NewFallbackReader combines the fast and durable strategies
func NewFallbackReader(fast, durable AssetStrategy) *FallbackReader {
	return &FallbackReader{fast: fast, durable: durable}
}

// Get returns the asset from the fast store when present, otherwise from
// the durable store. Unknown collections in one store are not an error as
// long as the other store resolves them.
func (r *FallbackReader) Get(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	asset, err := r.fast.Get(ctx, collection, fullPath)
	if err == nil && asset != nil {
		return asset, nil
	}
	if err != nil && !errors.Is(err, faults.ErrNotFound) {
		return nil, err
	}

	if r.durable == nil {
		return asset, err
	}
	return r.durable.Get(ctx, collection, fullPath)
}
