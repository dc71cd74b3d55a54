package storage

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// HeapStore is the fast in-process asset store. Assets keep their chunk
// content inline. All access is guarded by a single RWMutex; reads return
// the stored pointers, so callers must treat assets as immutable and
// replace them via Insert.
type HeapStore struct {
	collections map[string]map[string]*models.Asset
	mu          sync.RWMutex
}

// NewHeapStore creates an empty heap store
func NewHeapStore() *HeapStore {
	return &HeapStore{
		collections: make(map[string]map[string]*models.Asset),
	}
}

// CreateCollection registers a collection namespace. Creating an existing
// collection is a no-op.
func (s *HeapStore) CreateCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]*models.Asset)
	}
	return nil
}

// Get returns the asset at the full path, nil when absent
func (s *HeapStore) Get(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets, ok := s.collections[collection]
	if !ok {
		return nil, faults.NotFound("collection %q", collection)
	}
	return assets[fullPath], nil
}

// Insert writes the asset under (collection, fullPath)
func (s *HeapStore) Insert(ctx context.Context, collection, fullPath string, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets, ok := s.collections[collection]
	if !ok {
		return faults.NotFound("collection %q", collection)
	}
	assets[fullPath] = asset
	return nil
}

// Delete removes and returns the asset, nil when absent
func (s *HeapStore) Delete(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets, ok := s.collections[collection]
	if !ok {
		return nil, faults.NotFound("collection %q", collection)
	}
	asset := assets[fullPath]
	delete(assets, fullPath)
	return asset, nil
}

// List returns a filtered, ordered, paginated snapshot of the collection
func (s *HeapStore) List(ctx context.Context, collection string, params ListParams) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets, ok := s.collections[collection]
	if !ok {
		return nil, faults.NotFound("collection %q", collection)
	}

	matches, err := filterAssets(assets, params.Filter)
	if err != nil {
		return nil, err
	}

	sortAssets(matches, params.Order)
	items := paginateAssets(matches, params.Pagination)

	return &ListResult{
		Items:         items,
		ItemsLength:   len(items),
		MatchesLength: len(matches),
	}, nil
}

func filterAssets(assets map[string]*models.Asset, filter ListFilter) ([]*models.Asset, error) {
	var pathRe, descRe *regexp.Regexp
	var err error

	if filter.MatcherFullPath != "" {
		if pathRe, err = regexp.Compile(filter.MatcherFullPath); err != nil {
			return nil, faults.Validation("bad full_path matcher %q", filter.MatcherFullPath)
		}
	}
	if filter.MatcherDescription != "" {
		if descRe, err = regexp.Compile(filter.MatcherDescription); err != nil {
			return nil, faults.Validation("bad description matcher %q", filter.MatcherDescription)
		}
	}

	matches := make([]*models.Asset, 0, len(assets))
	for _, asset := range assets {
		if pathRe != nil && !pathRe.MatchString(asset.Key.FullPath) {
			continue
		}
		if descRe != nil && !descRe.MatchString(asset.Key.Description) {
			continue
		}
		if filter.Owner != nil && asset.Key.Owner != *filter.Owner {
			continue
		}
		matches = append(matches, asset)
	}
	return matches, nil
}

func sortAssets(assets []*models.Asset, order ListOrder) {
	less := func(a, b *models.Asset) bool {
		switch order.Field {
		case OrderCreatedAt:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case OrderUpdatedAt:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		}
		// Key order doubles as the tie-break for timestamp sorts so the
		// cursor stays deterministic.
		return a.Key.FullPath < b.Key.FullPath
	}

	sort.SliceStable(assets, func(i, j int) bool {
		if order.Desc {
			return less(assets[j], assets[i])
		}
		return less(assets[i], assets[j])
	})
}

func paginateAssets(assets []*models.Asset, pagination ListPagination) []*models.Asset {
	start := 0
	if pagination.StartAfter != nil {
		for i, asset := range assets {
			if asset.Key.FullPath == *pagination.StartAfter {
				start = i + 1
				break
			}
		}
	}
	if start >= len(assets) {
		return nil
	}

	end := len(assets)
	if pagination.Limit > 0 && start+pagination.Limit < end {
		end = start + pagination.Limit
	}

	out := make([]*models.Asset, end-start)
	copy(out, assets[start:end])
	return out
}
