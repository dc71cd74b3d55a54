package service

import (
	"context"

	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

// AffinityStore routes asset operations to the heap or stable store
// according to the collection's declared storage affinity
type AffinityStore struct {
	registry *rules.Registry
	heap     storage.AssetStrategy
	stable   storage.AssetStrategy
}

// NewAffinityStore creates the affinity dispatching store
func NewAffinityStore(registry *rules.Registry, heap, stable storage.AssetStrategy) *AffinityStore {
	return &AffinityStore{registry: registry, heap: heap, stable: stable}
}

var _ storage.AssetStrategy = (*AffinityStore)(nil)

func (s *AffinityStore) Get(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	store, err := s.storeFor(collection)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, collection, fullPath)
}

func (s *AffinityStore) Insert(ctx context.Context, collection, fullPath string, asset *models.Asset) error {
	store, err := s.storeFor(collection)
	if err != nil {
		return err
	}
	return store.Insert(ctx, collection, fullPath, asset)
}

func (s *AffinityStore) Delete(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	store, err := s.storeFor(collection)
	if err != nil {
		return nil, err
	}
	return store.Delete(ctx, collection, fullPath)
}

func (s *AffinityStore) List(ctx context.Context, collection string, params storage.ListParams) (*storage.ListResult, error) {
	store, err := s.storeFor(collection)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, collection, params)
}

// CreateCollection registers the namespace on both stores so an affinity
// change never hits an unknown collection
func (s *AffinityStore) CreateCollection(ctx context.Context, collection string) error {
	if err := s.heap.CreateCollection(ctx, collection); err != nil {
		return err
	}
	return s.stable.CreateCollection(ctx, collection)
}

func (s *AffinityStore) storeFor(collection string) (storage.AssetStrategy, error) {
	rule, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	if rule.Affinity == models.AffinityStable {
		return s.stable, nil
	}
	return s.heap, nil
}
