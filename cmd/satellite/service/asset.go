package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

// AssetService is the admin surface over stored assets: listing, lookup
// and deletion across both affinities
type AssetService struct {
	registry    *rules.Registry
	heap        storage.AssetStrategy
	stable      storage.AssetStrategy
	chunks      storage.ChunkStrategy
	tree        *certification.AssetTree
	controllers map[uuid.UUID]struct{}
	log         *logger.Logger
}

// NewAssetService creates the asset service
func NewAssetService(
	registry *rules.Registry,
	heap, stable storage.AssetStrategy,
	chunks storage.ChunkStrategy,
	tree *certification.AssetTree,
	controllers []uuid.UUID,
	log *logger.Logger,
) *AssetService {
	set := make(map[uuid.UUID]struct{}, len(controllers))
	for _, id := range controllers {
		set[id] = struct{}{}
	}
	return &AssetService{
		registry:    registry,
		heap:        heap,
		stable:      stable,
		chunks:      chunks,
		tree:        tree,
		controllers: set,
		log:         log,
	}
}

// List pages the assets of a collection
func (s *AssetService) List(ctx context.Context, collection string, params storage.ListParams) (*storage.ListResult, error) {
	store, err := s.storeFor(ctx, collection)
	if err != nil {
		return nil, err
	}
	return store.List(ctx, collection, params)
}

// Get returns the asset at the path, ErrNotFound when absent
func (s *AssetService) Get(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	store, err := s.storeFor(ctx, collection)
	if err != nil {
		return nil, err
	}

	asset, err := store.Get(ctx, collection, fullPath)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, faults.NotFound("asset %s", fullPath)
	}
	return asset, nil
}

// Delete removes an asset, its chunk content and its certification
// entries. Only the asset owner or a controller may delete.
func (s *AssetService) Delete(ctx context.Context, caller uuid.UUID, collection, fullPath string) error {
	store, err := s.storeFor(ctx, collection)
	if err != nil {
		return err
	}

	existing, err := store.Get(ctx, collection, fullPath)
	if err != nil {
		return err
	}
	if existing == nil {
		return faults.NotFound("asset %s", fullPath)
	}
	if existing.Key.Owner != caller {
		if _, ok := s.controllers[caller]; !ok {
			return faults.PermissionDenied("asset %s does not belong to caller", fullPath)
		}
	}

	deleted, err := store.Delete(ctx, collection, fullPath)
	if err != nil {
		return err
	}

	if deleted != nil {
		var refs []string
		for _, enc := range deleted.Encodings {
			refs = append(refs, enc.ChunkRefs...)
		}
		if len(refs) > 0 {
			if err := s.chunks.Delete(ctx, refs...); err != nil {
				return err
			}
		}
	}

	if collection == rules.DappCollection {
		s.tree.DeleteAsset(fullPath)
	}

	s.log.WithCollection(collection).Info("asset deleted", "full_path", fullPath)
	return nil
}

func (s *AssetService) storeFor(ctx context.Context, collection string) (storage.AssetStrategy, error) {
	rule, err := s.registry.Get(collection)
	if err != nil {
		return nil, err
	}
	if rule.Affinity == models.AffinityStable {
		return s.stable, nil
	}
	return s.heap, nil
}
