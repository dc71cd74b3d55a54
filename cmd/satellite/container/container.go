package container

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/cmd/satellite/repository"
	"github.com/junobuild/satellite/cmd/satellite/service"
	"github.com/junobuild/satellite/common/batch"
	"github.com/junobuild/satellite/common/bootstrap"
	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/encoding"
	"github.com/junobuild/satellite/common/proposal"
	"github.com/junobuild/satellite/common/ratelimit"
	"github.com/junobuild/satellite/common/routing"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components  *bootstrap.Components
	Controllers []uuid.UUID

	// Engine
	Registry  *rules.Registry
	HeapStore *storage.HeapStore
	Chunks    storage.ChunkStrategy
	Tree      *certification.AssetTree

	// RateLimiter is nil when rate limiting is disabled or Redis is off
	RateLimiter *ratelimit.Limiter

	// Repositories
	StableAssets *repository.StableAssetRepository
	Proposals    *repository.ProposalRepository
	StagedAssets *repository.StagedAssetRepository

	// Services
	UploadService   *service.UploadService
	ServeService    *service.ServeService
	AssetService    *service.AssetService
	ProposalService *service.ProposalService
	ConfigService   *service.ConfigService
}

// NewContainer initializes all services and repositories once
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	controllers, err := parseControllers(components.Config.Service.Controllers)
	if err != nil {
		return nil, err
	}

	registry := rules.NewRegistry()

	heap := storage.NewHeapStore()
	for _, rule := range registry.List() {
		if err := heap.CreateCollection(ctx, rule.Collection); err != nil {
			return nil, fmt.Errorf("failed to seed heap collection: %w", err)
		}
	}

	stableAssets := repository.NewStableAssetRepository(components.DB)

	var chunks storage.ChunkStrategy
	var limiter *ratelimit.Limiter
	if components.Redis != nil {
		chunks = storage.NewRedisChunkStore(components.Redis)
		if components.Config.RateLimit.Enabled {
			limiter = ratelimit.NewLimiter(components.Redis.GetUnderlying(), components.Logger)
		}
	} else {
		chunks = storage.NewMemoryChunkStore()
	}

	certifier, err := certification.NewLocalCertifier(components.Config.Certification.SigningSeed)
	if err != nil {
		return nil, fmt.Errorf("failed to create certifier: %w", err)
	}
	tree := certification.NewAssetTree(certifier)

	configService := service.NewConfigService(components.Logger)

	// Public reads see heap entries first and fall back to the durable store
	reader := storage.NewFallbackReader(heap, stableAssets)
	resolver := routing.NewResolver(reader, rules.DappCollection)

	proposals := repository.NewProposalRepository(components.DB)
	stagedAssets := repository.NewStagedAssetRepository(components.DB)

	liveStore := service.NewAffinityStore(registry, heap, stableAssets)

	proposalService := service.NewProposalService(components.Queue, tree, components.Logger)
	workflow := proposal.NewWorkflow(proposals, stagedAssets, liveStore, chunks, controllers, proposalService)
	proposalService.Bind(workflow)

	uploadService := service.NewUploadService(
		batch.NewManager(components.Config.Upload.BatchTTL),
		encoding.NewBuilder(),
		registry,
		heap, stableAssets,
		chunks,
		tree,
		workflow,
		components.Config.Upload,
		components.Logger,
	)

	serveService := service.NewServeService(
		resolver,
		reader,
		chunks,
		tree,
		configService,
		components.Cache,
		components.Config.Certification.Version,
		components.Logger,
	)

	assetService := service.NewAssetService(
		registry,
		heap, stableAssets,
		chunks,
		tree,
		controllers,
		components.Logger,
	)

	return &Container{
		Components:      components,
		Controllers:     controllers,
		Registry:        registry,
		HeapStore:       heap,
		Chunks:          chunks,
		Tree:            tree,
		RateLimiter:     limiter,
		StableAssets:    stableAssets,
		Proposals:       proposals,
		StagedAssets:    stagedAssets,
		UploadService:   uploadService,
		ServeService:    serveService,
		AssetService:    assetService,
		ProposalService: proposalService,
		ConfigService:   configService,
	}, nil
}

func parseControllers(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid controller id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}
