package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/batch"
	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/config"
	"github.com/junobuild/satellite/common/encoding"
	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/proposal"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

// InitUploadRequest opens an upload session
type InitUploadRequest struct {
	Collection   string              `json:"collection"`
	FullPath     string              `json:"full_path"`
	Name         string              `json:"name"`
	Token        *string             `json:"token,omitempty"`
	Description  string              `json:"description,omitempty"`
	EncodingType models.EncodingType `json:"encoding_type,omitempty"`
	ProposalID   *uint64             `json:"proposal_id,omitempty"`
}

// UploadService drives the chunked upload flow: init a batch, accept
// chunks, and commit the batch into an asset. Committed assets go to the
// live store of the collection's affinity, or to the proposal's staged
// store when the batch is bound to one.
type UploadService struct {
	batches  *batch.Manager
	builder  *encoding.Builder
	registry *rules.Registry
	heap     storage.AssetStrategy
	stable   storage.AssetStrategy
	chunks   storage.ChunkStrategy
	tree     *certification.AssetTree
	workflow *proposal.Workflow
	upload   config.UploadConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewUploadService creates the upload service
func NewUploadService(
	batches *batch.Manager,
	builder *encoding.Builder,
	registry *rules.Registry,
	heap, stable storage.AssetStrategy,
	chunks storage.ChunkStrategy,
	tree *certification.AssetTree,
	workflow *proposal.Workflow,
	upload config.UploadConfig,
	log *logger.Logger,
) *UploadService {
	return &UploadService{
		batches:  batches,
		builder:  builder,
		registry: registry,
		heap:     heap,
		stable:   stable,
		chunks:   chunks,
		tree:     tree,
		workflow: workflow,
		upload:   upload,
		log:      log,
		now:      time.Now,
	}
}

// InitUpload validates the target and opens an upload session
func (s *UploadService) InitUpload(ctx context.Context, caller uuid.UUID, req InitUploadRequest) (*models.Batch, error) {
	if _, err := s.registry.Get(req.Collection); err != nil {
		return nil, err
	}

	if err := validateFullPath(req.FullPath); err != nil {
		return nil, err
	}

	key := models.AssetKey{
		Name:        req.Name,
		FullPath:    req.FullPath,
		Collection:  req.Collection,
		Owner:       caller,
		Token:       req.Token,
		Description: req.Description,
	}

	b := s.batches.CreateBatch(key, req.EncodingType, req.ProposalID)

	s.log.WithCollection(req.Collection).WithBatchID(b.ID).Info("upload session opened",
		"full_path", req.FullPath,
	)
	return b, nil
}

// UploadChunk appends one content chunk to the batch
func (s *UploadService) UploadChunk(ctx context.Context, batchID uint64, orderIndex int, content []byte) (uint64, error) {
	if int64(len(content)) > s.upload.MaxChunkSize {
		return 0, faults.Validation("chunk of %d bytes exceeds the %d byte limit", len(content), s.upload.MaxChunkSize)
	}
	return s.batches.CreateChunk(batchID, orderIndex, content)
}

// CommitBatch materializes the batch into an asset. The committed asset
// merges into any existing asset at the same path: new encodings added,
// version bumped, created_at preserved. derived lists extra encodings to
// materialize server-side from the uploaded chunks (gzip over identity).
func (s *UploadService) CommitBatch(ctx context.Context, caller uuid.UUID, batchID uint64, headers []models.HeaderField, derived []models.EncodingType) (*models.Asset, error) {
	b, content, err := s.batches.Prepare(batchID, caller)
	if err != nil {
		return nil, err
	}

	if len(content) > s.upload.MaxChunksPerItem {
		return nil, faults.Validation("batch %d has %d chunks, limit is %d", batchID, len(content), s.upload.MaxChunksPerItem)
	}

	rule, err := s.registry.Get(b.Key.Collection)
	if err != nil {
		return nil, err
	}

	requested := append([]models.EncodingType{b.EncodingType}, derived...)
	encodings, err := s.builder.Materialize(requested, b.EncodingType, content)
	if err != nil {
		return nil, err
	}

	asset, err := s.assembleAsset(ctx, b, rule, headers, encodings)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Admit(asset, encodings[b.EncodingType].TotalLength); err != nil {
		return nil, err
	}

	committed := make([]models.EncodingType, 0, len(encodings))
	for encType := range encodings {
		committed = append(committed, encType)
	}

	if b.ProposalID != nil {
		if err := s.stageAsset(ctx, caller, *b.ProposalID, asset, committed); err != nil {
			return nil, err
		}
		s.batches.Remove(batchID)
		return asset, nil
	}

	if err := s.persistAsset(ctx, asset, rule.Affinity, committed); err != nil {
		return nil, err
	}

	if b.Key.Collection == rules.DappCollection {
		s.certify(asset)
	}

	s.batches.Remove(batchID)

	s.log.WithCollection(b.Key.Collection).WithBatchID(batchID).Info("batch committed",
		"full_path", b.Key.FullPath,
		"encoding", b.EncodingType,
		"total_length", encodings[b.EncodingType].TotalLength,
		"version", asset.Version,
	)
	return asset, nil
}

// assembleAsset merges the committed encodings into the existing asset at
// the path, or starts a fresh one
func (s *UploadService) assembleAsset(ctx context.Context, b *models.Batch, rule *models.CollectionRule, headers []models.HeaderField, encodings map[models.EncodingType]*models.AssetEncoding) (*models.Asset, error) {
	now := s.now()

	asset := &models.Asset{
		Key:       b.Key,
		Headers:   headers,
		Encodings: encodings,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	// Staged commits replace, not merge; only the live path looks back
	if b.ProposalID != nil {
		return asset, nil
	}

	existing, err := s.storeFor(rule.Affinity).Get(ctx, b.Key.Collection, b.Key.FullPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		for encType, e := range existing.Encodings {
			if _, committed := asset.Encodings[encType]; !committed {
				asset.Encodings[encType] = e
			}
		}
		asset.CreatedAt = existing.CreatedAt
		asset.Version = existing.Version + 1
	}
	return asset, nil
}

func (s *UploadService) persistAsset(ctx context.Context, asset *models.Asset, affinity models.StorageAffinity, committed []models.EncodingType) error {
	if affinity == models.AffinityStable {
		for _, encType := range committed {
			if err := s.externalizeChunks(ctx, asset.Encodings[encType]); err != nil {
				return err
			}
		}
	}
	return s.storeFor(affinity).Insert(ctx, asset.Key.Collection, asset.Key.FullPath, asset)
}

// stageAsset pushes chunk content to the content-addressed store and
// records the asset under the proposal
func (s *UploadService) stageAsset(ctx context.Context, caller uuid.UUID, proposalID uint64, asset *models.Asset, committed []models.EncodingType) error {
	for _, encType := range committed {
		if err := s.externalizeChunks(ctx, asset.Encodings[encType]); err != nil {
			return err
		}
	}
	return s.workflow.Stage(ctx, caller, proposalID, asset)
}

// externalizeChunks moves inline chunk content into the content-addressed
// chunk store, leaving only references on the encoding
func (s *UploadService) externalizeChunks(ctx context.Context, enc *models.AssetEncoding) error {
	if len(enc.ContentChunks) == 0 {
		return nil
	}

	refs := make([]string, len(enc.ContentChunks))
	for i, chunk := range enc.ContentChunks {
		ref, err := s.chunks.Put(ctx, chunk)
		if err != nil {
			return err
		}
		refs[i] = ref
	}
	enc.ChunkRefs = refs
	enc.ContentChunks = nil
	return nil
}

func (s *UploadService) certify(asset *models.Asset) {
	s.tree.InsertAsset(asset.Key.FullPath, asset.Headers, 200, bodyHash(asset))
}

func (s *UploadService) storeFor(affinity models.StorageAffinity) storage.AssetStrategy {
	if affinity == models.AffinityStable {
		return s.stable
	}
	return s.heap
}

// bodyHash picks the digest certified for the asset: the identity
// representation when present, else the first committed encoding
func bodyHash(asset *models.Asset) []byte {
	if enc := asset.Encoding(models.EncodingIdentity); enc != nil {
		return enc.SHA256
	}

	types := asset.AvailableEncodings()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		return asset.Encodings[t].SHA256
	}
	return nil
}

func validateFullPath(fullPath string) error {
	if !strings.HasPrefix(fullPath, "/") {
		return faults.Validation("full path %q must start with /", fullPath)
	}
	if strings.Contains(fullPath, "..") {
		return faults.Validation("full path %q must not contain path traversal", fullPath)
	}
	if strings.HasPrefix(fullPath, "/.well-known/ic-") {
		return faults.Validation("full path %q collides with a reserved prefix", fullPath)
	}
	return nil
}
