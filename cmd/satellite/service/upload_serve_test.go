package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/batch"
	"github.com/junobuild/satellite/common/cache"
	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/config"
	"github.com/junobuild/satellite/common/encoding"
	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/proposal"
	"github.com/junobuild/satellite/common/routing"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

type engineFixture struct {
	uploads    *UploadService
	serve      *ServeService
	assets     *AssetService
	configSvc  *ConfigService
	workflow   *proposal.Workflow
	heap       *storage.HeapStore
	stable     *storage.HeapStore
	chunks     *storage.MemoryChunkStore
	tree       *certification.AssetTree
	owner      uuid.UUID
	controller uuid.UUID
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()
	log := logger.New("error", "text")

	registry := rules.NewRegistry()
	heap := storage.NewHeapStore()
	stable := storage.NewHeapStore()
	require.NoError(t, heap.CreateCollection(ctx, rules.DappCollection))
	require.NoError(t, stable.CreateCollection(ctx, rules.DappCollection))

	chunks := storage.NewMemoryChunkStore()

	certifier, err := certification.NewLocalCertifier("test-seed")
	require.NoError(t, err)
	tree := certification.NewAssetTree(certifier)

	f := &engineFixture{
		heap:       heap,
		stable:     stable,
		chunks:     chunks,
		tree:       tree,
		owner:      uuid.New(),
		controller: uuid.New(),
	}

	live := NewAffinityStore(registry, heap, stable)
	f.workflow = proposal.NewWorkflow(
		proposal.NewMemoryStore(), proposal.NewMemoryStagedStore(),
		live, chunks, []uuid.UUID{f.controller}, nil,
	)

	uploadCfg := config.UploadConfig{
		BatchTTL:         5 * time.Minute,
		MaxChunkSize:     1 << 20,
		MaxChunksPerItem: 100,
	}

	f.uploads = NewUploadService(
		batch.NewManager(uploadCfg.BatchTTL),
		encoding.NewBuilder(),
		registry,
		heap, stable,
		chunks,
		tree,
		f.workflow,
		uploadCfg,
		log,
	)

	f.configSvc = NewConfigService(log)

	reader := storage.NewFallbackReader(heap, stable)
	f.serve = NewServeService(
		routing.NewResolver(reader, rules.DappCollection),
		reader,
		chunks,
		tree,
		f.configSvc,
		cache.NewMemoryCache(log),
		2,
		log,
	)

	f.assets = NewAssetService(registry, heap, stable, chunks, tree, []uuid.UUID{f.controller}, log)
	return f
}

func (f *engineFixture) upload(t *testing.T, fullPath string, chunks ...[]byte) *models.Asset {
	t.Helper()
	ctx := context.Background()

	b, err := f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection,
		FullPath:   fullPath,
		Name:       fullPath,
	})
	require.NoError(t, err)

	for i, chunk := range chunks {
		_, err := f.uploads.UploadChunk(ctx, b.ID, i, chunk)
		require.NoError(t, err)
	}

	asset, err := f.uploads.CommitBatch(ctx, f.owner, b.ID, []models.HeaderField{
		{Name: "Content-Type", Value: "text/html"},
	}, nil)
	require.NoError(t, err)
	return asset
}

func TestUpload_CommitStoresAndCertifies(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	emptyRoot := f.tree.Root()

	asset := f.upload(t, "/index.html", []byte("<html>hello</html>"))

	stored, err := f.heap.Get(ctx, rules.DappCollection, "/index.html")
	require.NoError(t, err)
	require.NotNil(t, stored)

	expected := sha256.Sum256([]byte("<html>hello</html>"))
	assert.Equal(t, expected[:], asset.Encoding(models.EncodingIdentity).SHA256)
	assert.Equal(t, uint64(18), asset.Encoding(models.EncodingIdentity).TotalLength)

	// Commit certifies the asset
	assert.NotEqual(t, emptyRoot, f.tree.Root())
}

func TestUpload_RecommitBumpsVersionAndKeepsCreatedAt(t *testing.T) {
	f := newEngine(t)

	first := f.upload(t, "/page.html", []byte("v1"))
	second := f.upload(t, "/page.html", []byte("v2"))

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestUpload_ValidatesTarget(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	_, err := f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: "#ghost", FullPath: "/x.html",
	})
	assert.ErrorIs(t, err, faults.ErrNotFound)

	_, err = f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection, FullPath: "relative.html",
	})
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection, FullPath: "/../escape",
	})
	assert.ErrorIs(t, err, faults.ErrValidation)

	_, err = f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection, FullPath: "/.well-known/ic-domains",
	})
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestUpload_ChunkSizeLimit(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	b, err := f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection, FullPath: "/big.bin",
	})
	require.NoError(t, err)

	_, err = f.uploads.UploadChunk(ctx, b.ID, 0, make([]byte, (1<<20)+1))
	assert.ErrorIs(t, err, faults.ErrValidation)
}

func TestServe_AssetWithCertificationHeaders(t *testing.T) {
	f := newEngine(t)
	f.upload(t, "/index.html", []byte("<html>hello</html>"))

	resp, err := f.serve.Serve(context.Background(), "/", "")
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []byte("<html>hello</html>"), resp.Body)

	names := headerNames(resp.Headers)
	assert.Contains(t, names, "Ic-Certificate")
	assert.Contains(t, names, "Ic-CertificateExpression")
	assert.Contains(t, names, "ETag")
	assert.Nil(t, resp.StreamToken)
}

func TestServe_AliasResolution(t *testing.T) {
	f := newEngine(t)
	f.upload(t, "/hello.html", []byte("<p>hi</p>"))

	resp, err := f.serve.Serve(context.Background(), "/hello", "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []byte("<p>hi</p>"), resp.Body)
}

func TestServe_WitnessCoversRequestedPath(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	asset := f.upload(t, "/hello.html", []byte("<p>hi</p>"))

	// An alias request certifies under the path the client asked for,
	// not the asset's storage path
	resp, err := f.serve.Serve(ctx, "/hello", "")
	require.NoError(t, err)

	aliasWitness, err := f.tree.WitnessFor("/hello", 2, asset.Headers)
	require.NoError(t, err)
	assert.Equal(t, aliasWitness.HeaderValue, headerValue(resp.Headers, "Ic-Certificate"))

	exactWitness, err := f.tree.WitnessFor("/hello.html", 2, asset.Headers)
	require.NoError(t, err)
	assert.NotEqual(t, exactWitness.HeaderValue, headerValue(resp.Headers, "Ic-Certificate"))
}

func TestServe_RewriteWitnessCoversSourcePath(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	asset := f.upload(t, "/index.html", []byte("<spa/>"))

	_, err := f.configSvc.Set(&models.StorageConfig{
		Rewrites: map[string]string{"/app/*": "/index.html"},
		Version:  1,
	})
	require.NoError(t, err)

	resp, err := f.serve.Serve(ctx, "/app/deep/route", "")
	require.NoError(t, err)

	witness, err := f.tree.WitnessFor("/app/deep/route", 2, asset.Headers)
	require.NoError(t, err)
	assert.Equal(t, witness.HeaderValue, headerValue(resp.Headers, "Ic-Certificate"))
}

func TestServe_NotFoundWitnessCoversRequestedPath(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	page := f.upload(t, "/404.html", []byte("<h1>gone</h1>"))

	resp, err := f.serve.Serve(ctx, "/missing", "")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	// The fallback serves under the requested path's wildcard entry
	witness, err := f.tree.WitnessFor("/missing", 2, page.Headers)
	require.NoError(t, err)
	assert.Equal(t, witness.HeaderValue, headerValue(resp.Headers, "Ic-Certificate"))
}

func TestServe_RewriteThroughConfig(t *testing.T) {
	f := newEngine(t)
	f.upload(t, "/index.html", []byte("<spa/>"))

	_, err := f.configSvc.Set(&models.StorageConfig{
		Rewrites: map[string]string{"/app/*": "/index.html"},
		Version:  1,
	})
	require.NoError(t, err)

	resp, err := f.serve.Serve(context.Background(), "/app/deep/route", "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []byte("<spa/>"), resp.Body)
}

func TestServe_Redirect(t *testing.T) {
	f := newEngine(t)

	_, err := f.configSvc.Set(&models.StorageConfig{
		Redirects: map[string]models.RedirectConfig{
			"/old": {Location: "/new", StatusCode: 301},
		},
		Version: 1,
	})
	require.NoError(t, err)

	resp, err := f.serve.Serve(context.Background(), "/old", "")
	require.NoError(t, err)
	assert.Equal(t, 301, resp.StatusCode)
	assert.Equal(t, "/new", headerValue(resp.Headers, "Location"))
}

func TestServe_NotFoundFallsBackTo404Page(t *testing.T) {
	f := newEngine(t)

	// Without a 404 page the response is plain text
	resp, err := f.serve.Serve(context.Background(), "/missing", "")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, []byte("Not found"), resp.Body)

	// With one, the page body is served under status 404
	f.upload(t, "/404.html", []byte("<h1>gone</h1>"))
	resp, err = f.serve.Serve(context.Background(), "/missing", "")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, []byte("<h1>gone</h1>"), resp.Body)
}

func TestServe_MultiChunkStreaming(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	f.upload(t, "/movie.bin", []byte("part-one-"), []byte("part-two-"), []byte("part-three"))

	resp, err := f.serve.Serve(ctx, "/movie.bin", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("part-one-"), resp.Body)
	require.NotNil(t, resp.StreamToken)

	second, err := f.serve.StreamChunk(ctx, *resp.StreamToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("part-two-"), second.Body)
	require.NotNil(t, second.Token)

	third, err := f.serve.StreamChunk(ctx, *second.Token)
	require.NoError(t, err)
	assert.Equal(t, []byte("part-three"), third.Body)
	assert.Nil(t, third.Token)

	// Tokens are single use
	_, err = f.serve.StreamChunk(ctx, *resp.StreamToken)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestUpload_DerivedGzipServedOnNegotiation(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	content := []byte("<html>compress me compress me compress me</html>")

	b, err := f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection,
		FullPath:   "/page.html",
	})
	require.NoError(t, err)
	_, err = f.uploads.UploadChunk(ctx, b.ID, 0, content)
	require.NoError(t, err)

	asset, err := f.uploads.CommitBatch(ctx, f.owner, b.ID, nil, []models.EncodingType{models.EncodingGzip})
	require.NoError(t, err)
	require.NotNil(t, asset.Encoding(models.EncodingGzip))

	resp, err := f.serve.Serve(ctx, "/page.html", "gzip")
	require.NoError(t, err)
	assert.Equal(t, "gzip", headerValue(resp.Headers, "Content-Encoding"))

	zr, err := gzip.NewReader(bytes.NewReader(resp.Body))
	require.NoError(t, err)
	decompressed, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, content, decompressed)

	// Clients without gzip support still get the identity bytes
	plain, err := f.serve.Serve(ctx, "/page.html", "")
	require.NoError(t, err)
	assert.Equal(t, content, plain.Body)
}

func TestAssetService_DeleteRemovesCertification(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	emptyRoot := f.tree.Root()

	f.upload(t, "/doomed.html", []byte("<x/>"))
	require.NoError(t, f.assets.Delete(ctx, f.owner, rules.DappCollection, "/doomed.html"))

	_, err := f.assets.Get(ctx, rules.DappCollection, "/doomed.html")
	assert.ErrorIs(t, err, faults.ErrNotFound)
	assert.Equal(t, emptyRoot, f.tree.Root())
}

func TestAssetService_DeleteOwnership(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	f.upload(t, "/guarded.html", []byte("<x/>"))

	err := f.assets.Delete(ctx, uuid.New(), rules.DappCollection, "/guarded.html")
	assert.ErrorIs(t, err, faults.ErrPermissionDenied)

	// A controller may delete anyone's asset
	assert.NoError(t, f.assets.Delete(ctx, f.controller, rules.DappCollection, "/guarded.html"))
}

func TestUpload_ProposalStagedCommit(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	p, err := f.workflow.Init(ctx, f.owner, models.ProposalAssetsUpgrade)
	require.NoError(t, err)

	b, err := f.uploads.InitUpload(ctx, f.owner, InitUploadRequest{
		Collection: rules.DappCollection,
		FullPath:   "/staged.html",
		ProposalID: &p.ID,
	})
	require.NoError(t, err)

	_, err = f.uploads.UploadChunk(ctx, b.ID, 0, []byte("<staged/>"))
	require.NoError(t, err)
	staged, err := f.uploads.CommitBatch(ctx, f.owner, b.ID, nil, nil)
	require.NoError(t, err)

	// The asset is staged, not live, and its chunks are content addressed
	live, err := f.heap.Get(ctx, rules.DappCollection, "/staged.html")
	require.NoError(t, err)
	assert.Nil(t, live)
	assert.NotEmpty(t, staged.Encoding(models.EncodingIdentity).ChunkRefs)

	// Submit and commit activate it
	_, err = f.workflow.Submit(ctx, f.owner, p.ID)
	require.NoError(t, err)
	_, err = f.workflow.Commit(ctx, f.controller, p.ID)
	require.NoError(t, err)

	live, err = f.heap.Get(ctx, rules.DappCollection, "/staged.html")
	require.NoError(t, err)
	require.NotNil(t, live)

	// The staged body serves through the chunk store
	resp, err := f.serve.Serve(ctx, "/staged.html", "")
	require.NoError(t, err)
	assert.Equal(t, []byte("<staged/>"), resp.Body)
}

func headerNames(headers []models.HeaderField) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = h.Name
	}
	return out
}

func headerValue(headers []models.HeaderField, name string) string {
	for _, h := range headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
