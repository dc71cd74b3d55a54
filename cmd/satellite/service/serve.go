package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/match"

	"github.com/junobuild/satellite/common/cache"
	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/encoding"
	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/routing"
	"github.com/junobuild/satellite/common/rules"
	"github.com/junobuild/satellite/common/storage"
)

const (
	notFoundAssetPath = "/404.html"

	// streamTTL bounds how long an interrupted multi-chunk download can be
	// resumed
	streamTTL = 5 * time.Minute
)

// ServeResponse is the HTTP-shaped outcome of serving one request path
type ServeResponse struct {
	StatusCode int
	Headers    []models.HeaderField
	Body       []byte

	// StreamToken continues a multi-chunk body via the streaming endpoint
	StreamToken *string
}

// StreamChunkResponse is one continuation step of a chunked download
type StreamChunkResponse struct {
	Body []byte

	// Token is the token for the next chunk, nil when the stream is done
	Token *string
}

// streamState is the continuation record behind a stream token
type streamState struct {
	Collection     string              `json:"collection"`
	FullPath       string              `json:"full_path"`
	EncodingType   models.EncodingType `json:"encoding_type"`
	NextChunkIndex int                 `json:"next_chunk_index"`
	SHA256         []byte              `json:"sha256"`
}

// ServeService answers the public GET surface: it resolves the request
// path through aliases, rewrites and redirects, negotiates the encoding,
// and attaches certification headers to every asset response.
type ServeService struct {
	resolver    *routing.Resolver
	assets      routing.AssetGetter
	chunks      storage.ChunkStrategy
	tree        *certification.AssetTree
	configSvc   *ConfigService
	streams     cache.Cache
	certVersion int
	log         *logger.Logger
}

// NewServeService creates the serve service
func NewServeService(
	resolver *routing.Resolver,
	assets routing.AssetGetter,
	chunks storage.ChunkStrategy,
	tree *certification.AssetTree,
	configSvc *ConfigService,
	streams cache.Cache,
	certVersion int,
	log *logger.Logger,
) *ServeService {
	return &ServeService{
		resolver:    resolver,
		assets:      assets,
		chunks:      chunks,
		tree:        tree,
		configSvc:   configSvc,
		streams:     streams,
		certVersion: certVersion,
		log:         log,
	}
}

// Serve resolves and answers one request URL
func (s *ServeService) Serve(ctx context.Context, rawURL, acceptEncoding string) (*ServeResponse, error) {
	cfg := s.configSvc.Get()

	resolved, err := s.resolver.Resolve(ctx, rawURL, cfg)
	if err != nil {
		return nil, err
	}

	// The witness must cover the path the client asked for, not the path
	// of the asset it resolved to; aliases, rewrites and fallbacks are
	// certified under the requested path.
	requestPath := requestPathOf(rawURL)

	switch resolved.Kind {
	case routing.RoutingRedirect, routing.RoutingRedirectRaw:
		return &ServeResponse{
			StatusCode: resolved.StatusCode,
			Headers:    []models.HeaderField{{Name: "Location", Value: resolved.Location}},
		}, nil

	case routing.RoutingNotFound:
		return s.serveNotFound(ctx, requestPath, acceptEncoding, cfg)

	default:
		return s.serveAsset(ctx, resolved.Asset, requestPath, acceptEncoding, 200, cfg)
	}
}

// requestPathOf extracts the decoded path of a request URL; an empty or
// unparsable URL serves the root
func requestPathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

// StreamChunk continues a multi-chunk download
func (s *ServeService) StreamChunk(ctx context.Context, token string) (*StreamChunkResponse, error) {
	payload, found, err := s.streams.Get(ctx, streamKey(token))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, faults.NotFound("stream token %s", token)
	}

	var state streamState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("corrupt stream state: %w", err)
	}

	asset, err := s.assets.Get(ctx, state.Collection, state.FullPath)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, faults.NotFound("asset %s no longer exists", state.FullPath)
	}

	enc := asset.Encoding(state.EncodingType)
	if enc == nil || !sameDigest(enc.SHA256, state.SHA256) {
		// The asset changed under the stream; the client must restart
		return nil, faults.IntegrityMismatch("asset %s changed mid-stream", state.FullPath)
	}

	body, err := s.chunkAt(ctx, enc, state.NextChunkIndex)
	if err != nil {
		return nil, err
	}

	if err := s.streams.Delete(ctx, streamKey(token)); err != nil {
		return nil, err
	}

	resp := &StreamChunkResponse{Body: body}
	if state.NextChunkIndex+1 < enc.ChunkCount() {
		state.NextChunkIndex++
		next, err := s.storeStream(ctx, &state)
		if err != nil {
			return nil, err
		}
		resp.Token = &next
	}
	return resp, nil
}

func (s *ServeService) serveAsset(ctx context.Context, asset *models.Asset, requestPath, acceptEncoding string, statusCode int, cfg *models.StorageConfig) (*ServeResponse, error) {
	encType, err := encoding.SelectEncoding(acceptEncoding, asset.Encodings)
	if err != nil {
		return nil, err
	}
	enc := asset.Encoding(encType)

	headers := s.responseHeaders(asset, encType, enc, requestPath, statusCode, cfg)

	body, err := s.chunkAt(ctx, enc, 0)
	if err != nil {
		return nil, err
	}

	resp := &ServeResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
	}

	if enc.ChunkCount() > 1 {
		token, err := s.storeStream(ctx, &streamState{
			Collection:     asset.Key.Collection,
			FullPath:       asset.Key.FullPath,
			EncodingType:   encType,
			NextChunkIndex: 1,
			SHA256:         enc.SHA256,
		})
		if err != nil {
			return nil, err
		}
		resp.StreamToken = &token
	}
	return resp, nil
}

func (s *ServeService) serveNotFound(ctx context.Context, requestPath, acceptEncoding string, cfg *models.StorageConfig) (*ServeResponse, error) {
	fallback, err := s.assets.Get(ctx, rules.DappCollection, notFoundAssetPath)
	if err == nil && fallback != nil {
		return s.serveAsset(ctx, fallback, requestPath, acceptEncoding, 404, cfg)
	}

	return &ServeResponse{
		StatusCode: 404,
		Headers:    []models.HeaderField{{Name: "Content-Type", Value: "text/plain"}},
		Body:       []byte("Not found"),
	}, nil
}

// responseHeaders layers configured path headers under asset headers and
// tops them with encoding and certification headers
func (s *ServeService) responseHeaders(asset *models.Asset, encType models.EncodingType, enc *models.AssetEncoding, requestPath string, statusCode int, cfg *models.StorageConfig) []models.HeaderField {
	var headers []models.HeaderField

	for source, extra := range cfg.Headers {
		if match.Match(asset.Key.FullPath, source) {
			headers = append(headers, extra...)
		}
	}

	headers = append(headers, asset.Headers...)

	if encType != models.EncodingIdentity {
		headers = append(headers, models.HeaderField{Name: "Content-Encoding", Value: string(encType)})
	}
	headers = append(headers, models.HeaderField{Name: "ETag", Value: fmt.Sprintf(`"%x"`, enc.SHA256)})

	witness, err := s.tree.WitnessFor(requestPath, s.certVersion, asset.Headers)
	if err != nil {
		// Certification must not take the serve path down; the response
		// simply goes out unwitnessed
		s.log.Warn("no certification witness", "request_path", requestPath, "full_path", asset.Key.FullPath, "error", err)
		return headers
	}

	headers = append(headers, models.HeaderField{Name: "Ic-Certificate", Value: witness.HeaderValue})
	if witness.Expression != "" {
		headers = append(headers, models.HeaderField{Name: "Ic-CertificateExpression", Value: witness.Expression})
	}
	return headers
}

func (s *ServeService) chunkAt(ctx context.Context, enc *models.AssetEncoding, index int) ([]byte, error) {
	if len(enc.ChunkRefs) > 0 {
		if index >= len(enc.ChunkRefs) {
			return nil, faults.Validation("chunk index %d out of range", index)
		}
		return s.chunks.Get(ctx, enc.ChunkRefs[index])
	}

	if index >= len(enc.ContentChunks) {
		return nil, faults.Validation("chunk index %d out of range", index)
	}
	return enc.ContentChunks[index], nil
}

func (s *ServeService) storeStream(ctx context.Context, state *streamState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	if err := s.streams.Set(ctx, streamKey(token), payload, streamTTL); err != nil {
		return "", err
	}
	return token, nil
}

func streamKey(token string) string {
	return "stream:" + token
}

func sameDigest(a, b []byte) bool {
	return bytes.Equal(a, b)
}
