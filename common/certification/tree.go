package certification

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/routing"
)

const (
	labelAssetsV1 = "http_assets"
	labelExprV2   = "http_expr"

	// Terminators distinguish exact-path leaves from wildcard fallback
	// leaves used for SPA catch-alls
	terminatorExact    = "<$>"
	terminatorWildcard = "<*>"

	notFoundPage = "404.html"
)

// AssetTree maintains the certification tree over the served asset set and
// produces response witnesses. All mutations happen under one lock and
// push the new root hash to the CertifiedData holder atomically, so a
// certificate and the witness it validates never tear apart.
type AssetTree struct {
	mu        sync.RWMutex
	tree      *NestedTree
	data      *CertifiedData
	certifier Certifier
}

// NewAssetTree creates an empty certification tree
func NewAssetTree(certifier Certifier) *AssetTree {
	t := &AssetTree{
		tree:      NewNestedTree(),
		data:      &CertifiedData{},
		certifier: certifier,
	}
	t.data.Set(t.tree.RootHash())
	return t
}

// CertifiedData exposes the root hash holder
func (t *AssetTree) CertifiedData() *CertifiedData {
	return t.data
}

// InsertAsset certifies an asset under its full path and every alias path,
// for both the v1 flat-path scheme and the v2 expression-path scheme.
// Index and 404 pages additionally certify the wildcard fallback entries
// for each prefix of their directory. The 404 page's fallback entries
// hash with status 404, since that is the status they are served under.
func (t *AssetTree) InsertAsset(fullPath string, headers []models.HeaderField, statusCode int, bodyHash []byte) {
	exprHash := ExpressionHash(headers)
	respHash := ResponseHash(headers, statusCode, bodyHash)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range certifiedPaths(fullPath) {
		t.tree.Insert(v1Path(p), bodyHash)

		segments := pathSegments(p)
		t.insertV2Locked(append(exprPath(segments), []byte(terminatorExact)), exprHash, respHash)
	}

	if isFallbackAsset(fullPath) {
		fallbackResp := respHash
		if path.Base(fullPath) == notFoundPage {
			fallbackResp = ResponseHash(headers, 404, bodyHash)
		}
		for _, prefix := range fallbackPaths(pathSegments(path.Dir(fullPath))) {
			t.insertV2Locked(prefix, exprHash, fallbackResp)
		}
	}

	t.data.Set(t.tree.RootHash())
}

// DeleteAsset removes an asset's certification entries, alias and fallback
// paths included
func (t *AssetTree) DeleteAsset(fullPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range certifiedPaths(fullPath) {
		t.tree.Delete(v1Path(p))
		t.tree.Delete(append(exprPath(pathSegments(p)), []byte(terminatorExact)))
	}

	if isFallbackAsset(fullPath) {
		for _, prefix := range fallbackPaths(pathSegments(path.Dir(fullPath))) {
			t.tree.Delete(prefix)
		}
	}

	t.data.Set(t.tree.RootHash())
}

// Root returns the current root hash
func (t *AssetTree) Root() [32]byte {
	return t.data.Root()
}

// Witness carries everything the serve path attaches to a certified
// response
type Witness struct {
	// HeaderValue is the Ic-Certificate header value
	HeaderValue string

	// Expression is the Ic-CertificateExpression header value, empty for v1
	Expression string
}

// WitnessFor builds the certification header for a response at the URL
// path. For v2 the expression path prefers the exact leaf and falls back
// to the deepest wildcard entry covering the path.
func (t *AssetTree) WitnessFor(urlPath string, version int, headers []models.HeaderField) (*Witness, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	certificate, err := t.certifier.Certificate(t.data.Root())
	if err != nil {
		return nil, faults.Certification("no data certificate available: %v", err)
	}

	if version < 2 {
		witness, err := t.tree.Witness(v1Path(urlPath)).MarshalCBOR()
		if err != nil {
			return nil, err
		}
		return &Witness{
			HeaderValue: fmt.Sprintf("certificate=:%s:, tree=:%s:",
				base64.StdEncoding.EncodeToString(certificate),
				base64.StdEncoding.EncodeToString(witness)),
		}, nil
	}

	exprSegments := t.exprPathForLocked(pathSegments(urlPath))
	witnessPath := make([][]byte, len(exprSegments))
	for i, s := range exprSegments {
		witnessPath[i] = []byte(s)
	}

	witness, err := t.tree.Witness(witnessPath).MarshalCBOR()
	if err != nil {
		return nil, err
	}

	exprPathCBOR, err := encMode.Marshal(cbor.Tag{Number: 55799, Content: exprSegments})
	if err != nil {
		return nil, faults.Certification("expression path serialization: %v", err)
	}

	return &Witness{
		HeaderValue: fmt.Sprintf("certificate=:%s:, tree=:%s:, expr_path=:%s:, version=2",
			base64.StdEncoding.EncodeToString(certificate),
			base64.StdEncoding.EncodeToString(witness),
			base64.StdEncoding.EncodeToString(exprPathCBOR)),
		Expression: ExpressionTemplate(headers),
	}, nil
}

// exprPathForLocked resolves the v2 expression path: the exact terminator
// when certified, otherwise the deepest wildcard fallback covering the
// request path.
func (t *AssetTree) exprPathForLocked(segments []string) []string {
	exact := append(exprStrings(segments), terminatorExact)
	if t.tree.Contains(toBytePath(exact)) {
		return exact
	}

	for depth := len(segments); depth >= 0; depth-- {
		prefix := exprStrings(segments[:depth])

		withSlash := append(append([]string{}, prefix...), "", terminatorWildcard)
		if t.tree.Contains(toBytePath(withSlash)) {
			return withSlash
		}

		bare := append(append([]string{}, prefix...), terminatorWildcard)
		if t.tree.Contains(toBytePath(bare)) {
			return bare
		}
	}
	return exact
}

func (t *AssetTree) insertV2Locked(prefix [][]byte, exprHash, respHash [32]byte) {
	full := append(append([][]byte{}, prefix...), exprHash[:], []byte(""), respHash[:])
	t.tree.Insert(full, []byte{})
}

// certifiedPaths lists the asset path plus every alias it answers for
func certifiedPaths(fullPath string) []string {
	return append([]string{fullPath}, routing.AlternativePaths(fullPath)...)
}

func isFallbackAsset(fullPath string) bool {
	base := path.Base(fullPath)
	return base == "index.html" || base == notFoundPage
}

// fallbackPaths generates, for every prefix of the directory segments,
// both the bare wildcard and the wildcard-with-trailing-slash variants so
// one tree answers literal and prefix-fallback queries alike
func fallbackPaths(dirSegments []string) [][][]byte {
	var out [][][]byte
	for depth := 0; depth <= len(dirSegments); depth++ {
		prefix := exprStrings(dirSegments[:depth])

		bare := append(append([]string{}, prefix...), terminatorWildcard)
		withSlash := append(append([]string{}, prefix...), "", terminatorWildcard)

		out = append(out, toBytePath(bare), toBytePath(withSlash))
	}
	return out
}

func v1Path(fullPath string) [][]byte {
	return [][]byte{[]byte(labelAssetsV1), []byte(fullPath)}
}

func exprPath(segments []string) [][]byte {
	return toBytePath(exprStrings(segments))
}

func exprStrings(segments []string) []string {
	return append([]string{labelExprV2}, segments...)
}

func toBytePath(segments []string) [][]byte {
	out := make([][]byte, len(segments))
	for i, s := range segments {
		out[i] = []byte(s)
	}
	return out
}

func pathSegments(urlPath string) []string {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" || trimmed == "." {
		return nil
	}
	return strings.Split(trimmed, "/")
}
