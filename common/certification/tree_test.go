package certification

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junobuild/satellite/common/models"
)

func bytePath(segments ...string) [][]byte {
	out := make([][]byte, len(segments))
	for i, s := range segments {
		out[i] = []byte(s)
	}
	return out
}

func TestNestedTree_InsertContainsDelete(t *testing.T) {
	tree := NewNestedTree()

	tree.Insert(bytePath("a", "b"), []byte("leaf"))
	assert.True(t, tree.Contains(bytePath("a", "b")))
	assert.False(t, tree.Contains(bytePath("a")))
	assert.True(t, tree.ContainsPrefix(bytePath("a")))

	tree.Delete(bytePath("a", "b"))
	assert.False(t, tree.Contains(bytePath("a", "b")))
	// Intermediate labels left empty are pruned
	assert.False(t, tree.ContainsPrefix(bytePath("a")))
}

func TestNestedTree_RootChangesWithContent(t *testing.T) {
	tree := NewNestedTree()
	empty := tree.RootHash()

	tree.Insert(bytePath("x"), []byte("1"))
	one := tree.RootHash()
	assert.NotEqual(t, empty, one)

	tree.Insert(bytePath("y"), []byte("2"))
	two := tree.RootHash()
	assert.NotEqual(t, one, two)

	tree.Delete(bytePath("y"))
	assert.Equal(t, one, tree.RootHash())

	tree.Delete(bytePath("x"))
	assert.Equal(t, empty, tree.RootHash())
}

func TestNestedTree_WitnessMatchesRoot(t *testing.T) {
	tree := NewNestedTree()
	tree.Insert(bytePath("http_assets", "/a.html"), []byte("hash-a"))
	tree.Insert(bytePath("http_assets", "/b.html"), []byte("hash-b"))
	tree.Insert(bytePath("http_assets", "/c.css"), []byte("hash-c"))

	root := tree.RootHash()

	// A witness prunes the off-path branches but must keep the same digest
	witness := tree.Witness(bytePath("http_assets", "/b.html"))
	assert.Equal(t, root, witness.Digest())

	// Absence witness too: a missing path still digests to the root
	absent := tree.Witness(bytePath("http_assets", "/missing"))
	assert.Equal(t, root, absent.Digest())
}

func TestNestedTree_WitnessPrunesSiblings(t *testing.T) {
	tree := NewNestedTree()
	tree.Insert(bytePath("a"), []byte("witnessed-leaf-value"))
	tree.Insert(bytePath("b"), []byte("pruned-sibling-value"))

	witness := tree.Witness(bytePath("a"))
	serialized, err := witness.MarshalCBOR()
	require.NoError(t, err)

	// The witnessed leaf is present verbatim, the sibling only as a digest
	assert.Contains(t, string(serialized), "witnessed-leaf-value")
	assert.NotContains(t, string(serialized), "pruned-sibling-value")
}

func TestNestedTree_WitnessRevealsSubtreeBelowPath(t *testing.T) {
	tree := NewNestedTree()
	tree.Insert(bytePath("http_expr", "page", "<$>", "expr-hash-label", "", "resp-hash-label"), []byte{})
	tree.Insert(bytePath("http_expr", "other", "<$>", "sibling-expr", "", "sibling-resp"), []byte{})

	// The witness ends at the terminator, but a verifier still needs the
	// labels beneath it down to the leaves
	witness := tree.Witness(bytePath("http_expr", "page", "<$>"))
	serialized, err := witness.MarshalCBOR()
	require.NoError(t, err)

	assert.Contains(t, string(serialized), "expr-hash-label")
	assert.Contains(t, string(serialized), "resp-hash-label")
	assert.NotContains(t, string(serialized), "sibling-resp")
	assert.Equal(t, tree.RootHash(), witness.Digest())
}

func TestHashTree_EmptyDigest(t *testing.T) {
	empty := &HashTree{Kind: NodeEmpty}
	expected := sha256.Sum256(append([]byte{0x11}, []byte("ic-hashtree-empty")...))
	assert.Equal(t, expected, empty.Digest())
}

func TestHashTree_PrunedKeepsDigest(t *testing.T) {
	leaf := &HashTree{Kind: NodeLeaf, Value: []byte("data")}
	digest := leaf.Digest()

	pruned := &HashTree{Kind: NodePruned, Value: digest[:]}
	assert.Equal(t, digest, pruned.Digest())
}

func TestExpressionTemplate_SortedHeaders(t *testing.T) {
	headers := []models.HeaderField{
		{Name: "Content-Type", Value: "text/html"},
		{Name: "Cache-Control", Value: "no-cache"},
	}

	expr := ExpressionTemplate(headers)
	assert.Contains(t, expr, `"cache-control","content-type"`)

	// Order of input headers must not change the expression
	reversed := []models.HeaderField{headers[1], headers[0]}
	assert.Equal(t, expr, ExpressionTemplate(reversed))
}

func TestResponseHash_Deterministic(t *testing.T) {
	headers := []models.HeaderField{{Name: "Content-Type", Value: "text/plain"}}
	body := sha256.Sum256([]byte("hi"))

	first := ResponseHash(headers, 200, body[:])
	second := ResponseHash(headers, 200, body[:])
	assert.Equal(t, first, second)

	// Status participates in the hash
	notFound := ResponseHash(headers, 404, body[:])
	assert.NotEqual(t, first, notFound)
}

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, leb128(0))
	assert.Equal(t, []byte{0xc8, 0x01}, leb128(200))
	assert.Equal(t, []byte{0x94, 0x03}, leb128(404))
}

func newTestTree(t *testing.T) *AssetTree {
	t.Helper()
	certifier, err := NewLocalCertifier("test-seed")
	require.NoError(t, err)
	return NewAssetTree(certifier)
}

func testHeaders() []models.HeaderField {
	return []models.HeaderField{{Name: "Content-Type", Value: "text/html"}}
}

func TestAssetTree_WitnessHeaderV1(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("<html/>"))
	tree.InsertAsset("/page.html", testHeaders(), 200, body[:])

	witness, err := tree.WitnessFor("/page.html", 1, testHeaders())
	require.NoError(t, err)

	assert.Regexp(t, `^certificate=:[A-Za-z0-9+/=]+:, tree=:[A-Za-z0-9+/=]+:$`, witness.HeaderValue)
	assert.Empty(t, witness.Expression)
}

func TestAssetTree_WitnessHeaderV2(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("<html/>"))
	tree.InsertAsset("/page.html", testHeaders(), 200, body[:])

	witness, err := tree.WitnessFor("/page.html", 2, testHeaders())
	require.NoError(t, err)

	assert.Contains(t, witness.HeaderValue, "expr_path=:")
	assert.True(t, strings.HasSuffix(witness.HeaderValue, "version=2"))
	assert.Contains(t, witness.Expression, "default_certification")
}

func TestAssetTree_AliasPathsCertified(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("<html/>"))
	tree.InsertAsset("/about/index.html", testHeaders(), 200, body[:])

	// /about and /about/ alias to the same asset and must be certified
	for _, alias := range []string{"/about/index.html", "/about", "/about/"} {
		witness, err := tree.WitnessFor(alias, 1, testHeaders())
		require.NoError(t, err, alias)
		assert.NotEmpty(t, witness.HeaderValue, alias)
	}
}

func TestAssetTree_FallbackWildcard(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("<html/>"))
	tree.InsertAsset("/index.html", testHeaders(), 200, body[:])

	// An uncertified SPA route resolves to the wildcard expression path
	witness, err := tree.WitnessFor("/app/some/route", 2, testHeaders())
	require.NoError(t, err)
	assert.Contains(t, witness.HeaderValue, "version=2")
}

// witnessTree pulls the decoded tree out of an Ic-Certificate header value
func witnessTree(t *testing.T, headerValue string) []byte {
	t.Helper()
	start := strings.Index(headerValue, "tree=:")
	require.NotEqual(t, -1, start)
	rest := headerValue[start+len("tree=:"):]
	end := strings.Index(rest, ":")
	require.NotEqual(t, -1, end)
	decoded, err := base64.StdEncoding.DecodeString(rest[:end])
	require.NoError(t, err)
	return decoded
}

func TestAssetTree_WitnessCarriesResponseHash(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("<html/>"))
	tree.InsertAsset("/page.html", testHeaders(), 200, body[:])

	witness, err := tree.WitnessFor("/page.html", 2, testHeaders())
	require.NoError(t, err)

	// The response hash label must survive into the witness so the
	// served response can be checked against it
	respHash := ResponseHash(testHeaders(), 200, body[:])
	assert.Contains(t, string(witnessTree(t, witness.HeaderValue)), string(respHash[:]))
}

func TestAssetTree_NotFoundFallbackCertifiedWith404(t *testing.T) {
	tree := newTestTree(t)
	body := sha256.Sum256([]byte("missing"))
	tree.InsertAsset("/404.html", testHeaders(), 200, body[:])

	okHash := ResponseHash(testHeaders(), 200, body[:])
	notFoundHash := ResponseHash(testHeaders(), 404, body[:])

	// Wildcard entries answer uncertified paths at status 404
	fallback, err := tree.WitnessFor("/missing", 2, testHeaders())
	require.NoError(t, err)
	decoded := string(witnessTree(t, fallback.HeaderValue))
	assert.Contains(t, decoded, string(notFoundHash[:]))
	assert.NotContains(t, decoded, string(okHash[:]))

	// The exact path keeps the status it was inserted with
	exact, err := tree.WitnessFor("/404.html", 2, testHeaders())
	require.NoError(t, err)
	assert.Contains(t, string(witnessTree(t, exact.HeaderValue)), string(okHash[:]))
}

func TestAssetTree_DeleteRestoresRoot(t *testing.T) {
	tree := newTestTree(t)
	empty := tree.Root()

	body := sha256.Sum256([]byte("x"))
	tree.InsertAsset("/a.html", testHeaders(), 200, body[:])
	assert.NotEqual(t, empty, tree.Root())

	tree.DeleteAsset("/a.html")
	assert.Equal(t, empty, tree.Root())
}

func BenchmarkWitnessFor(b *testing.B) {
	certifier, err := NewLocalCertifier("bench-seed")
	if err != nil {
		b.Fatal(err)
	}
	tree := NewAssetTree(certifier)

	headers := testHeaders()
	for i := 0; i < 512; i++ {
		body := sha256.Sum256([]byte{byte(i), byte(i >> 8)})
		tree.InsertAsset("/assets/"+strconv.Itoa(i)+".html", headers, 200, body[:])
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tree.WitnessFor("/assets/256.html", 2, headers); err != nil {
			b.Fatal(err)
		}
	}
}

func TestLocalCertifier_SignsRoot(t *testing.T) {
	certifier, err := NewLocalCertifier("seed")
	require.NoError(t, err)

	var root [32]byte
	copy(root[:], []byte("0123456789abcdef0123456789abcdef"))

	cert, err := certifier.Certificate(root)
	require.NoError(t, err)
	assert.NotEmpty(t, cert)

	// Same seed yields the same key and certificate payload shape
	again, err := NewLocalCertifier("seed")
	require.NoError(t, err)
	assert.Equal(t, certifier.PublicKey(), again.PublicKey())
}
