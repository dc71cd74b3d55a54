package proposal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/junobuild/satellite/common/models"
)

func digestAsset(fullPath string, sha string) *models.Asset {
	return &models.Asset{
		Key: models.AssetKey{
			FullPath:   fullPath,
			Collection: "#dapp",
			Owner:      uuid.Nil,
		},
		Encodings: map[models.EncodingType]*models.AssetEncoding{
			models.EncodingIdentity: {SHA256: []byte(sha)},
		},
	}
}

func TestDigest_IndependentOfInputOrder(t *testing.T) {
	a := digestAsset("/a.html", "sha-a")
	b := digestAsset("/b.html", "sha-b")

	forward := Digest([]*models.Asset{a, b})
	backward := Digest([]*models.Asset{b, a})
	assert.Equal(t, forward, backward)
}

func TestDigest_SensitiveToContent(t *testing.T) {
	base := Digest([]*models.Asset{digestAsset("/a.html", "sha-a")})

	changedContent := Digest([]*models.Asset{digestAsset("/a.html", "sha-x")})
	assert.NotEqual(t, base, changedContent)

	changedPath := Digest([]*models.Asset{digestAsset("/b.html", "sha-a")})
	assert.NotEqual(t, base, changedPath)
}

func TestDigest_SensitiveToHeaders(t *testing.T) {
	plain := digestAsset("/a.html", "sha-a")

	withHeaders := digestAsset("/a.html", "sha-a")
	withHeaders.Headers = []models.HeaderField{{Name: "Cache-Control", Value: "no-store"}}

	assert.NotEqual(t,
		Digest([]*models.Asset{plain}),
		Digest([]*models.Asset{withHeaders}))
}

func TestDigest_MultipleEncodingsOrdered(t *testing.T) {
	asset := digestAsset("/a.html", "sha-identity")
	asset.Encodings[models.EncodingGzip] = &models.AssetEncoding{SHA256: []byte("sha-gzip")}

	// Map iteration order must not leak into the digest
	first := Digest([]*models.Asset{asset})
	for i := 0; i < 16; i++ {
		assert.Equal(t, first, Digest([]*models.Asset{asset}))
	}
}

func TestDigest_EmptySetIsStable(t *testing.T) {
	assert.Equal(t, Digest(nil), Digest([]*models.Asset{}))
}
