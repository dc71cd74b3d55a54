package proposal

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"sort"

	"github.com/junobuild/satellite/common/models"
)

// Digest computes the integrity hash a proposal carries from submit
// onwards: SHA-256 over the ordered concatenation of one
// (key hash, asset hash, encoding hash) triple per staged encoding.
// Assets are ordered by (collection, full_path) and encodings by type, so
// the digest depends only on content, never on map iteration order.
func Digest(assets []*models.Asset) [32]byte {
	ordered := make([]*models.Asset, len(assets))
	copy(ordered, assets)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Key.Collection != ordered[j].Key.Collection {
			return ordered[i].Key.Collection < ordered[j].Key.Collection
		}
		return ordered[i].Key.FullPath < ordered[j].Key.FullPath
	})

	h := sha256.New()
	for _, asset := range ordered {
		keyHash := hashKey(asset.Key)
		assetHash := hashAssetMeta(asset)

		for _, encType := range sortedEncodingTypes(asset) {
			encHash := asset.Encodings[encType].SHA256
			h.Write(keyHash[:])
			h.Write(assetHash[:])
			h.Write(encHash)
		}
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// hashKey digests the identifying fields of an asset key. Every field is
// length prefixed so no two field sequences collide.
func hashKey(key models.AssetKey) [32]byte {
	h := sha256.New()
	writeField(h, []byte(key.Collection))
	writeField(h, []byte(key.FullPath))
	writeField(h, []byte(key.Name))
	writeField(h, key.Owner[:])
	writeField(h, []byte(key.Description))
	if key.Token != nil {
		writeField(h, []byte(*key.Token))
	} else {
		writeField(h, nil)
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

// hashAssetMeta digests the asset metadata that commit activates: the key
// plus the ordered response headers
func hashAssetMeta(asset *models.Asset) [32]byte {
	h := sha256.New()

	keyHash := hashKey(asset.Key)
	h.Write(keyHash[:])

	for _, header := range asset.Headers {
		writeField(h, []byte(header.Name))
		writeField(h, []byte(header.Value))
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}

func sortedEncodingTypes(asset *models.Asset) []models.EncodingType {
	types := asset.AvailableEncodings()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func writeField(h hash.Hash, field []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(field)))
	h.Write(length[:])
	h.Write(field)
}
