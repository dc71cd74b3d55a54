package models

import (
	"time"

	"github.com/google/uuid"
)

// EncodingType identifies one content-negotiated representation of an asset.
// Known values are the closed set below; unknown strings pass through
// unchanged so future encodings keep working end to end.
type EncodingType string

const (
	EncodingIdentity EncodingType = "identity"
	EncodingGzip     EncodingType = "gzip"
	EncodingBrotli   EncodingType = "br"
	EncodingDeflate  EncodingType = "deflate"
	EncodingZstd     EncodingType = "zstd"
)

// KnownEncoding reports whether the encoding type belongs to the closed set
func KnownEncoding(t EncodingType) bool {
	switch t {
	case EncodingIdentity, EncodingGzip, EncodingBrotli, EncodingDeflate, EncodingZstd:
		return true
	}
	return false
}

// HeaderField is one ordered (name, value) response header pair
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AssetKey identifies one servable resource. FullPath is the primary key
// within the collection's namespace.
type AssetKey struct {
	Name        string    `json:"name"`
	FullPath    string    `json:"full_path"`
	Collection  string    `json:"collection"`
	Owner       uuid.UUID `json:"owner"`
	Token       *string   `json:"token,omitempty"`
	Description string    `json:"description,omitempty"`
}

// AssetEncoding is one representation of an asset's content.
//
// Heap collections keep the chunk bytes inline in ContentChunks. Stable
// collections store chunks in a separate content-addressed store and keep
// only ChunkRefs here; the two fields are mutually exclusive.
//
// SHA256 and TotalLength are always recomputed together from the chunk
// content, never hand-edited.
type AssetEncoding struct {
	Modified      time.Time `json:"modified"`
	ContentChunks [][]byte  `json:"-"`
	ChunkRefs     []string  `json:"chunk_refs,omitempty"`

	// TotalLength is the byte length over all chunks. uint64 bounds assets
	// at 16 EiB which is beyond anything a single asset can reach here.
	TotalLength uint64 `json:"total_length"`
	SHA256      []byte `json:"sha256"`
}

// ChunkCount returns the number of content chunks regardless of backing
func (e *AssetEncoding) ChunkCount() int {
	if len(e.ChunkRefs) > 0 {
		return len(e.ChunkRefs)
	}
	return len(e.ContentChunks)
}

// Asset is a named, versioned, multi-encoding servable resource
type Asset struct {
	Key       AssetKey                        `json:"key"`
	Headers   []HeaderField                   `json:"headers"`
	Encodings map[EncodingType]*AssetEncoding `json:"encodings"`
	CreatedAt time.Time                       `json:"created_at"`
	UpdatedAt time.Time                       `json:"updated_at"`
	Version   uint64                          `json:"version"`
}

// Encoding returns the encoding for the given type, nil if absent
func (a *Asset) Encoding(t EncodingType) *AssetEncoding {
	if a.Encodings == nil {
		return nil
	}
	return a.Encodings[t]
}

// AvailableEncodings lists the encoding types present on the asset
func (a *Asset) AvailableEncodings() []EncodingType {
	out := make([]EncodingType, 0, len(a.Encodings))
	for t := range a.Encodings {
		out = append(out, t)
	}
	return out
}
