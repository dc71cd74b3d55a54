package models

import "time"

// Batch is an in-flight, expiring upload session accumulating chunks
// before being materialized into an Asset.
type Batch struct {
	ID        uint64    `json:"batch_id"`
	Key       AssetKey  `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`

	// EncodingType declares the representation of the uploaded bytes
	// (clients pre-compress gzip/br payloads). Defaults to identity.
	EncodingType EncodingType `json:"encoding_type"`

	// ProposalID binds the batch to a proposal. A bound batch commits into
	// the proposal's staged store instead of the live asset store.
	ProposalID *uint64 `json:"proposal_id,omitempty"`
}

// Expired reports whether the batch lifetime has passed at the given instant
func (b *Batch) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// Chunk is one uploaded content fragment of a batch. BatchID is a
// back-reference, not ownership; orphaned chunks are swept with their batch.
type Chunk struct {
	ID         uint64 `json:"chunk_id"`
	BatchID    uint64 `json:"batch_id"`
	OrderIndex int    `json:"order_index"`
	Content    []byte `json:"content"`
}
