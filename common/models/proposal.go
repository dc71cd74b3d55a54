package models

import (
	"time"

	"github.com/google/uuid"
)

// ProposalStatus tracks the staged-commit state machine. Transitions are
// one-directional; Executed, Failed and Rejected are terminal.
type ProposalStatus string

const (
	ProposalInitialized ProposalStatus = "initialized"
	ProposalOpen        ProposalStatus = "open"
	ProposalAccepted    ProposalStatus = "accepted"
	ProposalExecuted    ProposalStatus = "executed"
	ProposalFailed      ProposalStatus = "failed"
	ProposalRejected    ProposalStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from the status
func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalExecuted, ProposalFailed, ProposalRejected:
		return true
	}
	return false
}

// ProposalType tags which deployment target a proposal stages changes for
type ProposalType string

const (
	ProposalAssetsUpgrade      ProposalType = "assets_upgrade"
	ProposalSegmentsDeployment ProposalType = "segments_deployment"
)

// KnownProposalType reports whether the proposal type is supported
func KnownProposalType(t ProposalType) bool {
	return t == ProposalAssetsUpgrade || t == ProposalSegmentsDeployment
}

// Proposal is a staged, hash-verified batch of asset changes awaiting
// approval before atomic activation.
type Proposal struct {
	ID     uint64         `json:"proposal_id"`
	Owner  uuid.UUID      `json:"owner"`
	Type   ProposalType   `json:"proposal_type"`
	Status ProposalStatus `json:"status"`

	// SHA256 is the digest over all staged assets and encodings, set when
	// the proposal moves to open.
	SHA256 []byte `json:"sha256,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	Version    uint64     `json:"version"`
}
