package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/certification"
	"github.com/junobuild/satellite/common/logger"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/proposal"
	"github.com/junobuild/satellite/common/queue"
	"github.com/junobuild/satellite/common/rules"
)

// ProposalService fronts the staged-commit workflow and wires its commit
// notifications into the deferred recertification pass: committed assets
// are published to the recertification topic and witnessed on the next
// turn rather than inline with the commit.
type ProposalService struct {
	workflow *proposal.Workflow
	queue    queue.Queue
	tree     *certification.AssetTree
	log      *logger.Logger
}

// NewProposalService creates the proposal service. It implements
// proposal.CommitObserver; wire it as the workflow's observer.
func NewProposalService(queue queue.Queue, tree *certification.AssetTree, log *logger.Logger) *ProposalService {
	return &ProposalService{
		queue: queue,
		tree:  tree,
		log:   log,
	}
}

// Bind attaches the workflow after construction; the workflow needs the
// service as its observer, so the two are wired in two steps
func (s *ProposalService) Bind(workflow *proposal.Workflow) {
	s.workflow = workflow
}

// Init opens a proposal
func (s *ProposalService) Init(ctx context.Context, caller uuid.UUID, proposalType models.ProposalType) (*models.Proposal, error) {
	return s.workflow.Init(ctx, caller, proposalType)
}

// Submit seals a proposal's staged set
func (s *ProposalService) Submit(ctx context.Context, caller uuid.UUID, proposalID uint64) (*models.Proposal, error) {
	return s.workflow.Submit(ctx, caller, proposalID)
}

// Reject refuses an open proposal
func (s *ProposalService) Reject(ctx context.Context, proposalID uint64, claimedSHA256 []byte) (*models.Proposal, error) {
	return s.workflow.Reject(ctx, proposalID, claimedSHA256)
}

// Commit activates an open proposal
func (s *ProposalService) Commit(ctx context.Context, caller uuid.UUID, proposalID uint64) (*models.Proposal, error) {
	return s.workflow.Commit(ctx, caller, proposalID)
}

// DeleteProposalAssets purges staged assets for the proposals
func (s *ProposalService) DeleteProposalAssets(ctx context.Context, caller uuid.UUID, proposalIDs []uint64) error {
	return s.workflow.DeleteProposalAssets(ctx, caller, proposalIDs)
}

// Get returns one proposal
func (s *ProposalService) Get(ctx context.Context, proposalID uint64) (*models.Proposal, error) {
	return s.workflow.Get(ctx, proposalID)
}

// List pages proposals by id range
func (s *ProposalService) List(ctx context.Context, params proposal.ListParams) ([]*models.Proposal, error) {
	return s.workflow.List(ctx, params)
}

// Count reports the number of proposals
func (s *ProposalService) Count(ctx context.Context) (uint64, error) {
	return s.workflow.Count(ctx)
}

// AssetsCommitted implements proposal.CommitObserver: every activated
// asset is queued for recertification
func (s *ProposalService) AssetsCommitted(ctx context.Context, p *models.Proposal, assets []*models.Asset) {
	payload, err := json.Marshal(assets)
	if err != nil {
		s.log.WithProposalID(p.ID).Error("failed to encode committed assets", "error", err)
		return
	}

	key := strconv.FormatUint(p.ID, 10)
	if err := s.queue.Publish(ctx, queue.TopicRecertify, key, payload); err != nil {
		s.log.WithProposalID(p.ID).Error("failed to queue recertification", "error", err)
	}
}

// StartRecertifier subscribes the certification rebuild handler. Assets
// outside the public collection are skipped.
func (s *ProposalService) StartRecertifier(ctx context.Context) error {
	return s.queue.Subscribe(ctx, queue.TopicRecertify, func(ctx context.Context, key string, value []byte) error {
		var assets []*models.Asset
		if err := json.Unmarshal(value, &assets); err != nil {
			return err
		}

		for _, asset := range assets {
			if asset.Key.Collection != rules.DappCollection {
				continue
			}
			s.tree.InsertAsset(asset.Key.FullPath, asset.Headers, 200, bodyHash(asset))
		}

		s.log.Info("recertified committed assets", "proposal_id", key, "assets", len(assets))
		return nil
	})
}
