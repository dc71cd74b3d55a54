package proposal

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/storage"
)

// Clock supplies the current time, injectable for tests
type Clock func() time.Time

// CommitObserver is notified after a proposal's staged assets went live, so
// the serving layer can re-certify the affected paths
type CommitObserver interface {
	AssetsCommitted(ctx context.Context, p *models.Proposal, assets []*models.Asset)
}

// Workflow drives the staged-commit state machine: Initialized -> Open ->
// Accepted -> Executed or Failed, with Rejected as the refusal branch.
// Every transition is one-directional.
type Workflow struct {
	proposals   Store
	staged      StagedStore
	live        storage.AssetStrategy
	chunks      storage.ChunkStrategy
	controllers map[uuid.UUID]struct{}
	observer    CommitObserver
	now         Clock
}

// NewWorkflow wires the state machine over its stores. controllers lists
// the callers allowed to commit; observer may be nil.
func NewWorkflow(proposals Store, staged StagedStore, live storage.AssetStrategy, chunks storage.ChunkStrategy, controllers []uuid.UUID, observer CommitObserver) *Workflow {
	return NewWorkflowWithClock(proposals, staged, live, chunks, controllers, observer, time.Now)
}

// NewWorkflowWithClock is NewWorkflow with an injected clock
func NewWorkflowWithClock(proposals Store, staged StagedStore, live storage.AssetStrategy, chunks storage.ChunkStrategy, controllers []uuid.UUID, observer CommitObserver, now Clock) *Workflow {
	set := make(map[uuid.UUID]struct{}, len(controllers))
	for _, id := range controllers {
		set[id] = struct{}{}
	}
	return &Workflow{
		proposals:   proposals,
		staged:      staged,
		live:        live,
		chunks:      chunks,
		controllers: set,
		observer:    observer,
		now:         now,
	}
}

// Init opens a new proposal owned by the caller
func (w *Workflow) Init(ctx context.Context, caller uuid.UUID, proposalType models.ProposalType) (*models.Proposal, error) {
	if !models.KnownProposalType(proposalType) {
		return nil, faults.Validation("unknown proposal type %q", proposalType)
	}

	id, err := w.proposals.NextID(ctx)
	if err != nil {
		return nil, err
	}

	now := w.now()
	p := &models.Proposal{
		ID:        id,
		Owner:     caller,
		Type:      proposalType,
		Status:    models.ProposalInitialized,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if err := w.proposals.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Stage records an asset under the proposal. Staging is only allowed while
// the proposal is Initialized, by its owner.
func (w *Workflow) Stage(ctx context.Context, caller uuid.UUID, proposalID uint64, asset *models.Asset) error {
	p, err := w.owned(ctx, caller, proposalID)
	if err != nil {
		return err
	}
	if p.Status != models.ProposalInitialized {
		return faults.InvalidState("proposal %d is %s, staging requires initialized", proposalID, p.Status)
	}
	return w.staged.Put(ctx, proposalID, asset)
}

// Submit seals the staged set: it computes the integrity digest over every
// staged asset and moves the proposal to Open
func (w *Workflow) Submit(ctx context.Context, caller uuid.UUID, proposalID uint64) (*models.Proposal, error) {
	p, err := w.owned(ctx, caller, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProposalInitialized {
		return nil, faults.InvalidState("proposal %d is %s, submit requires initialized", proposalID, p.Status)
	}

	assets, err := w.staged.List(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	digest := Digest(assets)
	p.SHA256 = digest[:]
	p.Status = models.ProposalOpen
	return p, w.touch(ctx, p)
}

// Reject refuses an open proposal. The claimed digest must match the one
// computed at submit exactly, guarding against racing resubmissions.
func (w *Workflow) Reject(ctx context.Context, proposalID uint64, claimedSHA256 []byte) (*models.Proposal, error) {
	p, err := w.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProposalOpen {
		return nil, faults.InvalidState("proposal %d is %s, reject requires open", proposalID, p.Status)
	}
	if !bytes.Equal(claimedSHA256, p.SHA256) {
		return nil, faults.IntegrityMismatch("proposal %d digest does not match", proposalID)
	}

	p.Status = models.ProposalRejected
	return p, w.touch(ctx, p)
}

// Commit activates an open proposal: every staged asset is copied into the
// live store, the staged copies are purged, and the proposal becomes
// Executed. Only controllers may commit.
//
// The copy is all-or-nothing as far as validation can make it: every
// staged asset and its chunk content is read and checked before the first
// live write. A failure after writes began flips the proposal to Failed.
func (w *Workflow) Commit(ctx context.Context, caller uuid.UUID, proposalID uint64) (*models.Proposal, error) {
	if _, ok := w.controllers[caller]; !ok {
		return nil, faults.PermissionDenied("caller %s is not a controller", caller)
	}

	p, err := w.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProposalOpen {
		return nil, faults.InvalidState("proposal %d is %s, commit requires open", proposalID, p.Status)
	}

	assets, err := w.staged.List(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	if err := w.validateStaged(ctx, assets); err != nil {
		return nil, w.fail(ctx, p, err)
	}

	// Accepted marks the proposal validated but not yet live, so a crash
	// between here and Executed is distinguishable from an open proposal
	p.Status = models.ProposalAccepted
	if err := w.touch(ctx, p); err != nil {
		return nil, err
	}

	for _, asset := range assets {
		if err := w.live.Insert(ctx, asset.Key.Collection, asset.Key.FullPath, asset); err != nil {
			return nil, w.fail(ctx, p, err)
		}
	}

	if _, err := w.staged.Purge(ctx, proposalID); err != nil {
		return nil, w.fail(ctx, p, err)
	}

	now := w.now()
	p.Status = models.ProposalExecuted
	p.ExecutedAt = &now
	if err := w.touch(ctx, p); err != nil {
		return nil, err
	}

	if w.observer != nil {
		w.observer.AssetsCommitted(ctx, p, assets)
	}
	return p, nil
}

// DeleteProposalAssets purges the staged assets and their chunk content
// for each proposal, without touching the proposal records. Open proposals
// are mid-flight and refuse the purge.
func (w *Workflow) DeleteProposalAssets(ctx context.Context, caller uuid.UUID, proposalIDs []uint64) error {
	for _, id := range proposalIDs {
		p, err := w.owned(ctx, caller, id)
		if err != nil {
			return err
		}
		if p.Status == models.ProposalOpen {
			return faults.InvalidState("proposal %d is open, staged assets cannot be purged mid-flight", id)
		}

		purged, err := w.staged.Purge(ctx, id)
		if err != nil {
			return err
		}
		if err := w.releaseChunks(ctx, purged); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the proposal, ErrNotFound when absent
func (w *Workflow) Get(ctx context.Context, proposalID uint64) (*models.Proposal, error) {
	return w.get(ctx, proposalID)
}

// List pages proposals over their id range
func (w *Workflow) List(ctx context.Context, params ListParams) ([]*models.Proposal, error) {
	return w.proposals.List(ctx, params)
}

// Count reports the total number of proposals ever created
func (w *Workflow) Count(ctx context.Context) (uint64, error) {
	return w.proposals.Count(ctx)
}

func (w *Workflow) get(ctx context.Context, proposalID uint64) (*models.Proposal, error) {
	p, err := w.proposals.Get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, faults.NotFound("proposal %d", proposalID)
	}
	return p, nil
}

func (w *Workflow) owned(ctx context.Context, caller uuid.UUID, proposalID uint64) (*models.Proposal, error) {
	p, err := w.get(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Owner != caller {
		return nil, faults.PermissionDenied("proposal %d does not belong to caller", proposalID)
	}
	return p, nil
}

// validateStaged reads every staged asset's chunk content before any live
// write, so a broken reference fails the commit without partial state
func (w *Workflow) validateStaged(ctx context.Context, assets []*models.Asset) error {
	for _, asset := range assets {
		for _, encoding := range asset.Encodings {
			for _, ref := range encoding.ChunkRefs {
				if _, err := w.chunks.Get(ctx, ref); err != nil {
					return faults.IntegrityMismatch("staged chunk %s for %s unreadable: %v", ref, asset.Key.FullPath, err)
				}
			}
		}
	}
	return nil
}

func (w *Workflow) releaseChunks(ctx context.Context, assets []*models.Asset) error {
	var refs []string
	for _, asset := range assets {
		for _, encoding := range asset.Encodings {
			refs = append(refs, encoding.ChunkRefs...)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	return w.chunks.Delete(ctx, refs...)
}

func (w *Workflow) fail(ctx context.Context, p *models.Proposal, cause error) error {
	p.Status = models.ProposalFailed
	if err := w.touch(ctx, p); err != nil {
		return err
	}
	return cause
}

func (w *Workflow) touch(ctx context.Context, p *models.Proposal) error {
	p.UpdatedAt = w.now()
	p.Version++
	return w.proposals.Update(ctx, p)
}
