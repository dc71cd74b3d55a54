package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/junobuild/satellite/common/db"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/proposal"
)

// ProposalRepository persists proposal records and their id sequence
type ProposalRepository struct {
	db *db.DB
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(database *db.DB) *ProposalRepository {
	return &ProposalRepository{db: database}
}

var _ proposal.Store = (*ProposalRepository)(nil)

func (r *ProposalRepository) Get(ctx context.Context, id uint64) (*models.Proposal, error) {
	query := `
		SELECT proposal_id, owner, proposal_type, status, sha256, created_at, updated_at, executed_at, version
		FROM proposal
		WHERE proposal_id = $1
	`

	p := &models.Proposal{}
	err := r.db.QueryRow(ctx, query, int64(id)).Scan(
		&p.ID,
		&p.Owner,
		&p.Type,
		&p.Status,
		&p.SHA256,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.ExecutedAt,
		&p.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %d: %w", id, err)
	}
	return p, nil
}

func (r *ProposalRepository) Insert(ctx context.Context, p *models.Proposal) error {
	query := `
		INSERT INTO proposal (proposal_id, owner, proposal_type, status, sha256, created_at, updated_at, executed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		int64(p.ID),
		p.Owner,
		p.Type,
		p.Status,
		p.SHA256,
		p.CreatedAt,
		p.UpdatedAt,
		p.ExecutedAt,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal %d: %w", p.ID, err)
	}
	return nil
}

func (r *ProposalRepository) Update(ctx context.Context, p *models.Proposal) error {
	query := `
		UPDATE proposal
		SET status = $2, sha256 = $3, updated_at = $4, executed_at = $5, version = $6
		WHERE proposal_id = $1
	`

	_, err := r.db.Exec(ctx, query,
		int64(p.ID),
		p.Status,
		p.SHA256,
		p.UpdatedAt,
		p.ExecutedAt,
		p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update proposal %d: %w", p.ID, err)
	}
	return nil
}

// List pages proposals by id range. Descending order reverses the fetched
// page, matching the in-memory store.
func (r *ProposalRepository) List(ctx context.Context, params proposal.ListParams) ([]*models.Proposal, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = proposal.DefaultPageSize
	}

	order := "ASC"
	if params.Desc {
		order = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT proposal_id, owner, proposal_type, status, sha256, created_at, updated_at, executed_at, version
		FROM (
			SELECT * FROM proposal
			WHERE proposal_id > $1
			ORDER BY proposal_id ASC
			LIMIT $2
		) page
		ORDER BY proposal_id %s
	`, order)

	rows, err := r.db.Query(ctx, query, int64(params.StartAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer rows.Close()

	var out []*models.Proposal
	for rows.Next() {
		p := &models.Proposal{}
		if err := rows.Scan(
			&p.ID, &p.Owner, &p.Type, &p.Status, &p.SHA256,
			&p.CreatedAt, &p.UpdatedAt, &p.ExecutedAt, &p.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proposals: %w", err)
	}
	return out, nil
}

func (r *ProposalRepository) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM proposal`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}
	return count, nil
}

func (r *ProposalRepository) NextID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := r.db.QueryRow(ctx, `SELECT nextval('proposal_id_seq')`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to allocate proposal id: %w", err)
	}
	return id, nil
}

// StagedAssetRepository persists the assets a proposal stages before commit
type StagedAssetRepository struct {
	db *db.DB
}

// NewStagedAssetRepository creates a new staged asset repository
func NewStagedAssetRepository(database *db.DB) *StagedAssetRepository {
	return &StagedAssetRepository{db: database}
}

var _ proposal.StagedStore = (*StagedAssetRepository)(nil)

func (r *StagedAssetRepository) Put(ctx context.Context, proposalID uint64, asset *models.Asset) error {
	payload, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to encode staged asset %s: %w", asset.Key.FullPath, err)
	}

	query := `
		INSERT INTO staged_asset (proposal_id, full_path, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id, full_path) DO UPDATE SET payload = $3
	`

	if _, err := r.db.Exec(ctx, query, int64(proposalID), asset.Key.FullPath, payload); err != nil {
		return fmt.Errorf("failed to stage asset %s: %w", asset.Key.FullPath, err)
	}
	return nil
}

func (r *StagedAssetRepository) List(ctx context.Context, proposalID uint64) ([]*models.Asset, error) {
	query := `
		SELECT payload FROM staged_asset
		WHERE proposal_id = $1
		ORDER BY full_path ASC
	`

	rows, err := r.db.Query(ctx, query, int64(proposalID))
	if err != nil {
		return nil, fmt.Errorf("failed to list staged assets: %w", err)
	}
	defer rows.Close()

	return scanStagedAssets(rows)
}

func (r *StagedAssetRepository) Purge(ctx context.Context, proposalID uint64) ([]*models.Asset, error) {
	query := `
		DELETE FROM staged_asset
		WHERE proposal_id = $1
		RETURNING payload
	`

	rows, err := r.db.Query(ctx, query, int64(proposalID))
	if err != nil {
		return nil, fmt.Errorf("failed to purge staged assets: %w", err)
	}
	defer rows.Close()

	return scanStagedAssets(rows)
}

func scanStagedAssets(rows pgx.Rows) ([]*models.Asset, error) {
	var out []*models.Asset
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan staged asset: %w", err)
		}
		asset, err := decodeAsset(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read staged assets: %w", err)
	}
	return out, nil
}
