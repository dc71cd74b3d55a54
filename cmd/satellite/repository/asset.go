package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/junobuild/satellite/common/db"
	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
	"github.com/junobuild/satellite/common/storage"
)

// StableAssetRepository is the durable asset store backing collections with
// stable affinity. Chunk content lives in the content-addressed chunk
// store; the asset payload here carries only the chunk references.
type StableAssetRepository struct {
	db *db.DB
}

// NewStableAssetRepository creates a new stable asset repository
func NewStableAssetRepository(database *db.DB) *StableAssetRepository {
	return &StableAssetRepository{db: database}
}

var _ storage.AssetStrategy = (*StableAssetRepository)(nil)

// CreateCollection registers a collection namespace
func (r *StableAssetRepository) CreateCollection(ctx context.Context, collection string) error {
	query := `
		INSERT INTO stable_collection (collection)
		VALUES ($1)
		ON CONFLICT (collection) DO NOTHING
	`

	if _, err := r.db.Exec(ctx, query, collection); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	return nil
}

// Get retrieves the asset at (collection, full_path), nil when absent
func (r *StableAssetRepository) Get(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	query := `
		SELECT payload
		FROM stable_asset
		WHERE collection = $1 AND full_path = $2
	`

	var payload []byte
	err := r.db.QueryRow(ctx, query, collection, fullPath).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := r.requireCollection(ctx, collection); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", fullPath, err)
	}

	return decodeAsset(payload)
}

// Insert upserts the asset under (collection, full_path)
func (r *StableAssetRepository) Insert(ctx context.Context, collection, fullPath string, asset *models.Asset) error {
	if err := r.requireCollection(ctx, collection); err != nil {
		return err
	}

	payload, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("failed to encode asset %s: %w", fullPath, err)
	}

	query := `
		INSERT INTO stable_asset (collection, full_path, owner, description, payload, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (collection, full_path) DO UPDATE
		SET owner = $3, description = $4, payload = $5, updated_at = $7, version = $8
	`

	_, err = r.db.Exec(ctx, query,
		collection,
		fullPath,
		asset.Key.Owner,
		asset.Key.Description,
		payload,
		asset.CreatedAt,
		asset.UpdatedAt,
		asset.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset %s: %w", fullPath, err)
	}
	return nil
}

// Delete removes and returns the asset, nil when absent
func (r *StableAssetRepository) Delete(ctx context.Context, collection, fullPath string) (*models.Asset, error) {
	query := `
		DELETE FROM stable_asset
		WHERE collection = $1 AND full_path = $2
		RETURNING payload
	`

	var payload []byte
	err := r.db.QueryRow(ctx, query, collection, fullPath).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := r.requireCollection(ctx, collection); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete asset %s: %w", fullPath, err)
	}

	return decodeAsset(payload)
}

// List returns a filtered, ordered, paginated page of the collection.
// Pagination is keyset based: the cursor names the last seen full path and
// the page starts strictly after its position in the requested order.
func (r *StableAssetRepository) List(ctx context.Context, collection string, params storage.ListParams) (*storage.ListResult, error) {
	if err := r.requireCollection(ctx, collection); err != nil {
		return nil, err
	}

	where := "collection = $1"
	args := []any{collection}

	if params.Filter.MatcherFullPath != "" {
		args = append(args, params.Filter.MatcherFullPath)
		where += fmt.Sprintf(" AND full_path ~ $%d", len(args))
	}
	if params.Filter.MatcherDescription != "" {
		args = append(args, params.Filter.MatcherDescription)
		where += fmt.Sprintf(" AND description ~ $%d", len(args))
	}
	if params.Filter.Owner != nil {
		args = append(args, *params.Filter.Owner)
		where += fmt.Sprintf(" AND owner = $%d", len(args))
	}

	var matches int
	countQuery := "SELECT COUNT(*) FROM stable_asset WHERE " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&matches); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	orderCol := orderColumn(params.Order.Field)
	direction := "ASC"
	comparison := ">"
	if params.Order.Desc {
		direction = "DESC"
		comparison = "<"
	}

	pageWhere := where
	if params.Pagination.StartAfter != nil {
		args = append(args, collection, *params.Pagination.StartAfter)
		pageWhere += fmt.Sprintf(
			" AND (%s, full_path) %s (SELECT %s, full_path FROM stable_asset WHERE collection = $%d AND full_path = $%d)",
			orderCol, comparison, orderCol, len(args)-1, len(args),
		)
	}

	pageQuery := fmt.Sprintf(
		"SELECT payload FROM stable_asset WHERE %s ORDER BY %s %s, full_path %s",
		pageWhere, orderCol, direction, direction,
	)
	if params.Pagination.Limit > 0 {
		args = append(args, params.Pagination.Limit)
		pageQuery += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, pageQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var items []*models.Asset
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		asset, err := decodeAsset(payload)
		if err != nil {
			return nil, err
		}
		items = append(items, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assets: %w", err)
	}

	return &storage.ListResult{
		Items:         items,
		ItemsLength:   len(items),
		MatchesLength: matches,
	}, nil
}

func (r *StableAssetRepository) requireCollection(ctx context.Context, collection string) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM stable_collection WHERE collection = $1)`
	if err := r.db.QueryRow(ctx, query, collection).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		return faults.NotFound("collection %s", collection)
	}
	return nil
}

func orderColumn(field storage.OrderField) string {
	switch field {
	case storage.OrderCreatedAt:
		return "created_at"
	case storage.OrderUpdatedAt:
		return "updated_at"
	default:
		return "full_path"
	}
}

func decodeAsset(payload []byte) (*models.Asset, error) {
	var asset models.Asset
	if err := json.Unmarshal(payload, &asset); err != nil {
		return nil, fmt.Errorf("failed to decode asset payload: %w", err)
	}
	return &asset, nil
}
