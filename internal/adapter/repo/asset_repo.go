package repo

import (
	"context"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// AssetRepository implements domain.AssetStore over the project asset table.
type AssetRepository struct {
	db infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(db infra.SQLExecutor) *AssetRepository {
	return &AssetRepository{db: db}
}

// LatestAssets returns up to limit records of the scope, newest first.
func (r *AssetRepository) LatestAssets(ctx context.Context, scope domain.Scope, limit int) ([]domain.AssetRecord, error) {
	if !scope.Complete() {
		return nil, domain.ErrMissingContext
	}
	if limit <= 0 {
		limit = 15
	}
	rows, err := r.db.Query(ctx, sqlinline.QLatestAssets, scope.UserID, scope.ProjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AssetRecord
	for rows.Next() {
		var rec domain.AssetRecord
		if err := rows.Scan(&rec.URL, &rec.Role, &rec.Type, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ domain.AssetStore = (*AssetRepository)(nil)
