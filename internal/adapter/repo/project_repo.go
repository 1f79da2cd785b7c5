package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"studio/internal/assets"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
	"studio/internal/studio"
)

// seedAssetLimit bounds the asset rows read when a session is first opened.
const seedAssetLimit = 50

// ProjectRepository writes settled results back to the project and reads the state a new
// studio session starts from.
type ProjectRepository struct {
	db       infra.SQLExecutor
	assets   *AssetRepository
	resolver assets.Resolver
}

// NewProjectRepository creates a project repository. resolver turns stored keys into the
// URLs a seeded gallery shows.
func NewProjectRepository(db infra.SQLExecutor, resolver assets.Resolver) *ProjectRepository {
	return &ProjectRepository{db: db, assets: NewAssetRepository(db), resolver: resolver}
}

// PersistResultAsset records a result row. Re-recording the same url is a no-op.
func (r *ProjectRepository) PersistResultAsset(ctx context.Context, scope domain.Scope, mode domain.Mode, urlOrKey string) error {
	if !scope.Complete() {
		return domain.ErrMissingContext
	}
	if urlOrKey == "" {
		return nil
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertResultAsset, scope.UserID, scope.ProjectID, domain.AssetTypeFor(mode), urlOrKey); err != nil {
		return fmt.Errorf("persist result asset: %w", err)
	}
	return nil
}

// RecordSource stores an uploaded source image so a reopened project starts from it.
func (r *ProjectRepository) RecordSource(ctx context.Context, scope domain.Scope, key string) error {
	if !scope.Complete() {
		return domain.ErrMissingContext
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertSourceAsset, scope.UserID, scope.ProjectID, key); err != nil {
		return fmt.Errorf("record source asset: %w", err)
	}
	return nil
}

// UpdateProjectThumbnail points the project card at the latest photo result.
func (r *ProjectRepository) UpdateProjectThumbnail(ctx context.Context, scope domain.Scope, urlOrKey string) error {
	if !scope.Complete() {
		return domain.ErrMissingContext
	}
	if urlOrKey == "" {
		return nil
	}
	if _, err := r.db.Exec(ctx, sqlinline.QUpdateProjectThumbnail, scope.UserID, scope.ProjectID, urlOrKey); err != nil {
		return fmt.Errorf("update project thumbnail: %w", err)
	}
	return nil
}

// UpdateProjectType stamps the mode of the last settled render on the project.
func (r *ProjectRepository) UpdateProjectType(ctx context.Context, scope domain.Scope, mode domain.Mode) error {
	if !scope.Complete() {
		return domain.ErrMissingContext
	}
	if _, err := r.db.Exec(ctx, sqlinline.QUpdateProjectType, scope.UserID, scope.ProjectID, string(mode)); err != nil {
		return fmt.Errorf("update project type: %w", err)
	}
	return nil
}

// LoadSeed reads the project's type, the owner's plan and the newest asset pair. A project
// whose type is video, or that already holds a video asset, opens in video mode.
func (r *ProjectRepository) LoadSeed(ctx context.Context, scope domain.Scope) (studio.Seed, error) {
	seed := studio.Seed{Scope: scope, Mode: domain.ModePhoto}

	var projectType, thumbnail string
	err := r.db.QueryRow(ctx, sqlinline.QLoadProject, scope.UserID, scope.ProjectID).Scan(&projectType, &thumbnail)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return seed, domain.ErrNotFound
	case err != nil:
		return seed, fmt.Errorf("load project: %w", err)
	}

	var plan string
	err = r.db.QueryRow(ctx, sqlinline.QLoadUserPlan, scope.UserID).Scan(&plan)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return seed, fmt.Errorf("load plan: %w", err)
	}
	seed.Plan = plan

	rows, err := r.assets.LatestAssets(ctx, scope, seedAssetLimit)
	if err != nil {
		return seed, fmt.Errorf("load assets: %w", err)
	}
	latest := assets.Select(rows, r.resolver)
	seed.Before = latest.BeforeURL
	seed.After = latest.AfterURL
	if seed.After == "" && thumbnail != "" && seed.Before != "" {
		seed.After = r.resolver.Resolve(thumbnail)
	}
	if projectType == string(domain.ModeVideo) || latest.VideoKey != "" {
		seed.Mode = domain.ModeVideo
	}
	return seed, nil
}

var _ domain.ResultPersister = (*ProjectRepository)(nil)
