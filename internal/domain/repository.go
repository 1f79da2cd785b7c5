package domain

import "context"

// AssetStore returns the most recent asset records of a user's project, newest first.
type AssetStore interface {
	LatestAssets(ctx context.Context, scope Scope, limit int) ([]AssetRecord, error)
}

// JobLifecycle creates and completes job records owned by the external job system.
type JobLifecycle interface {
	CreateJob(ctx context.Context, jobID, projectID string, mode Mode) error
	MarkJobCompleted(ctx context.Context, jobID string) error
}

// ResultPersister mirrors a settled result into project storage. All calls are idempotent.
type ResultPersister interface {
	PersistResultAsset(ctx context.Context, scope Scope, mode Mode, urlOrKey string) error
	UpdateProjectThumbnail(ctx context.Context, scope Scope, urlOrKey string) error
	UpdateProjectType(ctx context.Context, scope Scope, mode Mode) error
}
