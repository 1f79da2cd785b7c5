package repo

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobRepository implements domain.JobLifecycle by calling the job functions owned by the
// database.
type JobRepository struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db infra.SQLExecutor) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob registers jobID for the project before the render is dispatched.
func (r *JobRepository) CreateJob(ctx context.Context, jobID, projectID string, mode domain.Mode) error {
	if jobID == "" || projectID == "" {
		return domain.ErrMissingContext
	}
	if _, err := r.db.Exec(ctx, sqlinline.QCreateJob, jobID, projectID, string(mode)); err != nil {
		return fmt.Errorf("create job %s: %w", jobID, err)
	}
	return nil
}

// MarkJobCompleted settles every record of jobID.
func (r *JobRepository) MarkJobCompleted(ctx context.Context, jobID string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QMarkJobCompleted, jobID); err != nil {
		return fmt.Errorf("mark job %s completed: %w", jobID, err)
	}
	return nil
}

var _ domain.JobLifecycle = (*JobRepository)(nil)
