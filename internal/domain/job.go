package domain

import (
	"strings"

	"github.com/google/uuid"
)

// JobIDPrefix marks identifiers generated by the studio.
const JobIDPrefix = "job_"

// NewJobID returns a fresh opaque job identifier. Identifiers are never reused.
func NewJobID() string {
	return JobIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}
