// Package store contains the persisted data model of try-merge jobs.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is a snapshot of a GitHub repository, taken from the event that
// triggered a job.
type Repository struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	FullName      string    `db:"full_name"`
	Owner         string    `db:"owner"`
	DefaultBranch string    `db:"default_branch"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *Repository) String() string {
	return r.FullName
}

// OutdatedFullName returns the full name that is stored for the repository
// with the given id after another repository took over its name.
// '#' is not allowed in GitHub repository names, the result can not clash
// with an existing repository.
func OutdatedFullName(fullName string, id int64) string {
	return fmt.Sprintf("%s#%d", fullName, id)
}

// JobStatus is the lifecycle state of a TryMergeJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal returns true if a job in the state can not change anymore.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TryMergeJob is one attempt to validate a pull request via a try-branch.
type TryMergeJob struct {
	ID           uuid.UUID `db:"id"`
	RepositoryID int64     `db:"repository_id"`
	PRNumber     int       `db:"pr_number"`
	BranchName   string    `db:"branch_name"`
	Status       JobStatus `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	// ErrorMessage is only set when Status is JobStatusFailed.
	ErrorMessage *string `db:"error_message"`
}

// NewRunningJob returns a job in running state with a new random ID.
func NewRunningJob(repositoryID int64, prNumber int, branchName string) *TryMergeJob {
	now := time.Now().UTC()

	return &TryMergeJob{
		ID:           uuid.New(),
		RepositoryID: repositoryID,
		PRNumber:     prNumber,
		BranchName:   branchName,
		Status:       JobStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Complete transitions the job to completed state and clears the error message.
func (j *TryMergeJob) Complete() {
	j.Status = JobStatusCompleted
	j.ErrorMessage = nil
	j.UpdatedAt = time.Now().UTC()
}

// Fail transitions the job to failed state.
// An empty msg is replaced by a generic one, a failed job always has a
// non-empty ErrorMessage.
func (j *TryMergeJob) Fail(msg string) {
	if msg == "" {
		msg = "unknown error"
	}

	j.Status = JobStatusFailed
	j.ErrorMessage = &msg
	j.UpdatedAt = time.Now().UTC()
}

// Error returns the error message or an empty string.
func (j *TryMergeJob) Error() string {
	if j.ErrorMessage == nil {
		return ""
	}

	return *j.ErrorMessage
}

func (j *TryMergeJob) String() string {
	return fmt.Sprintf("job %s (pr: #%d, branch: %s, status: %s)", j.ID, j.PRNumber, j.BranchName, j.Status)
}
