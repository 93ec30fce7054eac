// Package memstore provides an in-memory job store.
// Data is lost when the process terminates.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simplesurance/trymerger/internal/store"
)

type Store struct {
	lock  sync.Mutex
	repos map[int64]*store.Repository
	jobs  map[uuid.UUID]*store.TryMergeJob
}

func New() *Store {
	return &Store{
		repos: map[int64]*store.Repository{},
		jobs:  map[uuid.UUID]*store.TryMergeJob{},
	}
}

func copyJob(j *store.TryMergeJob) *store.TryMergeJob {
	c := *j
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		c.ErrorMessage = &msg
	}

	return &c
}

func (s *Store) UpsertRepository(_ context.Context, repo *store.Repository) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := time.Now().UTC()

	for id, r := range s.repos {
		if r.FullName == repo.FullName && id != repo.ID {
			r.FullName = store.OutdatedFullName(r.FullName, id)
			r.UpdatedAt = now
		}
	}

	c := *repo
	if existing, exists := s.repos[repo.ID]; exists {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	s.repos[repo.ID] = &c

	return nil
}

func (s *Store) CreateJob(_ context.Context, job *store.TryMergeJob) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.repos[job.RepositoryID]; !exists {
		return fmt.Errorf("repository %d does not exist: %w", job.RepositoryID, store.ErrNotFound)
	}

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
	}

	s.jobs[job.ID] = copyJob(job)

	return nil
}

func (s *Store) UpdateJob(_ context.Context, job *store.TryMergeJob) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	existing, exists := s.jobs[job.ID]
	if !exists || existing.Status.IsTerminal() {
		return fmt.Errorf("active job %s: %w", job.ID, store.ErrNotFound)
	}

	existing.Status = job.Status
	existing.UpdatedAt = job.UpdatedAt
	existing.ErrorMessage = copyJob(job).ErrorMessage

	return nil
}

func (s *Store) activeJobs(filter func(*store.TryMergeJob) bool) []*store.TryMergeJob {
	s.lock.Lock()
	defer s.lock.Unlock()

	var result []*store.TryMergeJob
	for _, job := range s.jobs {
		if job.Status.IsTerminal() || !filter(job) {
			continue
		}

		result = append(result, copyJob(job))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

func (s *Store) ActiveJobs(context.Context) ([]*store.TryMergeJob, error) {
	return s.activeJobs(func(*store.TryMergeJob) bool { return true }), nil
}

// Jobs returns all jobs of a pull request, oldest first.
func (s *Store) Jobs(repositoryID int64, prNumber int) []*store.TryMergeJob {
	s.lock.Lock()
	defer s.lock.Unlock()

	var result []*store.TryMergeJob
	for _, job := range s.jobs {
		if job.RepositoryID == repositoryID && job.PRNumber == prNumber {
			result = append(result, copyJob(job))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result
}
