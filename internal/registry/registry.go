// Package registry provides a keyed try-lock that ensures that at most one
// try-merge job runs per pull request.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Key returns the registry key of a pull request.
func Key(repositoryFullName string, prNumber int) string {
	return fmt.Sprintf("%s#%d", repositoryFullName, prNumber)
}

// Entry describes the owner of an acquired slot.
type Entry struct {
	Key        string
	JobID      string
	AcquiredAt time.Time
}

// Registry is a concurrency-safe set of acquired keys.
// The zero value is not usable, use New().
type Registry struct {
	lock    sync.Mutex
	entries map[string]*Entry
}

func New() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// TryAcquire acquires the slot for key.
// If the slot is already acquired, false is returned and nothing is changed.
func (r *Registry) TryAcquire(key string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.entries[key]; exists {
		return false
	}

	r.entries[key] = &Entry{Key: key, AcquiredAt: time.Now()}

	return true
}

// SetJobID associates a job id with an acquired slot.
// It is a noop if the slot is not acquired.
func (r *Registry) SetJobID(key, jobID string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if e, exists := r.entries[key]; exists {
		e.JobID = jobID
	}
}

// Release frees the slot for key, it is a noop if the slot is not acquired.
func (r *Registry) Release(key string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.entries, key)
}

// Len returns the number of acquired slots.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.entries)
}

// Entries returns copies of all entries, ordered by acquisition time.
func (r *Registry) Entries() []Entry {
	r.lock.Lock()
	result := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, *e)
	}
	r.lock.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].AcquiredAt.Before(result[j].AcquiredAt)
	})

	return result
}
