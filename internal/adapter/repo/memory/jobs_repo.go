// Package memory implements the process-local bounded job store.
package memory

import (
	"container/list"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// JobsRepo is an LRU-bounded, TTL-pruned job store. Eviction runs on
// every insert: first jobs whose terminal state outlived the TTL, then
// the least recently read job once capacity is exceeded. Running jobs
// are never TTL-pruned but can still fall off the LRU end.
type JobsRepo struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	now func() time.Time
}

type entry struct {
	job        domain.Job
	terminalAt time.Time
}

// NewJobsRepo builds a store holding at most capacity jobs, dropping
// terminal jobs ttl after completion.
func NewJobsRepo(capacity int, ttl time.Duration) *JobsRepo {
	if capacity < 1 {
		capacity = 1
	}
	return &JobsRepo{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Create implements domain.JobStore.
func (r *JobsRepo) Create(j domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[j.ID]; exists {
		return fmt.Errorf("op=memory.Create id=%s: %w", j.ID, domain.ErrConflict)
	}
	r.pruneLocked()
	el := r.order.PushFront(&entry{job: j})
	r.entries[j.ID] = el
	for r.order.Len() > r.capacity {
		r.evictOldestLocked()
	}
	return nil
}

// Get implements domain.JobStore. The returned job is a deep copy; a
// non-negative limit truncates Results while the counters keep the
// full totals.
func (r *JobsRepo) Get(id string, limit int) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.entries[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("op=memory.Get id=%s: %w", id, domain.ErrNotFound)
	}
	r.order.MoveToFront(el)
	j := el.Value.(*entry).job
	results := j.Results
	if limit >= 0 && limit < len(results) {
		results = results[:limit]
	}
	// Copy keeps callers and the store isolated: the enrichment pipeline
	// mutates stored Profile maps under the lock, so the returned results
	// must not alias them. An empty copy still marshals as [] rather
	// than null.
	j.Results = append(make([]domain.Result, 0, len(results)), results...)
	for i := range j.Results {
		j.Results[i].Profile = maps.Clone(j.Results[i].Profile)
	}
	return j, nil
}

// Append implements domain.JobStore.
func (r *JobsRepo) Append(id string, res domain.Result) error {
	return r.mutate(id, func(j *domain.Job) error {
		if j.State.Terminal() {
			return fmt.Errorf("op=memory.Append id=%s state=%s: %w", id, j.State, domain.ErrConflict)
		}
		j.Results = append(j.Results, res)
		j.ResultsCount = len(j.Results)
		switch res.Status {
		case domain.StatusFound:
			j.FoundCount++
		case domain.StatusError:
			j.FailedCount++
		}
		return nil
	})
}

// Mutate implements domain.JobStore.
func (r *JobsRepo) Mutate(id string, fn func(*domain.Job)) error {
	return r.mutate(id, func(j *domain.Job) error {
		fn(j)
		return nil
	})
}

// SetState implements domain.JobStore.
func (r *JobsRepo) SetState(id string, state domain.JobState, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("op=memory.SetState id=%s: %w", id, domain.ErrNotFound)
	}
	e := el.Value.(*entry)
	if e.job.State.Terminal() {
		return fmt.Errorf("op=memory.SetState id=%s state=%s: %w", id, e.job.State, domain.ErrConflict)
	}
	e.job.State = state
	e.job.Error = errMsg
	e.job.UpdatedAt = r.now().UTC()
	if state.Terminal() {
		e.terminalAt = r.now()
	}
	return nil
}

func (r *JobsRepo) mutate(id string, fn func(*domain.Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("op=memory.mutate id=%s: %w", id, domain.ErrNotFound)
	}
	e := el.Value.(*entry)
	if err := fn(&e.job); err != nil {
		return err
	}
	e.job.UpdatedAt = r.now().UTC()
	return nil
}

// pruneLocked drops terminal jobs whose TTL elapsed.
func (r *JobsRepo) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	for el := r.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !e.terminalAt.IsZero() && e.terminalAt.Before(cutoff) {
			delete(r.entries, e.job.ID)
			r.order.Remove(el)
		}
		el = prev
	}
}

func (r *JobsRepo) evictOldestLocked() {
	el := r.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry)
	delete(r.entries, e.job.ID)
	r.order.Remove(el)
}
