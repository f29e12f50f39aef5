// Package domain defines the scanning core's entities and ports.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrTimeout         = errors.New("timeout")
	ErrCancelled       = errors.New("cancelled")
	ErrInternal        = errors.New("internal error")
)

// ResultStatus is the terminal classification of one provider probe.
type ResultStatus string

const (
	StatusFound    ResultStatus = "found"
	StatusNotFound ResultStatus = "not_found"
	StatusUnknown  ResultStatus = "unknown"
	StatusBlocked  ResultStatus = "blocked"
	StatusError    ResultStatus = "error"
)

// Valid reports whether s is one of the five probe statuses.
func (s ResultStatus) Valid() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusUnknown, StatusBlocked, StatusError:
		return true
	}
	return false
}

// Profile is the extracted profile bag attached to a Result. Well-known keys:
// display_name, avatar_url, bio, followers, following, subscribers,
// created_at, plus addon-added keys (bio_domains, avatar_sha256,
// avatar_dhash, avatar_cluster_id, face_match, face_match_error).
type Profile map[string]any

// SetDefault stores v under k only when k is absent and v is non-empty.
// Later extraction sources must not overwrite earlier non-empty values.
func (p Profile) SetDefault(k string, v any) {
	if v == nil {
		return
	}
	if s, ok := v.(string); ok && s == "" {
		return
	}
	if _, exists := p[k]; !exists {
		p[k] = v
	}
}

// Result is the terminal record of one (username, provider) probe.
type Result struct {
	Provider   string       `json:"provider"`
	Username   string       `json:"username"`
	URL        string       `json:"url"`
	Status     ResultStatus `json:"status"`
	HTTPStatus int          `json:"http_status,omitempty"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	Profile    Profile      `json:"profile,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// JobState enumerates the scan job lifecycle.
type JobState string

const (
	JobPending JobState = "pending"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool { return s == JobDone || s == JobFailed }

// Job aggregates one scan request's results plus lifecycle state.
// Invariants: len(Results) <= ProvidersCount; Results is frozen once the
// state is terminal; ResultsCount is monotonic while running.
type Job struct {
	ID             string    `json:"job_id"`
	Username       string    `json:"username"`
	ProvidersCount int       `json:"providers_count"`
	State          JobState  `json:"state"`
	Error          string    `json:"error,omitempty"`
	Results        []Result  `json:"results"`
	ResultsCount   int       `json:"results_count"`
	FoundCount     int       `json:"found_count"`
	FailedCount    int       `json:"failed_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Provider is one configured or coded method for probing a site.
// Check must never panic out and must always return a Result whose Status
// is one of the five probe statuses; transport failures map to StatusError.
type Provider interface {
	Name() string
	BuildURL(username string) string
	Check(ctx context.Context, username string) Result
}

// Addon is a post-scan enrichment step. It mutates the passed results
// in place and must confine its failures to per-result profile keys.
type Addon interface {
	Name() string
	Run(ctx context.Context, username string, results []Result)
}

// JobStore retains jobs in a bounded process-local store.
type JobStore interface {
	Create(j Job) error
	// Get returns a copy of the job. limit < 0 returns all results;
	// limit >= 0 truncates Results to at most limit entries (counts stay).
	Get(id string, limit int) (Job, error)
	// Append adds one result and bumps the derived counters. It fails with
	// ErrConflict once the job is terminal.
	Append(id string, r Result) error
	// Mutate runs fn under the job's lock; used by the addon pipeline to
	// enrich result profiles before the job turns terminal.
	Mutate(id string, fn func(*Job)) error
	SetState(id string, state JobState, errMsg string) error
}

// FaceEngine is the optional face-matching capability. Implementations
// compute a descriptor for the largest face in an encoded image.
// A nil engine yields the engine_unavailable marker, never a job failure.
type FaceEngine interface {
	Descriptor(ctx context.Context, image []byte) ([]float64, error)
}

// ErrNoFace is returned by FaceEngine implementations when no face is
// detected in the supplied image.
var ErrNoFace = errors.New("no face")
