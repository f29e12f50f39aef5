package usecase_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/adapter/repo/memory"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/usecase"
)

type stubProvider struct {
	name   string
	status domain.ResultStatus
	gate   chan struct{} // when non-nil, Check blocks until closed or ctx done
}

func (s *stubProvider) Name() string             { return s.name }
func (s *stubProvider) BuildURL(u string) string { return "https://" + s.name + ".example/" + u }

func (s *stubProvider) Check(ctx context.Context, username string) domain.Result {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return domain.Result{
				Provider: s.name, Username: username, URL: s.BuildURL(username),
				Status: domain.StatusError, Error: "cancelled", Timestamp: time.Now().UTC(),
			}
		}
	}
	return domain.Result{
		Provider: s.name, Username: username, URL: s.BuildURL(username),
		Status: s.status, Timestamp: time.Now().UTC(),
	}
}

func newService(t *testing.T, providers ...domain.Provider) (*usecase.ScanService, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, nil, slog.Default())
	for _, p := range providers {
		p := p
		reg.Register(p.Name(), func(*registry.Spec) domain.Provider { return p })
	}
	require.NoError(t, reg.Load())

	factory, err := httpclient.New("")
	require.NoError(t, err)
	store := memory.NewJobsRepo(16, time.Hour)
	svc := usecase.NewScanService(reg, store, factory, nil, nil, usecase.ScanConfig{
		MaxConcurrency:    4,
		JobDeadline:       10 * time.Second,
		DhashThreshold:    10,
		FaceMatchDistance: 0.6,
		AvatarMaxBytes:    4 << 20,
	}, slog.Default())
	return svc, reg
}

func waitTerminal(t *testing.T, svc *usecase.ScanService, id string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Get(id, -1)
		require.NoError(t, err)
		if job.State.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return domain.Job{}
}

func TestSubmitRejectsBadUsername(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, &stubProvider{name: "a", status: domain.StatusFound})
	_, err := svc.Submit(context.Background(), "   ", usecase.ScanOptions{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, &stubProvider{name: "a", status: domain.StatusFound})
	_, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{Providers: []string{"nope"}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestScanCompletes(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t,
		&stubProvider{name: "a", status: domain.StatusFound},
		&stubProvider{name: "b", status: domain.StatusNotFound},
		&stubProvider{name: "c", status: domain.StatusBlocked},
	)
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{})
	require.NoError(t, err)

	job := waitTerminal(t, svc, id)
	require.Equal(t, domain.JobDone, job.State)
	require.Equal(t, 3, job.ProvidersCount)
	require.Equal(t, 3, job.ResultsCount)
	require.Equal(t, 1, job.FoundCount)
	require.Equal(t, "alice", job.Username)
}

func TestScanPartialResultsWhileRunning(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	svc, _ := newService(t,
		&stubProvider{name: "fast", status: domain.StatusFound},
		&stubProvider{name: "slow", status: domain.StatusFound, gate: gate},
	)
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{})
	require.NoError(t, err)

	// the fast provider settles while the slow one is still blocked
	require.Eventually(t, func() bool {
		job, err := svc.Get(id, -1)
		return err == nil && job.ResultsCount == 1 && job.State == domain.JobRunning
	}, 3*time.Second, 10*time.Millisecond)

	job, err := svc.Get(id, -1)
	require.NoError(t, err)
	require.Equal(t, "fast", job.Results[0].Provider)

	close(gate)
	job = waitTerminal(t, svc, id)
	require.Equal(t, domain.JobDone, job.State)
	require.Equal(t, 2, job.ResultsCount)
}

func TestScanCancellation(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	defer close(gate)
	svc, _ := newService(t,
		&stubProvider{name: "fast", status: domain.StatusFound},
		&stubProvider{name: "slow", status: domain.StatusFound, gate: gate},
	)
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := svc.Get(id, -1)
		return err == nil && job.ResultsCount >= 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Cancel(id))

	job := waitTerminal(t, svc, id)
	require.Equal(t, domain.JobFailed, job.State)
	require.Equal(t, "cancelled", job.Error)
	// every provider settled one way or another
	require.Equal(t, job.ProvidersCount, job.ResultsCount)
	// settled results are preserved
	var kept bool
	for _, r := range job.Results {
		if r.Provider == "fast" && r.Status == domain.StatusFound {
			kept = true
		}
	}
	require.True(t, kept)
}

func TestScanSubsetSelection(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t,
		&stubProvider{name: "a", status: domain.StatusFound},
		&stubProvider{name: "b", status: domain.StatusFound},
	)
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{Providers: []string{"b"}})
	require.NoError(t, err)

	job := waitTerminal(t, svc, id)
	require.Equal(t, 1, job.ProvidersCount)
	require.Equal(t, "b", job.Results[0].Provider)
}

func TestScanEnrichmentRunsBeforeTerminal(t *testing.T) {
	t.Parallel()
	bioProv := &stubProviderWithProfile{name: "withbio"}
	svc, _ := newService(t, bioProv)
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{})
	require.NoError(t, err)

	job := waitTerminal(t, svc, id)
	require.Equal(t, domain.JobDone, job.State)
	domains, _ := job.Results[0].Profile["bio_domains"].([]string)
	require.Equal(t, []string{"example.com"}, domains)
}

func TestScanFaceMatchWithoutEngine(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, &stubProviderWithAvatar{name: "pic"})
	id, err := svc.Submit(context.Background(), "alice", usecase.ScanOptions{FaceMatch: true})
	require.NoError(t, err)

	// no engine configured: the scan still completes and each candidate
	// result is marked instead
	job := waitTerminal(t, svc, id)
	require.Equal(t, domain.JobDone, job.State)
	require.Equal(t, "engine_unavailable", job.Results[0].Profile["face_match_error"])
	require.NotContains(t, job.Results[0].Profile, "face_match")
}

func TestReferenceDescriptorsWithoutEngine(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, &stubProvider{name: "a", status: domain.StatusFound})
	refs, err := svc.ReferenceDescriptors(context.Background(), [][]byte{[]byte("img")})
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, &stubProvider{name: "a", status: domain.StatusFound})
	require.ErrorIs(t, svc.Cancel("missing"), domain.ErrNotFound)
}

type stubProviderWithAvatar struct{ name string }

func (s *stubProviderWithAvatar) Name() string             { return s.name }
func (s *stubProviderWithAvatar) BuildURL(u string) string { return "https://x.example/" + u }
func (s *stubProviderWithAvatar) Check(_ context.Context, username string) domain.Result {
	// loopback avatar: the fetch stage refuses it without touching the
	// network, keeping the test offline
	return domain.Result{
		Provider: s.name, Username: username, URL: s.BuildURL(username),
		Status:    domain.StatusFound,
		Profile:   domain.Profile{"avatar_url": "https://127.0.0.1/a.png"},
		Timestamp: time.Now().UTC(),
	}
}

type stubProviderWithProfile struct{ name string }

func (s *stubProviderWithProfile) Name() string             { return s.name }
func (s *stubProviderWithProfile) BuildURL(u string) string { return "https://x.example/" + u }
func (s *stubProviderWithProfile) Check(_ context.Context, username string) domain.Result {
	return domain.Result{
		Provider: s.name, Username: username, URL: s.BuildURL(username),
		Status:    domain.StatusFound,
		Profile:   domain.Profile{"bio": "see https://blog.example.com/me"},
		Timestamp: time.Now().UTC(),
	}
}
