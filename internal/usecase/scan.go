// Package usecase contains the application services orchestrating scans.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/social-hunt/internal/adapter/addon"
	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/adapter/provider"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/pkg/textx"
)

// ScanOptions tunes one submitted scan.
type ScanOptions struct {
	// Providers selects a subset by name; empty means all registered.
	Providers []string
	// FaceMatch schedules the face_match stage. When no engine is
	// configured the stage still runs and marks every candidate result
	// engine_unavailable instead of failing the scan.
	FaceMatch bool
	// FaceRefs are reference descriptors, empty without an engine.
	FaceRefs [][]float64
}

// ScanConfig carries the engine knobs the service needs.
type ScanConfig struct {
	MaxConcurrency    int
	JobDeadline       time.Duration
	DhashThreshold    int
	FaceMatchDistance float64
	AvatarMaxBytes    int64
}

// ScanService runs username scans: fan the probes out across a worker
// pool, append results as they settle so polls see partial progress,
// then run the enrichment pipeline and mark the job terminal.
type ScanService struct {
	reg     *registry.Registry
	store   domain.JobStore
	client  *httpclient.Factory
	engine  domain.FaceEngine
	restore addon.Restorer
	cfg     ScanConfig
	log     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewScanService wires the scan engine. engine and restore may be nil.
func NewScanService(reg *registry.Registry, store domain.JobStore, client *httpclient.Factory, engine domain.FaceEngine, restore addon.Restorer, cfg ScanConfig, log *slog.Logger) *ScanService {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &ScanService{
		reg:     reg,
		store:   store,
		client:  client,
		engine:  engine,
		restore: restore,
		cfg:     cfg,
		log:     log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Submit validates the username, creates a pending job and starts the
// scan in the background. It returns the job id immediately.
func (s *ScanService) Submit(ctx context.Context, username string, opts ScanOptions) (string, error) {
	clean, ok := textx.SanitizeUsername(username)
	if !ok {
		return "", fmt.Errorf("op=scan.Submit: username: %w", domain.ErrInvalidArgument)
	}
	providers := s.reg.Select(opts.Providers)
	if len(providers) == 0 {
		return "", fmt.Errorf("op=scan.Submit: no providers selected: %w", domain.ErrInvalidArgument)
	}

	id := ulid.Make().String()
	now := time.Now().UTC()
	job := domain.Job{
		ID:             id,
		Username:       clean,
		ProvidersCount: len(providers),
		State:          domain.JobPending,
		Results:        []domain.Result{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(job); err != nil {
		return "", err
	}
	observability.ScansSubmittedTotal.Inc()

	// The scan outlives the submit request; only its own deadline or an
	// explicit cancel stops it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.JobDeadline)
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	go s.run(runCtx, id, clean, providers, opts)
	return id, nil
}

// Get returns a copy of the job. limit < 0 returns all results.
func (s *ScanService) Get(id string, limit int) (domain.Job, error) {
	return s.store.Get(id, limit)
}

// Cancel stops a running job. Settled results are kept; the job turns
// failed with a cancelled marker.
func (s *ScanService) Cancel(id string) error {
	if _, err := s.store.Get(id, 0); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("op=scan.Cancel id=%s: job not running: %w", id, domain.ErrConflict)
	}
	cancel()
	return nil
}

func (s *ScanService) run(ctx context.Context, id, username string, providers []domain.Provider, opts ScanOptions) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.cancels[id]; ok {
			cancel()
			delete(s.cancels, id)
		}
		s.mu.Unlock()
	}()

	if err := s.store.SetState(id, domain.JobRunning, ""); err != nil {
		s.log.Error("job start failed", slog.String("job_id", id), slog.Any("error", err))
		return
	}
	observability.ScansRunning.Inc()
	defer observability.ScansRunning.Dec()

	start := time.Now()
	s.log.Info("scan started",
		slog.String("job_id", id),
		slog.String("username", username),
		slog.Int("providers", len(providers)))

	// Fan out over a bounded worker pool; results append in completion
	// order so polls observe progress.
	jobs := make(chan domain.Provider)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.MaxConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				res := provider.Guard(p).Check(ctx, username)
				if err := s.store.Append(id, res); err != nil {
					s.log.Warn("result dropped", slog.String("job_id", id),
						slog.String("provider", p.Name()), slog.Any("error", err))
				}
			}
		}()
	}
	dispatched := 0
dispatch:
	for _, p := range providers {
		select {
		case jobs <- p:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	// Providers never dispatched settle as cancelled error results.
	cancelled := ctx.Err() != nil
	for _, p := range providers[dispatched:] {
		_ = s.store.Append(id, domain.Result{
			Provider:  p.Name(),
			Username:  username,
			URL:       p.BuildURL(username),
			Status:    domain.StatusError,
			Error:     "cancelled",
			Timestamp: time.Now().UTC(),
		})
	}

	if !cancelled {
		s.enrich(ctx, id, username, opts)
	}

	state, errMsg := domain.JobDone, ""
	if cancelled {
		state, errMsg = domain.JobFailed, "cancelled"
	}
	if err := s.store.SetState(id, state, errMsg); err != nil {
		s.log.Error("job finish failed", slog.String("job_id", id), slog.Any("error", err))
		return
	}
	observability.ScansCompletedTotal.WithLabelValues(string(state)).Inc()
	s.log.Info("scan finished",
		slog.String("job_id", id),
		slog.String("state", string(state)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
}

// enrich runs the addon pipeline under the job lock so polls never see a
// half-enriched profile.
func (s *ScanService) enrich(ctx context.Context, id, username string, opts ScanOptions) {
	fingerprint := addon.NewAvatarFingerprint(s.client, s.cfg.AvatarMaxBytes)
	addons := []domain.Addon{
		addon.NewBioLinks(),
		fingerprint,
		addon.NewAvatarClusters(s.cfg.DhashThreshold),
	}
	if opts.FaceMatch {
		addons = append(addons, addon.NewFaceMatch(s.engine, s.restore, fingerprint, opts.FaceRefs, s.cfg.FaceMatchDistance))
	}
	pipeline := addon.NewPipeline(s.log, addons...)

	err := s.store.Mutate(id, func(j *domain.Job) {
		pipeline.Run(ctx, username, j.Results)
	})
	if err != nil {
		s.log.Warn("enrichment skipped", slog.String("job_id", id), slog.Any("error", err))
	}
}

// ReferenceDescriptors computes face descriptors for uploaded reference
// images. Images without a detectable face are skipped; an error is only
// returned when no reference yields a descriptor. Without an engine it
// returns no descriptors and no error: the scan proceeds and the
// face_match stage marks results engine_unavailable instead.
func (s *ScanService) ReferenceDescriptors(ctx context.Context, images [][]byte) ([][]float64, error) {
	if s.engine == nil {
		return nil, nil
	}
	var refs [][]float64
	for _, img := range images {
		desc, err := s.engine.Descriptor(ctx, img)
		if err != nil {
			continue
		}
		refs = append(refs, desc)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("op=scan.ReferenceDescriptors: no face found in references: %w", domain.ErrInvalidArgument)
	}
	return refs, nil
}
