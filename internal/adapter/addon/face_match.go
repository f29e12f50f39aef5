package addon

import (
	"context"
	"math"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// Restorer optionally sharpens a degraded avatar before the descriptor
// is computed. Restoration failures are silently ignored; the original
// bytes are used instead.
type Restorer interface {
	Restore(ctx context.Context, image []byte) ([]byte, error)
}

// FaceMatch compares avatar faces against a set of reference descriptors
// computed at submit time. It reuses the bytes downloaded by the
// avatar_fingerprint stage, so it must run after it in the pipeline.
// Per-result outcomes land in face_match / face_match_error only.
type FaceMatch struct {
	engine      domain.FaceEngine
	restorer    Restorer
	avatars     *AvatarFingerprint
	refs        [][]float64
	maxDistance float64
}

// NewFaceMatch builds the face_match addon. refs may be empty when no
// engine is configured; candidate results then carry the
// engine_unavailable marker rather than a match verdict.
func NewFaceMatch(engine domain.FaceEngine, restorer Restorer, avatars *AvatarFingerprint, refs [][]float64, maxDistance float64) *FaceMatch {
	return &FaceMatch{
		engine:      engine,
		restorer:    restorer,
		avatars:     avatars,
		refs:        refs,
		maxDistance: maxDistance,
	}
}

// Name implements domain.Addon.
func (f *FaceMatch) Name() string { return "face_match" }

// Run implements domain.Addon.
func (f *FaceMatch) Run(ctx context.Context, _ string, results []domain.Result) {
	for i := range results {
		r := &results[i]
		if r.Status != domain.StatusFound || r.Profile == nil {
			continue
		}
		if _, ok := r.Profile["avatar_url"].(string); !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		f.matchOne(ctx, r)
	}
}

func (f *FaceMatch) matchOne(ctx context.Context, r *domain.Result) {
	if f.engine == nil {
		r.Profile.SetDefault("face_match_error", "engine_unavailable")
		return
	}
	if fetchErr, ok := r.Profile["avatar_fetch_error"].(string); ok {
		r.Profile.SetDefault("face_match_error", fetchErr)
		return
	}
	img := f.avatars.AvatarBytes(r.Provider)
	if img == nil {
		r.Profile.SetDefault("face_match_error", "download_failed")
		return
	}

	if f.restorer != nil {
		if restored, err := f.restorer.Restore(ctx, img); err == nil && len(restored) > 0 {
			img = restored
		}
	}

	desc, err := f.engine.Descriptor(ctx, img)
	if err != nil {
		if err == domain.ErrNoFace {
			r.Profile.SetDefault("face_match_error", "no_face")
		} else {
			r.Profile.SetDefault("face_match_error", shortErr(err))
		}
		return
	}

	best := math.Inf(1)
	for _, ref := range f.refs {
		if d, ok := euclidean(desc, ref); ok && d < best {
			best = d
		}
	}
	if math.IsInf(best, 1) {
		r.Profile.SetDefault("face_match_error", "no_reference")
		return
	}
	r.Profile.SetDefault("face_match", map[string]any{
		"matched":  best <= f.maxDistance,
		"distance": math.Round(best*1000) / 1000,
	})
}

func euclidean(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), true
}
