package addon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/addon"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

type stubEngine struct {
	descriptors map[string][]float64 // keyed by image bytes
	err         error
}

func (s stubEngine) Descriptor(_ context.Context, image []byte) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if d, ok := s.descriptors[string(image)]; ok {
		return d, nil
	}
	return nil, domain.ErrNoFace
}

func avatarResult(provider string) domain.Result {
	return domain.Result{
		Provider: provider,
		Status:   domain.StatusFound,
		Profile:  domain.Profile{"avatar_url": "https://cdn.example.com/" + provider + ".png"},
	}
}

func TestFaceMatchEngineUnavailable(t *testing.T) {
	t.Parallel()
	results := []domain.Result{avatarResult("a")}
	fm := addon.NewFaceMatch(nil, nil, newFingerprint(t), [][]float64{{1, 0}}, 0.6)
	fm.Run(context.Background(), "alice", results)
	require.Equal(t, "engine_unavailable", results[0].Profile["face_match_error"])
}

func TestFaceMatchDownloadFailed(t *testing.T) {
	t.Parallel()
	// fingerprint never ran, so no bytes are cached
	results := []domain.Result{avatarResult("a")}
	fm := addon.NewFaceMatch(stubEngine{}, nil, newFingerprint(t), [][]float64{{1, 0}}, 0.6)
	fm.Run(context.Background(), "alice", results)
	require.Equal(t, "download_failed", results[0].Profile["face_match_error"])
}

func TestFaceMatchPropagatesFetchError(t *testing.T) {
	t.Parallel()
	results := []domain.Result{avatarResult("a")}
	results[0].Profile["avatar_fetch_error"] = "onion_host"
	fm := addon.NewFaceMatch(stubEngine{}, nil, newFingerprint(t), [][]float64{{1, 0}}, 0.6)
	fm.Run(context.Background(), "alice", results)
	require.Equal(t, "onion_host", results[0].Profile["face_match_error"])
}

func TestFaceMatchSkipsNonAvatarResults(t *testing.T) {
	t.Parallel()
	results := []domain.Result{
		{Provider: "a", Status: domain.StatusFound, Profile: domain.Profile{}},
		{Provider: "b", Status: domain.StatusNotFound},
	}
	fm := addon.NewFaceMatch(stubEngine{}, nil, newFingerprint(t), [][]float64{{1, 0}}, 0.6)
	fm.Run(context.Background(), "alice", results)
	require.NotContains(t, results[0].Profile, "face_match_error")
	require.Nil(t, results[1].Profile)
}
