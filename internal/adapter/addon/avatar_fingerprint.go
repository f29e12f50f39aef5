package addon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// allowed avatar media types; anything else is refused before decoding
var avatarContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// AvatarFingerprint downloads each found result's avatar through the
// SSRF-guarded fetcher and attaches a sha256 plus perceptual dHash.
// Onion-hosted avatars are skipped rather than routed through the proxy.
// Failures land in avatar_fetch_error on the affected result only.
type AvatarFingerprint struct {
	client   *httpclient.Factory
	maxBytes int64

	mu    sync.Mutex
	bytes map[string][]byte // provider name -> raw avatar, for later addons
}

// NewAvatarFingerprint builds the avatar_fingerprint addon.
func NewAvatarFingerprint(client *httpclient.Factory, maxBytes int64) *AvatarFingerprint {
	return &AvatarFingerprint{
		client:   client,
		maxBytes: maxBytes,
		bytes:    make(map[string][]byte),
	}
}

// Name implements domain.Addon.
func (a *AvatarFingerprint) Name() string { return "avatar_fingerprint" }

// AvatarBytes hands the downloaded avatar for a provider to later
// pipeline stages, avoiding a second download.
func (a *AvatarFingerprint) AvatarBytes(provider string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes[provider]
}

// Run implements domain.Addon.
func (a *AvatarFingerprint) Run(ctx context.Context, _ string, results []domain.Result) {
	for i := range results {
		r := &results[i]
		if r.Status != domain.StatusFound || r.Profile == nil {
			continue
		}
		rawURL, ok := r.Profile["avatar_url"].(string)
		if !ok || rawURL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		a.fingerprint(ctx, r, rawURL)
	}
}

func (a *AvatarFingerprint) fingerprint(ctx context.Context, r *domain.Result, rawURL string) {
	if httpclient.IsOnionHost(rawURL) {
		r.Profile.SetDefault("avatar_fetch_error", "onion_host")
		observability.AvatarFetchesTotal.WithLabelValues("skipped_onion").Inc()
		return
	}

	body, ctype, err := httpclient.SafeFetchBytes(ctx, a.client.SafeClient(0), rawURL, a.maxBytes, "image")
	if err != nil {
		r.Profile.SetDefault("avatar_fetch_error", shortErr(err))
		observability.AvatarFetchesTotal.WithLabelValues("error").Inc()
		return
	}
	if !avatarContentTypes[strings.ToLower(ctype)] {
		r.Profile.SetDefault("avatar_fetch_error", "unsupported_format")
		observability.AvatarFetchesTotal.WithLabelValues("unsupported").Inc()
		return
	}

	sum := sha256.Sum256(body)
	r.Profile.SetDefault("avatar_sha256", hex.EncodeToString(sum[:]))
	r.Profile.SetDefault("avatar_bytes", len(body))
	r.Profile.SetDefault("avatar_content_type", ctype)

	if h, err := DHash(body); err == nil {
		r.Profile.SetDefault("avatar_dhash", fmt.Sprintf("%016x", h))
	} else {
		r.Profile.SetDefault("avatar_fetch_error", "undecodable_image")
	}

	a.mu.Lock()
	a.bytes[r.Provider] = body
	a.mu.Unlock()
	observability.AvatarFetchesTotal.WithLabelValues("ok").Inc()
}

func shortErr(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}
