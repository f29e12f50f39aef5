package provider

import (
	"strings"

	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// classifyBodyCap bounds pattern scans over the decoded body.
const classifyBodyCap = 512 << 10

// blockHints are interstitial fingerprints shared by every provider;
// providers extend the list through their own blocked_patterns.
var blockHints = []string{
	"captcha",
	"verify you are human",
	"unusual traffic",
	"access denied",
	"temporarily blocked",
	"cloudflare",
	"security check",
	"please enable cookies",
	"just a moment",
}

// Classify applies the pattern rules and HTTP-status heuristics to one
// response. Decision order: transport error, blocked, not_found, found,
// unknown. Deterministic for a fixed (spec, status, body) input.
func Classify(spec *registry.Spec, username string, httpStatus int, body string, hasMetaTitle bool, transportErr error) domain.ResultStatus {
	if transportErr != nil {
		return domain.StatusError
	}

	lower := strings.ToLower(body)
	if len(lower) > classifyBodyCap {
		lower = lower[:classifyBodyCap]
	}
	userLower := strings.ToLower(username)

	switch httpStatus {
	case 401, 402, 403, 429:
		return domain.StatusBlocked
	}
	for _, h := range blockHints {
		if strings.Contains(lower, h) {
			return domain.StatusBlocked
		}
	}
	for _, m := range spec.BlockedPatterns {
		if m.Match(lower, userLower) {
			return domain.StatusBlocked
		}
	}

	if httpStatus == 404 || httpStatus == 410 {
		return domain.StatusNotFound
	}
	for _, m := range spec.ErrorPatterns {
		if m.Match(lower, userLower) {
			return domain.StatusNotFound
		}
	}

	if httpStatus >= 200 && httpStatus < 300 {
		for _, m := range spec.SuccessPatterns {
			if m.Match(lower, userLower) {
				return domain.StatusFound
			}
		}
		if hasMetaTitle {
			return domain.StatusFound
		}
	}

	return domain.StatusUnknown
}
