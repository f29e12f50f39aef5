package addon

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// bioFragmentCap bounds how much of a bio fragment is scanned; bios past
// this size are almost always scraped page noise, not user text.
const bioFragmentCap = 256

var (
	bioURLRe    = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)
	bioDomainRe = regexp.MustCompile(`\b([a-z0-9][a-z0-9-]{0,62}\.)+[a-z]{2,24}\b`)
	bioHandleRe = regexp.MustCompile(`@([A-Za-z0-9_.]{2,64})`)
)

// BioLinks mines bios and display names for cross-referencing leads:
// explicit URLs, bare domains reduced to their registrable form, and
// @-handles.
type BioLinks struct{}

// NewBioLinks builds the bio_links addon.
func NewBioLinks() *BioLinks { return &BioLinks{} }

// Name implements domain.Addon.
func (b *BioLinks) Name() string { return "bio_links" }

// Run implements domain.Addon.
func (b *BioLinks) Run(_ context.Context, _ string, results []domain.Result) {
	for i := range results {
		r := &results[i]
		if r.Status != domain.StatusFound || r.Profile == nil {
			continue
		}
		var fragments []string
		for _, key := range []string{"bio", "display_name", "blog"} {
			if s, ok := r.Profile[key].(string); ok && s != "" {
				if len(s) > bioFragmentCap {
					s = s[:bioFragmentCap]
				}
				fragments = append(fragments, s)
			}
		}
		if len(fragments) == 0 {
			continue
		}
		text := strings.Join(fragments, "\n")

		urls := dedupe(bioURLRe.FindAllString(text, -1))
		domains := extractDomains(text, urls)
		handles := extractHandles(text)

		if len(urls) > 0 {
			r.Profile.SetDefault("bio_urls", urls)
		}
		if len(domains) > 0 {
			r.Profile.SetDefault("bio_domains", domains)
		}
		if len(handles) > 0 {
			r.Profile.SetDefault("bio_handles", handles)
		}
	}
}

// extractDomains reduces bare domains and URL hosts to eTLD+1 form.
func extractDomains(text string, urls []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(host string) {
		host = strings.ToLower(strings.TrimPrefix(host, "www."))
		etld, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			return
		}
		if _, dup := seen[etld]; dup {
			return
		}
		seen[etld] = struct{}{}
		out = append(out, etld)
	}
	for _, u := range urls {
		if h := hostOf(u); h != "" {
			add(h)
		}
	}
	for _, d := range bioDomainRe.FindAllString(strings.ToLower(text), -1) {
		add(d)
	}
	sort.Strings(out)
	return out
}

func extractHandles(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range bioHandleRe.FindAllStringSubmatch(text, -1) {
		h := strings.ToLower(m[1])
		// Skip email local parts captured as handles.
		if idx := strings.Index(text, "@"+m[1]); idx > 0 {
			prev := text[idx-1]
			if prev >= 'a' && prev <= 'z' || prev >= 'A' && prev <= 'Z' || prev >= '0' && prev <= '9' {
				continue
			}
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func hostOf(rawURL string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(rest, sep); i >= 0 {
			rest = rest[:i]
		}
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		s = strings.TrimRight(s, ".,;")
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
