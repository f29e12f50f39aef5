package provider

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/pkg/textx"
)

// Extraction is the outcome of mining one HTML document for profile data.
type Extraction struct {
	Profile domain.Profile
	// HasMetaTitle reports a non-empty OpenGraph or Twitter-Card title,
	// used by the classifier's presence heuristic. The plain <title>
	// fallback does not count.
	HasMetaTitle bool
}

// ExtractHTML mines JSON-LD Person fragments, OpenGraph and Twitter-Card
// metadata plus conservative count sniffing out of an HTML body. Sources
// are unioned in that order; later sources never overwrite earlier
// non-empty values. Malformed markup never raises.
func ExtractHTML(body []byte) Extraction {
	out := Extraction{Profile: domain.Profile{}}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return out
	}

	extractJSONLD(doc, out.Profile)

	meta := func(key string) string {
		var v string
		doc.Find(`meta[property="` + key + `"], meta[name="` + key + `"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if c, ok := s.Attr("content"); ok && strings.TrimSpace(c) != "" {
				v = strings.TrimSpace(c)
				return false
			}
			return true
		})
		return v
	}

	ogTitle := meta("og:title")
	twTitle := meta("twitter:title")
	out.HasMetaTitle = ogTitle != "" || twTitle != ""

	out.Profile.SetDefault("display_name", firstNonEmpty(ogTitle, twTitle))
	out.Profile.SetDefault("bio", firstNonEmpty(meta("og:description"), meta("twitter:description")))
	out.Profile.SetDefault("avatar_url", firstNonEmpty(meta("og:image"), meta("twitter:image")))
	out.Profile.SetDefault("canonical_url", meta("og:url"))

	// <title> fallback for the display name only; it never flips the
	// classifier's presence heuristic.
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		out.Profile.SetDefault("display_name", t)
	}

	extractCounts(strings.ToLower(string(body)), out.Profile)
	return out
}

// jsonLDImage coerces the JSON-LD image field (string, ImageObject, list).
func jsonLDImage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if u, ok := t["url"].(string); ok {
			return u
		}
		if u, ok := t["contentUrl"].(string); ok {
			return u
		}
	case []any:
		if len(t) > 0 {
			return jsonLDImage(t[0])
		}
	}
	return ""
}

func extractJSONLD(doc *goquery.Document, p domain.Profile) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if txt == "" {
			return true
		}
		var data any
		if err := json.Unmarshal([]byte(txt), &data); err != nil {
			return true
		}
		candidates, ok := data.([]any)
		if !ok {
			candidates = []any{data}
		}
		for _, c := range candidates {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			// Person fragments carry the profile; other types are noise.
			if t, ok := m["@type"].(string); ok && !strings.EqualFold(t, "person") && !strings.EqualFold(t, "profilepage") {
				continue
			}
			filled := false
			if name, ok := m["name"].(string); ok && strings.TrimSpace(name) != "" {
				p.SetDefault("display_name", strings.TrimSpace(name))
				filled = true
			}
			if img := jsonLDImage(m["image"]); img != "" {
				p.SetDefault("avatar_url", img)
				filled = true
			}
			if u, ok := m["url"].(string); ok && strings.TrimSpace(u) != "" {
				p.SetDefault("canonical_url", strings.TrimSpace(u))
				filled = true
			}
			if d, ok := m["description"].(string); ok && strings.TrimSpace(d) != "" {
				p.SetDefault("bio", strings.TrimSpace(d))
				filled = true
			}
			if filled {
				return false
			}
		}
		return true
	})
}

// Conservative count sniffing; many pages mention these words unrelated
// to counts, so only the "<number> <word>" form is accepted.
var countPatterns = []struct {
	re  *regexp.Regexp
	key string
}{
	{regexp.MustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+followers\b`), "followers"},
	{regexp.MustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+following\b`), "following"},
	{regexp.MustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+subscribers\b`), "subscribers"},
	{regexp.MustCompile(`([0-9][0-9,\.]*\s*[km]?)\s+members\b`), "members"},
}

func extractCounts(bodyLower string, p domain.Profile) {
	if len(bodyLower) > classifyBodyCap {
		bodyLower = bodyLower[:classifyBodyCap]
	}
	for _, cp := range countPatterns {
		if m := cp.re.FindStringSubmatch(bodyLower); m != nil {
			if n := textx.ParseHumanInt(m[1]); n >= 0 {
				p.SetDefault(cp.key, n)
			}
		}
	}
}

// MergeJSONProfile unions fields from a provider-declared JSON endpoint
// into the profile without overwriting earlier values.
func MergeJSONProfile(body []byte, p domain.Profile) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return
	}
	fields := []struct{ src, dst string }{
		{"name", "display_name"},
		{"display_name", "display_name"},
		{"avatar_url", "avatar_url"},
		{"bio", "bio"},
		{"description", "bio"},
		{"followers", "followers"},
		{"following", "following"},
		{"subscribers", "subscribers"},
		{"created_at", "created_at"},
	}
	for _, f := range fields {
		if v, ok := m[f.src]; ok {
			p.SetDefault(f.dst, v)
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
