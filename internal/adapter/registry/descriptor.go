// Package registry loads provider descriptors from YAML documents and
// merges them with code-registered drivers into an atomically replaceable
// snapshot.
package registry

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// Descriptor is the raw YAML shape of one data-driven provider.
type Descriptor struct {
	URL             string            `yaml:"url"`
	Timeout         float64           `yaml:"timeout"`
	UAProfile       string            `yaml:"ua_profile"`
	Headers         map[string]string `yaml:"headers"`
	SuccessPatterns []string          `yaml:"success_patterns"`
	ErrorPatterns   []string          `yaml:"error_patterns"`
	BlockedPatterns []string          `yaml:"blocked_patterns"`
	Regex           bool              `yaml:"regex"`
	JSONEndpoint    string            `yaml:"json_endpoint"`
	Method          string            `yaml:"method"`
	Note            string            `yaml:"note"`
}

// Matcher is one compiled pattern: case-insensitive substring by default,
// regex when the provider opts in. A {username} placeholder is substituted
// at match time.
type Matcher struct {
	raw     string
	isRegex bool
	re      *regexp.Regexp // nil when the pattern needs runtime substitution
	runtime bool
}

func compileMatcher(raw string, isRegex bool) (Matcher, error) {
	m := Matcher{raw: raw, isRegex: isRegex, runtime: strings.Contains(raw, "{username}")}
	if isRegex {
		// Validate at load time; runtime patterns recompile per scan with
		// the username quoted in.
		probe := raw
		if m.runtime {
			probe = strings.ReplaceAll(raw, "{username}", "x")
		}
		re, err := regexp.Compile("(?i)" + probe)
		if err != nil {
			return Matcher{}, err
		}
		if !m.runtime {
			m.re = re
		}
	}
	return m, nil
}

// Match tests the lowercased body. username is substituted into runtime
// patterns before matching.
func (m Matcher) Match(bodyLower, username string) bool {
	if !m.isRegex {
		pat := m.raw
		if m.runtime {
			pat = strings.ReplaceAll(pat, "{username}", username)
		}
		return strings.Contains(bodyLower, strings.ToLower(pat))
	}
	if m.re != nil {
		return m.re.MatchString(bodyLower)
	}
	re, err := regexp.Compile("(?i)" + strings.ReplaceAll(m.raw, "{username}", regexp.QuoteMeta(username)))
	if err != nil {
		return false
	}
	return re.MatchString(bodyLower)
}

// Spec is a validated, compiled provider descriptor ready for the generic
// driver.
type Spec struct {
	Name            string
	URLTemplate     string
	Method          string
	Timeout         time.Duration
	UAProfile       string
	Headers         map[string]string
	SuccessPatterns []Matcher
	ErrorPatterns   []Matcher
	BlockedPatterns []Matcher
	JSONEndpoint    string
}

// Compile validates a descriptor and compiles its patterns. Invalid
// patterns are a config error: the provider is rejected at load time,
// never at scan time.
func (d Descriptor) Compile(name string) (*Spec, error) {
	if !strings.Contains(d.URL, "{username}") {
		return nil, fmt.Errorf("%w: provider %q: url missing {username}", domain.ErrInvalidArgument, name)
	}
	s := &Spec{
		Name:         name,
		URLTemplate:  d.URL,
		Method:       strings.ToUpper(d.Method),
		UAProfile:    d.UAProfile,
		Headers:      d.Headers,
		JSONEndpoint: d.JSONEndpoint,
	}
	if s.Method == "" {
		s.Method = "GET"
	}
	if d.Timeout > 0 {
		s.Timeout = time.Duration(d.Timeout * float64(time.Second))
	}
	var err error
	if s.SuccessPatterns, err = compileAll(d.SuccessPatterns, d.Regex); err != nil {
		return nil, fmt.Errorf("%w: provider %q: success pattern: %v", domain.ErrInvalidArgument, name, err)
	}
	if s.ErrorPatterns, err = compileAll(d.ErrorPatterns, d.Regex); err != nil {
		return nil, fmt.Errorf("%w: provider %q: error pattern: %v", domain.ErrInvalidArgument, name, err)
	}
	if s.BlockedPatterns, err = compileAll(d.BlockedPatterns, d.Regex); err != nil {
		return nil, fmt.Errorf("%w: provider %q: blocked pattern: %v", domain.ErrInvalidArgument, name, err)
	}
	return s, nil
}

func compileAll(raw []string, isRegex bool) ([]Matcher, error) {
	out := make([]Matcher, 0, len(raw))
	for _, r := range raw {
		m, err := compileMatcher(r, isRegex)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ExpandURL substitutes the username into the URL template.
func (s *Spec) ExpandURL(username string) string {
	return strings.ReplaceAll(s.URLTemplate, "{username}", username)
}
