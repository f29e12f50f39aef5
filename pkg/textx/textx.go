// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxUsernameLen caps usernames accepted by the scan engine.
const MaxUsernameLen = 64

// SanitizeUsername trims surrounding whitespace and strips control
// characters. It returns the cleaned handle and whether it is acceptable
// (non-empty, valid UTF-8, at most MaxUsernameLen runes).
func SanitizeUsername(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || !utf8.ValidString(out) || utf8.RuneCountInString(out) > MaxUsernameLen {
		return out, false
	}
	return out, true
}

var (
	kmRE  = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([KM])$`)
	intRE = regexp.MustCompile(`^[0-9][0-9,]*$`)
	numRE = regexp.MustCompile(`([0-9][0-9,]*)`)
)

// ParseHumanInt parses humanized counts like "1,234", "12.3K", "4M".
// Returns -1 when no count can be extracted.
func ParseHumanInt(s string) int64 {
	t := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "")
	if t == "" {
		return -1
	}
	if m := kmRE.FindStringSubmatch(t); m != nil {
		base, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return -1
		}
		mult := int64(1000)
		if m[2] == "M" {
			mult = 1000000
		}
		return int64(base * float64(mult))
	}
	if intRE.MatchString(t) {
		n, err := strconv.ParseInt(strings.ReplaceAll(t, ",", ""), 10, 64)
		if err != nil {
			return -1
		}
		return n
	}
	if m := numRE.FindStringSubmatch(t); m != nil {
		n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if err != nil {
			return -1
		}
		return n
	}
	return -1
}
