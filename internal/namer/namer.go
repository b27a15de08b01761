// Package namer implements the Deobfuscator/Namer (spec.md §4.11):
// detecting whether a candidate filename looks machine-generated, and
// picking the least-obfuscated name available for a completed job.
package namer

import (
	"html"
	"math"
	"regexp"
	"strings"

	"gonzbd/internal/config"
)

var (
	uuidPattern   = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRunPattern = regexp.MustCompile(`(?i)[0-9a-f]{16,}`)
	consonantRun  = regexp.MustCompile(`(?i)[bcdfghjklmnpqrstvwxyz]{8,}`)
	badPathChars  = regexp.MustCompile(`[\\/:*?"<>|]`)
)

// IsObfuscated applies spec.md §4.11's heuristics to name (without any
// extension). A name shorter than cfg.MinLength is never flagged.
func IsObfuscated(name string, cfg config.DeobfuscationConfig) bool {
	if !cfg.Enabled {
		return false
	}
	if len(name) < cfg.MinLength {
		return false
	}

	if shannonEntropy(name) > cfg.EntropyThreshold {
		return true
	}
	if uuidPattern.MatchString(name) {
		return true
	}
	if hexRunPattern.MatchString(name) {
		return true
	}
	if consonantRun.MatchString(name) {
		return true
	}
	return false
}

// shannonEntropy computes the Shannon entropy, in bits per character,
// of s.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	total := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// ChooseName applies spec.md §4.11's final-name precedence: job name if
// not obfuscated, else NZB meta title if not obfuscated, else the
// largest extracted file's name if not obfuscated, else the job name as
// an unconditional fallback.
func ChooseName(jobName, nzbMetaName, largestFileName string, cfg config.DeobfuscationConfig) string {
	for _, candidate := range []string{jobName, nzbMetaName, largestFileName} {
		if candidate == "" {
			continue
		}
		if !IsObfuscated(stripExt(candidate), cfg) {
			return candidate
		}
	}
	return jobName
}

// SanitizeSubject derives a clean display name from a raw NZB file
// subject line, adapted from the teacher's
// internal/processor/fs.go:sanitizeFileName.
func SanitizeSubject(subject string) string {
	res := html.UnescapeString(subject)

	firstQuote := strings.Index(res, `"`)
	lastQuote := strings.LastIndex(res, `"`)
	if firstQuote != -1 && lastQuote != -1 && firstQuote < lastQuote {
		res = res[firstQuote+1 : lastQuote]
	} else {
		res = yencSuffixPattern.ReplaceAllString(res, "")
		res = leadingCounterPattern.ReplaceAllString(res, "")
	}

	res = badPathChars.ReplaceAllString(res, "_")
	return strings.TrimSpace(res)
}

var (
	yencSuffixPattern     = regexp.MustCompile(`(?i)\s+yenc.*$`)
	leadingCounterPattern = regexp.MustCompile(`^\[\d+/\d+\]\s+`)
)

func stripExt(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
