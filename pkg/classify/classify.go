// Package classify maps object keys to source types. Keys in the bucket come
// from several ingestion eras with different naming conventions, so
// classification is an ordered rule cascade rather than a single pattern:
// the first matching rule wins, most specific rules first.
package classify

import (
	"path"
	"regexp"
	"strings"
)

const Unknown = "unknown"

// Result carries the assigned source type and the name of the rule that
// produced it, for diagnostics.
type Result struct {
	SourceType  string
	MatchedRule string
}

type rule struct {
	name       string
	sourceType string
	match      func(key string) bool
}

var (
	legacyBatchRe = regexp.MustCompile(`^batch-\d+/`)
	tickerRe      = regexp.MustCompile(`^[a-z0-9]{1,6}$`)
)

// filingSegments are path segments that identify a key under a ticker
// directory as an SEC-style filing.
var filingSegments = map[string]bool{
	"8k":     true,
	"10k":    true,
	"10q":    true,
	"424b5":  true,
	"s1":     true,
	"s3":     true,
	"proxy":  true,
	"xbrl":   true,
	"6k":     true,
	"20f":    true,
	"atm":    true,
	"def14a": true,
}

// rootExtensions classify files that live at the bucket root with no
// directory structure at all.
var rootExtensions = map[string]bool{
	".pdf":  true,
	".html": true,
	".htm":  true,
	".txt":  true,
	".json": true,
	".xml":  true,
	".csv":  true,
}

// rules is evaluated in order. Do not reorder without checking precedence:
// sec/xbrl/ must stay ahead of both the sec/ prefix and the /xbrl/
// substring rule.
var rules = []rule{
	{"prefix-sec-xbrl", "sec_xbrl", hasPrefix("sec/xbrl/")},
	{"prefix-sec", "sec", hasPrefix("sec/")},
	{"prefix-sedar", "sedar", hasPrefix("sedar/")},
	{"prefix-dashboard", "dashboard", hasPrefix("dashboard/")},
	{"prefix-manual", "manual", hasPrefix("manual/")},
	{"legacy-batch", "legacy_batch", legacyBatchRe.MatchString},
	{"substr-xbrl", "sec_xbrl", contains("/xbrl/")},
	{"substr-companyfacts", "sec_companyfacts", contains("companyfacts")},
	{"substr-10k", "sec_filing", contains("/10k/")},
	{"substr-10q", "sec_filing", contains("/10q/")},
	{"substr-8k", "sec_filing", contains("/8k/")},
	{"substr-424b5", "sec_filing", contains("/424b5/")},
	{"substr-proxy", "sec_filing", contains("/proxy/")},
	{"ticker-filing", "sec_filing", tickerFiling},
	{"root-file", "root_file", rootFile},
}

// Classify assigns a source type to an object key. The second return value
// names the matching rule, or is empty when the key is unclassified.
func Classify(key string) Result {
	k := strings.ToLower(key)
	for _, r := range rules {
		if r.match(k) {
			return Result{SourceType: r.sourceType, MatchedRule: r.name}
		}
	}
	return Result{SourceType: Unknown}
}

func hasPrefix(p string) func(string) bool {
	return func(k string) bool { return strings.HasPrefix(k, p) }
}

func contains(s string) func(string) bool {
	return func(k string) bool { return strings.Contains(k, s) }
}

// tickerFiling matches keys like "mstr/8k/2024-12-01.html": a short
// alphanumeric first segment (a plausible ticker) followed somewhere by a
// known filing-type segment.
func tickerFiling(k string) bool {
	segs := strings.Split(k, "/")
	if len(segs) < 2 {
		return false
	}
	if !tickerRe.MatchString(segs[0]) {
		return false
	}
	for _, s := range segs[1 : len(segs)-1] {
		if filingSegments[s] {
			return true
		}
	}
	return false
}

func rootFile(k string) bool {
	if strings.Contains(k, "/") {
		return false
	}
	return rootExtensions[path.Ext(k)]
}

// FirstSegment returns the part of the key before the first slash, or the
// whole key for root-level objects. Used to aggregate unknowns.
func FirstSegment(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

// Stats aggregates classification outcomes across a run so operators can
// see which keys fell through the cascade without re-scanning the bucket.
type Stats struct {
	SourceTypeCounts      map[string]int
	UnknownFirstSegCounts map[string]int
	UnknownSamples        []string

	sampleCap int
}

const defaultSampleCap = 25

func NewStats() *Stats {
	return &Stats{
		SourceTypeCounts:      make(map[string]int),
		UnknownFirstSegCounts: make(map[string]int),
		sampleCap:             defaultSampleCap,
	}
}

// Record tallies one classification outcome. Unknown keys additionally feed
// the per-first-segment counters and the capped raw-key sample.
func (s *Stats) Record(key string, res Result) {
	s.SourceTypeCounts[res.SourceType]++
	if res.SourceType != Unknown {
		return
	}
	s.UnknownFirstSegCounts[FirstSegment(key)]++
	if len(s.UnknownSamples) < s.sampleCap {
		s.UnknownSamples = append(s.UnknownSamples, key)
	}
}
