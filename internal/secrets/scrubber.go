package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(content string) Result
	Enabled() bool
}

// Result is the outcome of scrubbing one piece of text.
type Result struct {
	Scrubbed string
	Findings []Finding
}

// Finding describes a redacted secret. The matched value is never kept.
type Finding struct {
	RuleID   string
	Severity string
	Line     int
	Start    int
	End      int
}

// HasFindings reports whether anything was redacted.
func (r Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule ids that matched, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	var ids []string
	for _, f := range r.Findings {
		if _, ok := seen[f.RuleID]; !ok {
			seen[f.RuleID] = struct{}{}
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

type scrubber struct {
	enabled   bool
	redaction string
	rules     []*compiledRule
	allow     []*regexp.Regexp
}

// New compiles cfg into a Scrubber. A nil cfg uses DefaultConfig. A
// disabled config yields a scrubber that returns content unchanged.
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return Noop{}, nil
	}

	switch cfg.Engine {
	case EngineRules, "":
	case EngineGitleaks:
		return newGitleaksScrubber(cfg)
	default:
		return nil, fmt.Errorf("unknown secrets engine %q", cfg.Engine)
	}

	rules, allow, err := cfg.compile()
	if err != nil {
		return nil, err
	}
	s := &scrubber{enabled: true, redaction: cfg.Redaction, rules: rules, allow: allow}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	return s, nil
}

type span struct{ start, end int }

// Scrub replaces every non-allowed match with the redaction string.
// Overlapping matches are merged into one redaction.
func (s *scrubber) Scrub(content string) Result {
	res := Result{Scrubbed: content}
	if content == "" {
		return res
	}

	var spans []span
	for _, rule := range s.rules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if m[0] == m[1] || s.allowed(content[m[0]:m[1]]) {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Line:     strings.Count(content[:m[0]], "\n") + 1,
				Start:    m[0],
				End:      m[1],
			})
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return res
	}

	res.Scrubbed = redact(content, spans, s.redaction)
	return res
}

// redact replaces the merged spans of content with redaction.
func redact(content string, spans []span, redaction string) string {
	var b strings.Builder
	last := 0
	for _, sp := range mergeSpans(spans) {
		b.WriteString(content[last:sp.start])
		b.WriteString(redaction)
		last = sp.end
	}
	b.WriteString(content[last:])
	return b.String()
}

func (s *scrubber) Enabled() bool { return s.enabled }

func (s *scrubber) allowed(match string) bool {
	return allowed(s.allow, match)
}

func allowed(allow []*regexp.Regexp, match string) bool {
	for _, a := range allow {
		if a.MatchString(match) {
			return true
		}
	}
	return false
}

// mergeSpans sorts spans and merges overlapping or adjacent ones.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			last.end = max(last.end, cur.end)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Noop returns content unchanged.
type Noop struct{}

func (Noop) Scrub(content string) Result { return Result{Scrubbed: content} }

func (Noop) Enabled() bool { return false }

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = Noop{}
)
