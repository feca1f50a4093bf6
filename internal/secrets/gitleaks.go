package secrets

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// gitleaksScrubber redacts what the gitleaks default rule set finds.
type gitleaksScrubber struct {
	// detector is shared; DetectString calls are serialized.
	mu        sync.Mutex
	detector  *detect.Detector
	redaction string
	allow     []*regexp.Regexp
}

func newGitleaksScrubber(cfg *Config) (*gitleaksScrubber, error) {
	allow, err := cfg.compileAllowList()
	if err != nil {
		return nil, err
	}
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	redaction := cfg.Redaction
	if redaction == "" {
		redaction = DefaultRedaction
	}
	return &gitleaksScrubber{detector: detector, redaction: redaction, allow: allow}, nil
}

// Scrub redacts every occurrence of each detected secret. Gitleaks columns
// are line-relative, so positions are recovered by searching for the
// secret text instead.
func (s *gitleaksScrubber) Scrub(content string) Result {
	res := Result{Scrubbed: content}
	if content == "" {
		return res
	}

	s.mu.Lock()
	found := s.detector.DetectString(content)
	s.mu.Unlock()

	var spans []span
	seen := make(map[string]struct{}, len(found))
	for _, f := range found {
		secret := f.Secret
		if _, dup := seen[secret]; dup || secret == "" || allowed(s.allow, secret) {
			continue
		}
		seen[secret] = struct{}{}
		for from := 0; ; {
			i := strings.Index(content[from:], secret)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(secret)
			res.Findings = append(res.Findings, Finding{
				RuleID: f.RuleID,
				Line:   strings.Count(content[:start], "\n") + 1,
				Start:  start,
				End:    end,
			})
			spans = append(spans, span{start, end})
			from = end
		}
	}
	if len(spans) == 0 {
		return res
	}
	res.Scrubbed = redact(content, spans, s.redaction)
	return res
}

func (s *gitleaksScrubber) Enabled() bool { return true }
