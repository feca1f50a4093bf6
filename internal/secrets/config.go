package secrets

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/repoindex/internal/config"
)

// DefaultRedaction replaces every detected secret.
const DefaultRedaction = "[REDACTED]"

// Detection engines.
const (
	EngineRules    = "rules"
	EngineGitleaks = "gitleaks"
)

// Config configures the scrubber.
type Config struct {
	Enabled bool
	// Engine is EngineRules (default) or EngineGitleaks. Rules are ignored
	// by the gitleaks engine, which uses its own default rule set.
	Engine    string
	Rules     []Rule
	Redaction string
	// AllowList holds patterns for matches that must not be redacted.
	AllowList []string
}

// Rule defines a secret detection rule.
type Rule struct {
	ID          string
	Description string
	Pattern     string
	// Keywords gate the rule: it only runs when one of them occurs
	// (case-insensitively) in the content.
	Keywords []string
	Severity string
}

// DefaultConfig returns an enabled configuration with DefaultRules.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Engine:    EngineRules,
		Rules:     DefaultRules(),
		Redaction: DefaultRedaction,
	}
}

// FromSettings builds a Config from the secrets section of the config file.
func FromSettings(s config.SecretsConfig) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = s.Enabled
	if s.Engine != "" {
		cfg.Engine = s.Engine
	}
	cfg.AllowList = append([]string(nil), s.AllowList...)
	return cfg
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []*regexp.Regexp
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

// compile validates the configuration and compiles every pattern.
func (c *Config) compile() ([]*compiledRule, []*regexp.Regexp, error) {
	rules := make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return nil, nil, fmt.Errorf("rule %d: ID is required", i)
		}
		if rule.Pattern == "" {
			return nil, nil, fmt.Errorf("rule %s: pattern is required", rule.ID)
		}
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}

		cr := &compiledRule{Rule: rule, pattern: pattern}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
		}
		rules = append(rules, cr)
	}

	allow, err := c.compileAllowList()
	if err != nil {
		return nil, nil, err
	}
	return rules, allow, nil
}

func (c *Config) compileAllowList() ([]*regexp.Regexp, error) {
	allow := make([]*regexp.Regexp, 0, len(c.AllowList))
	for i, p := range c.AllowList {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		allow = append(allow, re)
	}
	return allow, nil
}
