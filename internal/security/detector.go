package security

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInputTooLong is returned before any pattern scanning when the input
// exceeds the configured maximum length.
var ErrInputTooLong = errors.New("input exceeds maximum length")

// Verdict is the result of scanning one input. MatchedRules preserves the
// pattern-set order, so identical inputs always produce identical verdicts.
type Verdict struct {
	IsSafe       bool     `json:"is_safe"`
	MatchedRules []string `json:"matched_rules,omitempty"`
	RiskScore    int      `json:"risk_score"`
}

// Detector classifies raw text for injection attempts. It holds no mutable
// state; Scan is safe for concurrent use.
type Detector struct {
	patterns      *PatternSet
	maxInputLen   int
	blockSeverity int
	riskThreshold int
	snippetLen    int
}

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithPatternSet sets a custom pattern set.
func WithPatternSet(ps *PatternSet) Option {
	return func(d *Detector) { d.patterns = ps }
}

// WithMaxInputLength sets the maximum input length accepted for scanning.
func WithMaxInputLength(n int) Option {
	return func(d *Detector) { d.maxInputLen = n }
}

// WithBlockSeverity sets the severity tier at which a single match blocks
// the input outright.
func WithBlockSeverity(n int) Option {
	return func(d *Detector) { d.blockSeverity = n }
}

// WithRiskThreshold sets the accumulated score above which the input is
// blocked even without a hard-block match.
func WithRiskThreshold(n int) Option {
	return func(d *Detector) { d.riskThreshold = n }
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		patterns:      NewPatternSet(),
		maxInputLen:   1000,
		blockSeverity: 8,
		riskThreshold: 12,
		snippetLen:    100,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Scan evaluates every rule against the input and returns the combined
// verdict. Empty input is always safe. Inputs over the length limit are
// rejected with ErrInputTooLong before any rule runs.
func (d *Detector) Scan(text string) (Verdict, error) {
	if len(text) > d.maxInputLen {
		return Verdict{}, ErrInputTooLong
	}
	if strings.TrimSpace(text) == "" {
		return Verdict{IsSafe: true}, nil
	}

	var (
		matched   []string
		score     int
		hardBlock bool
	)
	for _, p := range d.patterns.Patterns() {
		if p.Regex.MatchString(text) {
			matched = append(matched, p.Name)
			score += p.Severity
			if p.Severity >= d.blockSeverity {
				hardBlock = true
			}
		}
	}

	return Verdict{
		IsSafe:       !hardBlock && score <= d.riskThreshold,
		MatchedRules: matched,
		RiskScore:    score,
	}, nil
}

// Snippet returns a sanitized, truncated view of the input for logging.
func (d *Detector) Snippet(input string) string {
	if len(input) > d.snippetLen {
		input = input[:d.snippetLen] + "..."
	}
	return sanitizeForLog(input)
}

// Precompiled masking regexes
var (
	passwordMaskRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	apiKeyMaskRegex   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
	tokenMaskRegex    = regexp.MustCompile(`(?i)(token|bearer)\s*[=:]\s*['"]?[^'"\s]+['"]?`)
)

// sanitizeForLog masks credential-shaped substrings before logging.
func sanitizeForLog(input string) string {
	input = strings.ReplaceAll(input, "\n", " ")
	input = passwordMaskRegex.ReplaceAllString(input, "[REDACTED_PASSWORD]")
	input = apiKeyMaskRegex.ReplaceAllString(input, "[REDACTED_KEY]")
	input = tokenMaskRegex.ReplaceAllString(input, "[REDACTED_TOKEN]")
	return input
}
