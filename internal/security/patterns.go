package security

import "regexp"

// Category classifies the kind of injection a pattern detects.
type Category string

const (
	CategorySQLInjection     Category = "sql_injection"
	CategoryScriptInjection  Category = "script_injection"
	CategoryPathTraversal    Category = "path_traversal"
	CategoryCommandInjection Category = "command_injection"
)

// Pattern is one detection rule.
type Pattern struct {
	// Name is a stable, human-readable identifier for the rule.
	Name string

	// Category classifies what the rule detects.
	Category Category

	// Regex is the compiled expression.
	Regex *regexp.Regexp

	// Severity indicates the risk level (1-10). Rules at or above the
	// configured block tier terminate the request on their own; lower
	// severities only contribute to the accumulated risk score.
	Severity int
}

// PatternSet holds an ordered collection of detection rules.
type PatternSet struct {
	patterns []*Pattern
}

// NewPatternSet returns the built-in rules.
func NewPatternSet() *PatternSet {
	return &PatternSet{patterns: defaultPatterns()}
}

// Patterns returns all rules in the set.
func (ps *PatternSet) Patterns() []*Pattern {
	return ps.patterns
}

// defaultPatterns returns the built-in rules. Ordering is fixed so that
// matched rule names come back in a deterministic sequence.
func defaultPatterns() []*Pattern {
	return []*Pattern{
		// SQL injection
		{
			Name:     "union_select",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
			Severity: 9,
		},
		{
			Name:     "stacked_statement",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i);\s*(DROP|DELETE|INSERT|UPDATE|CREATE|ALTER|TRUNCATE|EXEC|EXECUTE)\b`),
			Severity: 10,
		},
		{
			Name:     "comment_marker",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(--|#|/\*|\*/)`),
			Severity: 5,
		},
		{
			Name:     "or_true_numeric",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i)\b(OR|AND)\s+['"]?\d+['"]?\s*=\s*['"]?\d+['"]?`),
			Severity: 8,
		},
		{
			Name:     "or_true_string",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i)\b(OR|AND)\s+['"][^'"]*['"]\s*=\s*['"][^'"]*['"]`),
			Severity: 8,
		},
		{
			Name:     "quoted_terminator",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`'\s*;`),
			Severity: 8,
		},
		{
			Name:     "time_based_probe",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i)\b(SLEEP|PG_SLEEP|BENCHMARK)\s*\(|\bWAITFOR\s+DELAY\b`),
			Severity: 9,
		},
		{
			Name:     "sql_verb_probe",
			Category: CategorySQLInjection,
			Regex:    regexp.MustCompile(`(?i)\b(DROP\s+TABLE|DROP\s+DATABASE|DELETE\s+FROM|INSERT\s+INTO|GRANT\s+|REVOKE\s+)\b`),
			Severity: 6,
		},

		// Script/markup injection
		{
			Name:     "script_tag",
			Category: CategoryScriptInjection,
			Regex:    regexp.MustCompile(`(?is)<\s*script[^>]*>`),
			Severity: 9,
		},
		{
			Name:     "javascript_uri",
			Category: CategoryScriptInjection,
			Regex:    regexp.MustCompile(`(?i)\b(javascript|vbscript)\s*:`),
			Severity: 8,
		},
		{
			Name:     "event_handler_attr",
			Category: CategoryScriptInjection,
			Regex:    regexp.MustCompile(`(?i)\bon\w+\s*=\s*['"]`),
			Severity: 7,
		},
		{
			Name:     "embed_tag",
			Category: CategoryScriptInjection,
			Regex:    regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`),
			Severity: 7,
		},

		// Path traversal
		{
			Name:     "dot_dot_slash",
			Category: CategoryPathTraversal,
			Regex:    regexp.MustCompile(`\.\./|\.\.\\`),
			Severity: 6,
		},
		{
			Name:     "null_byte",
			Category: CategoryPathTraversal,
			Regex:    regexp.MustCompile(`\x00|%00`),
			Severity: 8,
		},
		{
			Name:     "sensitive_path",
			Category: CategoryPathTraversal,
			Regex:    regexp.MustCompile(`(?i)/etc/(passwd|shadow)|c:\\windows\\`),
			Severity: 7,
		},

		// Command injection
		{
			Name:     "shell_chain",
			Category: CategoryCommandInjection,
			Regex:    regexp.MustCompile("(\\|\\||&&|`)"),
			Severity: 6,
		},
		{
			Name:     "shell_command",
			Category: CategoryCommandInjection,
			Regex:    regexp.MustCompile(`(?i)[;|&]\s*(rm|cat|wget|curl|nc|bash|sh|powershell)\b`),
			Severity: 9,
		},
		{
			Name:     "command_substitution",
			Category: CategoryCommandInjection,
			Regex:    regexp.MustCompile(`\$\([^)]*\)`),
			Severity: 7,
		},
	}
}
