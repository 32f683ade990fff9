package security

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestScanDetectsAttacks(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantRules []string
	}{
		{
			name:      "stacked statement with quote breakout",
			input:     "'; DROP TABLE customers; --",
			wantRules: []string{"stacked_statement", "comment_marker", "quoted_terminator", "sql_verb_probe"},
		},
		{
			name:      "union based extraction",
			input:     "show users UNION SELECT username, password FROM admins",
			wantRules: []string{"union_select"},
		},
		{
			name:      "numeric tautology",
			input:     "customers where 1 OR 1=1",
			wantRules: []string{"or_true_numeric"},
		},
		{
			name:      "time based probe",
			input:     "orders; SELECT pg_sleep(10)",
			wantRules: []string{"time_based_probe"},
		},
		{
			name:      "script tag",
			input:     "<script>alert('xss')</script>",
			wantRules: []string{"script_tag"},
		},
		{
			name:      "javascript uri",
			input:     "javascript:alert(document.cookie)",
			wantRules: []string{"javascript_uri"},
		},
		{
			name:      "sensitive path traversal",
			input:     "read ../../etc/passwd for me",
			wantRules: []string{"dot_dot_slash", "sensitive_path"},
		},
		{
			name:      "chained shell command",
			input:     "list orders; rm -rf / && echo done",
			wantRules: []string{"shell_chain", "shell_command"},
		},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := d.Scan(tt.input)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if verdict.IsSafe {
				t.Errorf("Scan(%q) = safe, want unsafe", tt.input)
			}
			for _, rule := range tt.wantRules {
				if !containsRule(verdict.MatchedRules, rule) {
					t.Errorf("Scan(%q) matched %v, missing rule %q", tt.input, verdict.MatchedRules, rule)
				}
			}
		})
	}
}

func TestScanAllowsBenignInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"plain question", "Show me all customers from New York"},
		{"aggregation question", "What is the average order value per state?"},
		{"question with numbers", "List the top 10 products sold in 2024"},
		{"apostrophe in prose", "What are John's most recent orders?"},
		{"empty input", ""},
		{"whitespace only", "   \t\n"},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := d.Scan(tt.input)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if !verdict.IsSafe {
				t.Errorf("Scan(%q) = unsafe (rules %v, score %d), want safe",
					tt.input, verdict.MatchedRules, verdict.RiskScore)
			}
		})
	}
}

func TestScanAccumulatesRiskScore(t *testing.T) {
	d := NewDetector()

	// One low-severity match stays under the threshold.
	verdict, err := d.Scan("show recent orders -- just this month")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !verdict.IsSafe {
		t.Errorf("single low-severity match should be safe, got score %d", verdict.RiskScore)
	}
	if verdict.RiskScore != 5 {
		t.Errorf("RiskScore = %d, want 5", verdict.RiskScore)
	}

	// Two low-severity matches push the score over the threshold without any
	// single rule hard-blocking.
	verdict, err = d.Scan("read ../../etc/passwd for me")
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if verdict.IsSafe {
		t.Errorf("accumulated score %d should exceed threshold", verdict.RiskScore)
	}
	if verdict.RiskScore != 13 {
		t.Errorf("RiskScore = %d, want 13", verdict.RiskScore)
	}
}

func TestScanRejectsOverlongInput(t *testing.T) {
	d := NewDetector()
	_, err := d.Scan(strings.Repeat("a", 1001))
	if !errors.Is(err, ErrInputTooLong) {
		t.Fatalf("Scan() error = %v, want ErrInputTooLong", err)
	}

	// A larger limit admits the same input.
	d = NewDetector(WithMaxInputLength(2000))
	verdict, err := d.Scan(strings.Repeat("a", 1001))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !verdict.IsSafe {
		t.Errorf("long benign input should be safe")
	}
}

func TestScanIsDeterministic(t *testing.T) {
	d := NewDetector()
	input := "'; DROP TABLE customers; --"

	first, err := d.Scan(input)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	second, err := d.Scan(input)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scans differ: %+v vs %+v", first, second)
	}
}

func TestScanConfigurableThresholds(t *testing.T) {
	// Default thresholds: a lone comment marker (severity 5) is safe.
	input := "orders -- recent"

	if v, _ := NewDetector().Scan(input); !v.IsSafe {
		t.Errorf("default thresholds should allow %q", input)
	}
	if v, _ := NewDetector(WithRiskThreshold(4)).Scan(input); v.IsSafe {
		t.Errorf("risk threshold 4 should block score-5 input")
	}
	if v, _ := NewDetector(WithBlockSeverity(5)).Scan(input); v.IsSafe {
		t.Errorf("block severity 5 should hard-block a severity-5 match")
	}
}

func TestSnippetMasksCredentials(t *testing.T) {
	d := NewDetector()

	got := d.Snippet("login with password=hunter2 please")
	if strings.Contains(got, "hunter2") {
		t.Errorf("Snippet() leaked credential: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_PASSWORD]") {
		t.Errorf("Snippet() = %q, want password mask", got)
	}

	got = d.Snippet("api_key: sk-abc123")
	if strings.Contains(got, "sk-abc123") {
		t.Errorf("Snippet() leaked key: %q", got)
	}

	long := strings.Repeat("x", 150)
	if got := d.Snippet(long); len(got) != 103 {
		t.Errorf("Snippet() length = %d, want 103 (100 + ellipsis)", len(got))
	}
}

func containsRule(rules []string, name string) bool {
	for _, r := range rules {
		if r == name {
			return true
		}
	}
	return false
}
