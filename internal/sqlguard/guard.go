// Package sqlguard statically validates machine-generated SQL before it
// reaches the database. It is deny-by-default and assumes nothing upstream
// (prompt, threat detector) has already eliminated risk.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// Violation reasons attached to rejected candidates.
const (
	ReasonEmptyStatement    = "EmptyStatement"
	ReasonNotReadOnly       = "NotReadOnly"
	ReasonMultiStatement    = "MultiStatementDetected"
	ReasonForbiddenKeyword  = "ForbiddenKeyword"
	ReasonCommentMarker     = "CommentMarker"
	ReasonTableNotAllowed   = "TableNotAllowed"
	ReasonDangerousFunction = "DangerousFunction"
)

// Verdict is the result of validating one candidate. SQL carries the
// normalized statement (LIMIT appended when absent) and is only meaningful
// when Allowed is true.
type Verdict struct {
	Allowed bool
	Reason  string
	Detail  string
	SQL     string
}

// Guard validates candidates against a table allow-list derived from the
// known schema.
type Guard struct {
	allowedTables map[string]bool
	maxRows       int
}

// Keywords that never belong in a read-only statement. Word-bounded so
// identifiers like created_at or offset do not trip them.
var forbiddenKeywordRegex = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|create|alter|truncate|grant|revoke|merge|call|exec|execute|copy|vacuum|commit|rollback|savepoint|lock|set|reset|listen|notify|do|prepare|deallocate|declare|fetch|refresh|reindex|cluster|checkpoint)\b`)

// Server-side functions that read files, run commands, stall the backend,
// or reach other databases.
var dangerousFunctionRegex = regexp.MustCompile(`(?i)\b(pg_read_file|pg_read_binary_file|pg_ls_dir|pg_stat_file|pg_sleep|pg_terminate_backend|pg_cancel_backend|pg_reload_conf|lo_import|lo_export|dblink|dblink_exec|pg_logdir_ls|current_setting|set_config)\s*\(`)

var (
	commentMarkerRegex = regexp.MustCompile(`--|/\*|\*/|#`)
	tableRefRegex      = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)
	limitClauseRegex   = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	withSelectRegex    = regexp.MustCompile(`(?is)^with\b.*\bselect\b`)
)

func NewGuard(allowedTables []string, maxRows int) *Guard {
	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[strings.ToLower(t)] = true
	}
	return &Guard{allowedTables: allowed, maxRows: maxRows}
}

// Validate applies the checks in order: read-only statement type, single
// statement, allow-listed tables only, no dangerous built-ins. The first
// failed check wins.
func (g *Guard) Validate(sqlText string) Verdict {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";"))
	if trimmed == "" {
		return deny(ReasonEmptyStatement, "statement is empty")
	}

	// String literal content is masked first so a quoted value can neither
	// hide a separator nor fake a keyword match.
	masked := maskLiterals(trimmed)

	if commentMarkerRegex.MatchString(masked) {
		return deny(ReasonCommentMarker, "comment markers are not allowed")
	}
	if strings.Contains(masked, ";") {
		return deny(ReasonMultiStatement, "statement separator detected")
	}

	upper := strings.ToUpper(masked)
	isSelect := strings.HasPrefix(upper, "SELECT")
	isWithSelect := withSelectRegex.MatchString(masked)
	if !isSelect && !isWithSelect {
		return deny(ReasonNotReadOnly, "only SELECT statements are allowed")
	}

	if m := forbiddenKeywordRegex.FindString(masked); m != "" {
		return deny(ReasonForbiddenKeyword, fmt.Sprintf("forbidden keyword: %s", strings.ToUpper(m)))
	}
	if m := dangerousFunctionRegex.FindString(masked); m != "" {
		name := strings.ToLower(strings.TrimRight(strings.TrimSpace(m), "( \t"))
		return deny(ReasonDangerousFunction, fmt.Sprintf("dangerous function: %s", name))
	}

	ctes := cteNames(masked)
	for _, table := range referencedTables(masked) {
		if ctes[table] {
			continue
		}
		if !g.allowedTables[table] {
			return deny(ReasonTableNotAllowed, fmt.Sprintf("table not allowed: %s", table))
		}
	}

	normalized := trimmed
	if !limitClauseRegex.MatchString(masked) {
		normalized = fmt.Sprintf("%s LIMIT %d", normalized, g.maxRows)
	}
	return Verdict{Allowed: true, SQL: normalized}
}

func deny(reason, detail string) Verdict {
	return Verdict{Allowed: false, Reason: reason, Detail: detail}
}

// maskLiterals replaces the content of single- and double-quoted literals
// with spaces, preserving length and quote positions.
func maskLiterals(s string) string {
	out := []rune(s)
	var inSingle, inDouble bool
	for i, r := range out {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			out[i] = ' '
		}
	}
	return string(out)
}

var cteNameRegex = regexp.MustCompile(`(?i)(?:\bwith\s+(?:recursive\s+)?|,\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s+as\s*\(`)

// cteNames collects common-table-expression names so a WITH query can
// reference its own CTEs without tripping the allow-list.
func cteNames(masked string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range cteNameRegex.FindAllStringSubmatch(masked, -1) {
		names[strings.ToLower(m[1])] = true
	}
	return names
}

// referencedTables extracts identifiers after FROM/JOIN. Subselects produce
// no capture since "(" cannot start an identifier. Schema prefixes are
// stripped; only the public schema is reachable anyway.
func referencedTables(masked string) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, m := range tableRefRegex.FindAllStringSubmatch(masked, -1) {
		name := strings.ToLower(m[1])
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}
