package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrGeneration covers upstream failures: service errors, timeouts,
	// empty or unusable completions.
	ErrGeneration = errors.New("sql generation failed")

	// ErrMultiStatement is returned when the completion contains more than
	// one statement; the generator refuses to guess which one to run.
	ErrMultiStatement = errors.New("completion contains multiple statements")
)

// CandidateQuery is a machine-generated statement that has not yet been
// validated for safety.
type CandidateQuery struct {
	SQL     string
	Latency time.Duration
}

// Generator turns a natural-language question into one candidate SQL
// statement, grounding the prompt in the live schema description.
type Generator struct {
	client  CompletionClient
	model   string
	spec    PromptSpec
	timeout time.Duration
}

func NewGenerator(client CompletionClient, model string, spec PromptSpec, timeout time.Duration) *Generator {
	return &Generator{client: client, model: model, spec: spec, timeout: timeout}
}

func (g *Generator) Generate(ctx context.Context, question, schemaDescription string) (CandidateQuery, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var sys strings.Builder
	sys.WriteString(g.spec.System)
	if schemaDescription != "" {
		sys.WriteString("\n\nAvailable database schema:\n")
		sys.WriteString(schemaDescription)
	}

	user := fmt.Sprintf("Convert this question to a single PostgreSQL SELECT query:\n%q\n\nReturn only the SQL query, no explanations.", question)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.spec.temperature(),
		MaxTokens:   g.spec.maxTokens(500),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys.String()},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	latency := time.Since(start)
	if err != nil {
		return CandidateQuery{}, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return CandidateQuery{}, fmt.Errorf("%w: completion returned no choices", ErrGeneration)
	}

	sqlText, err := ExtractSQL(resp.Choices[0].Message.Content)
	if err != nil {
		return CandidateQuery{}, err
	}
	return CandidateQuery{SQL: sqlText, Latency: latency}, nil
}

var codeFenceRegex = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)\\s*```")

// ExtractSQL deterministically pulls one SQL statement out of a completion:
// code fences are stripped, prose after the statement is discarded, and
// anything containing a second statement is refused.
func ExtractSQL(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}

	statements := splitStatements(text)
	if len(statements) == 0 {
		return "", fmt.Errorf("%w: no statement found", ErrGeneration)
	}
	if len(statements) > 1 {
		return "", ErrMultiStatement
	}

	sqlText := strings.TrimSpace(statements[0])
	upper := strings.ToUpper(sqlText)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", fmt.Errorf("%w: completion is not a SELECT statement", ErrGeneration)
	}
	return sqlText, nil
}

// splitStatements splits on semicolons that sit outside single or double
// quoted literals, dropping empty fragments.
func splitStatements(text string) []string {
	var (
		statements []string
		current    strings.Builder
		inSingle   bool
		inDouble   bool
	)
	for _, r := range text {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			current.WriteRune(r)
		case r == '"' && !inSingle:
			inDouble = !inDouble
			current.WriteRune(r)
		case r == ';' && !inSingle && !inDouble:
			if s := strings.TrimSpace(current.String()); s != "" {
				statements = append(statements, s)
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		statements = append(statements, s)
	}
	return statements
}
