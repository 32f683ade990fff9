package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"datachat-backend/internal/db"
)

// ErrComposition covers upstream failures while summarizing results. The
// caller degrades gracefully: SQL and row count still reach the user.
var ErrComposition = errors.New("answer composition failed")

// maxSampleRows bounds how many rows are sent back to the completion
// service; the full result set never leaves the process.
const maxSampleRows = 5

// Composer turns a result set back into prose answering the original
// question.
type Composer struct {
	client  CompletionClient
	model   string
	spec    PromptSpec
	timeout time.Duration
}

func NewComposer(client CompletionClient, model string, spec PromptSpec, timeout time.Duration) *Composer {
	return &Composer{client: client, model: model, spec: spec, timeout: timeout}
}

func (c *Composer) Compose(ctx context.Context, question, sqlText string, rs *db.ResultSet) (string, error) {
	if rs.RowCount == 0 {
		return "I didn't find any results matching your question. You might want to try rephrasing it or check whether the data exists.", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sample := rs.Rows
	if len(sample) > maxSampleRows {
		sample = sample[:maxSampleRows]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrComposition, err)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Original question: %q\n", question)
	fmt.Fprintf(&user, "SQL query executed: %s\n", sqlText)
	fmt.Fprintf(&user, "Number of results: %d\n", rs.RowCount)
	fmt.Fprintf(&user, "Sample results (first %d): %s\n", len(sample), sampleJSON)
	user.WriteString("\nExplain these results in natural language, directly answering the question.")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.spec.temperature(),
		MaxTokens:   c.spec.maxTokens(800),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.spec.System},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrComposition, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: completion returned no content", ErrComposition)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
