package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// fakeClient records the last request and replays a canned response.
type fakeClient struct {
	content   string
	err       error
	noChoices bool
	lastReq   openai.ChatCompletionRequest
	calls     int
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.noChoices {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func testSpec(system string) PromptSpec {
	var spec PromptSpec
	spec.System = system
	spec.Style.Temperature = 0.1
	spec.Style.MaxTokens = 500
	return spec
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "plain statement",
			raw:  "SELECT * FROM customers",
			want: "SELECT * FROM customers",
		},
		{
			name: "fenced with sql tag",
			raw:  "```sql\nSELECT name FROM products\n```",
			want: "SELECT name FROM products",
		},
		{
			name: "fenced without tag",
			raw:  "```\nSELECT count(*) FROM orders\n```",
			want: "SELECT count(*) FROM orders",
		},
		{
			name: "trailing semicolon dropped",
			raw:  "SELECT * FROM orders;",
			want: "SELECT * FROM orders",
		},
		{
			name: "with query",
			raw:  "WITH t AS (SELECT 1) SELECT * FROM t",
			want: "WITH t AS (SELECT 1) SELECT * FROM t",
		},
		{
			name: "semicolon inside literal is one statement",
			raw:  "SELECT * FROM customers WHERE city = 'St; Louis'",
			want: "SELECT * FROM customers WHERE city = 'St; Louis'",
		},
		{
			name:    "two statements refused",
			raw:     "SELECT 1; SELECT 2",
			wantErr: ErrMultiStatement,
		},
		{
			name:    "stacked write refused",
			raw:     "SELECT * FROM customers; DROP TABLE customers;",
			wantErr: ErrMultiStatement,
		},
		{
			name:    "non-select refused",
			raw:     "DELETE FROM customers",
			wantErr: ErrGeneration,
		},
		{
			name:    "prose refused",
			raw:     "I cannot answer that question.",
			wantErr: ErrGeneration,
		},
		{
			name:    "empty completion",
			raw:     "   ",
			wantErr: ErrGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractSQL(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeneratorBuildsSchemaGroundedPrompt(t *testing.T) {
	client := &fakeClient{content: "SELECT * FROM customers LIMIT 10"}
	g := NewGenerator(client, "gpt-4o-mini", testSpec("You generate SQL."), testTimeout)

	schema := "Table: customers\n  - customer_id (integer, not null)\n"
	candidate, err := g.Generate(context.Background(), "show customers", schema)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM customers LIMIT 10", candidate.SQL)

	require.Len(t, client.lastReq.Messages, 2)
	sys := client.lastReq.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, sys.Role)
	assert.Contains(t, sys.Content, "You generate SQL.")
	assert.Contains(t, sys.Content, "Table: customers")

	user := client.lastReq.Messages[1]
	assert.Equal(t, openai.ChatMessageRoleUser, user.Role)
	assert.Contains(t, user.Content, "show customers")
	assert.Equal(t, "gpt-4o-mini", client.lastReq.Model)
	assert.Equal(t, 500, client.lastReq.MaxTokens)
}

func TestGeneratorWrapsServiceErrors(t *testing.T) {
	client := &fakeClient{err: errors.New("upstream 500")}
	g := NewGenerator(client, "gpt-4o-mini", testSpec("sys"), testTimeout)

	_, err := g.Generate(context.Background(), "show customers", "")
	require.ErrorIs(t, err, ErrGeneration)
	assert.Contains(t, err.Error(), "upstream 500")
}

func TestGeneratorNoChoices(t *testing.T) {
	client := &fakeClient{noChoices: true}
	g := NewGenerator(client, "gpt-4o-mini", testSpec("sys"), testTimeout)

	_, err := g.Generate(context.Background(), "show customers", "")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestGeneratorRefusesMultiStatementCompletion(t *testing.T) {
	client := &fakeClient{content: "SELECT 1; SELECT 2"}
	g := NewGenerator(client, "gpt-4o-mini", testSpec("sys"), testTimeout)

	_, err := g.Generate(context.Background(), "show customers", "")
	require.ErrorIs(t, err, ErrMultiStatement)
}

func TestSplitStatementsQuoteAware(t *testing.T) {
	got := splitStatements(`SELECT 'a;b' FROM t; SELECT "x;y" FROM u`)
	require.Len(t, got, 2)
	assert.Equal(t, `SELECT 'a;b' FROM t`, got[0])
	assert.Equal(t, `SELECT "x;y" FROM u`, got[1])
}
