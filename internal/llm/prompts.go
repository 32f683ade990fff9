package llm

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// PromptSpec is a completion prompt loaded from a YAML file so prompt text
// can change without a rebuild.
type PromptSpec struct {
	System string `yaml:"system"`
	Style  struct {
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"max_tokens"`
	} `yaml:"style"`
}

// LoadPromptSpec reads and parses a prompt spec file.
func LoadPromptSpec(path string) (PromptSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PromptSpec{}, fmt.Errorf("failed to read prompt spec %s: %w", path, err)
	}
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return PromptSpec{}, fmt.Errorf("failed to parse prompt spec %s: %w", path, err)
	}
	return spec, nil
}

func (s PromptSpec) temperature() float32 {
	if s.Style.Temperature <= 0 {
		return 0.1
	}
	return s.Style.Temperature
}

func (s PromptSpec) maxTokens(def int) int {
	if s.Style.MaxTokens <= 0 {
		return def
	}
	return s.Style.MaxTokens
}

// CompletionClient is the slice of the OpenAI client the generator and
// composer need; *openai.Client satisfies it.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
