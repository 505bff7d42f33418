package agents

import (
	"context"

	"github.com/snappy-loop/donghua/internal/llm"
)

// PromptAgent turns a free-text character description into a styled prompt.
type PromptAgent interface {
	GeneratePrompt(ctx context.Context, description string) (string, error)
}

// PreviewAgent renders a styled prompt into an image data URI.
type PreviewAgent interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// CharacterAgent is the pair of calls a studio session drives.
type CharacterAgent interface {
	PromptAgent
	PreviewAgent
}

// CharacterAgentImpl wraps llm.Client for prompt and preview generation.
type CharacterAgentImpl struct {
	Client *llm.Client
}

// NewCharacterAgent returns a CharacterAgent that delegates to the LLM client.
func NewCharacterAgent(client *llm.Client) CharacterAgent {
	return &CharacterAgentImpl{Client: client}
}

// GeneratePrompt delegates to llm.Client.GeneratePrompt.
func (a *CharacterAgentImpl) GeneratePrompt(ctx context.Context, description string) (string, error) {
	return a.Client.GeneratePrompt(ctx, description)
}

// GenerateImage delegates to llm.Client.GenerateImage.
func (a *CharacterAgentImpl) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return a.Client.GenerateImage(ctx, prompt)
}
