package models

import (
	"context"

	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

// Generator produces the next assistant turn for a replayed conversation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// Chatter answers a single message without tools.
type Chatter interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	EmbedText(ctx context.Context, input string) ([]float32, error)
}

type GenerateRequest struct {
	Conversation string       `json:"conversation"`
	Tools        []tools.Spec `json:"tools"`
	SystemPrompt string       `json:"system_prompt"`
	Language     string       `json:"language"`
}

type ChatRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
	Language     string `json:"language"`
}

// Generation is a reply with its tool directives already extracted.
type Generation struct {
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
