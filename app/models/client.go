package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/utils/restclient"
)

const (
	endpoint          = "/v1/chat/completions"
	embeddingEndpoint = "/v1/embeddings"
)

var (
	_ Generator = &LLMClient{}
	_ Embedder  = &LLMClient{}
	_ Chatter   = &LLMClient{}
)

type Config struct {
	BaseURL         string  `yaml:"base_url" validate:"required,url"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model" validate:"required"`
	EmbeddingsModel string  `yaml:"embeddings_model"`
	Temperature     float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens       int     `yaml:"max_tokens"`
	Retries         int     `yaml:"retries" validate:"gte=0"`
}

// LLMClient talks to an OpenAI-compatible server (LM Studio, llama.cpp,
// vLLM, ...).
type LLMClient struct {
	restClient restclient.Interface
	cache      sync.Map
	cfg        Config
	backoff    time.Duration
}

func NewLLMClient(cfg Config) *LLMClient {
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	return newLLMClient(restclient.NewRestClient(cfg.BaseURL, headers), cfg)
}

func newLLMClient(rc restclient.Interface, cfg Config) *LLMClient {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = -1
	}
	return &LLMClient{restClient: rc, cfg: cfg, backoff: 100 * time.Millisecond}
}

func (mc *LLMClient) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	system := BuildToolsPrompt(req.Tools, req.SystemPrompt)
	if instruction := LanguageInstruction(req.Language); instruction != "" {
		system += "\n\n" + instruction
	}

	content, err := mc.Think(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: req.Conversation},
	})
	if err != nil {
		return nil, err
	}

	text, calls := ParseDirectives(content)
	log.Debug().Int("tool_calls", len(calls)).Msg("🧠 Generation parsed")
	return &Generation{Response: text, ToolCalls: calls}, nil
}

// Chat is the tool-less path used for plain conversation.
func (mc *LLMClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	system := req.SystemPrompt
	if instruction := LanguageInstruction(req.Language); instruction != "" {
		system = strings.TrimSpace(system + "\n\n" + instruction)
	}

	var messages []Message
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: req.Message})

	content, err := mc.Think(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// Think sends a plain chat completion and returns the first choice.
func (mc *LLMClient) Think(ctx context.Context, messages []Message) (string, error) {
	response, err := mc.sendRequestAndParse(ctx, requestPayload{
		Model:       mc.cfg.Model,
		Messages:    messages,
		Temperature: mc.cfg.Temperature,
		MaxTokens:   mc.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("empty LLM response")
	}
	return response.Choices[0].Message.Content, nil
}

func (mc *LLMClient) sendRequestAndParse(ctx context.Context, payload requestPayload) (*ResponseLLM, error) {
	var err error
	var response []byte
	var status int

	for i := 0; i < mc.cfg.Retries; i++ {
		if err != nil {
			if waitErr := mc.wait(ctx, i); waitErr != nil {
				return nil, waitErr
			}
		}
		if ctx.Err() != nil {
			log.Warn().Msg("🚨 Request canceled before execution")
			return nil, ctx.Err()
		}

		response, status, err = mc.restClient.Post(ctx, endpoint, payload, nil)
		if err != nil {
			log.Warn().Err(err).Int("attempt", i).Int("status", status).Msg("⚠️ LLM request failed")
			continue
		}

		var generated ResponseLLM
		if err = json.Unmarshal(response, &generated); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error parsing LLM response")
			continue
		}
		return &generated, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", mc.cfg.Retries, err)
}

func (mc *LLMClient) wait(ctx context.Context, attempt int) error {
	delay := time.Duration(math.Pow(2, float64(attempt))) * mc.backoff
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
