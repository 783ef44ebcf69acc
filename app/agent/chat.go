package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/models"
)

const characterPrompt = "You are a Live2D character named %s. Be friendly and engaging."

type ChatRequest struct {
	Message     string         `json:"message"`
	Language    string         `json:"language,omitempty"`
	Live2DModel string         `json:"live2d_model,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

type ChatReply struct {
	Response    string `json:"response"`
	Language    string `json:"language"`
	Live2DModel string `json:"live2d_model,omitempty"`
}

// Chat answers one message in character, without tools and without touching
// the execution history.
func (e *Executor) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	language := req.Language
	if language == "" {
		language = e.language
	}

	system := e.persona
	if req.Live2DModel != "" {
		system = fmt.Sprintf(characterPrompt, req.Live2DModel)
	}
	if len(req.Context) > 0 {
		system += "\n\nContext: " + encodeContext(req.Context)
	}

	response, err := e.chat(ctx, models.ChatRequest{Message: req.Message, SystemPrompt: system, Language: language})
	if err != nil {
		log.Error().Err(err).Msg("❌ Chat generation failed")
		return ChatReply{}, err
	}
	return ChatReply{Response: response, Language: language, Live2DModel: req.Live2DModel}, nil
}

func (e *Executor) chat(ctx context.Context, req models.ChatRequest) (string, error) {
	if chatter, ok := e.generator.(models.Chatter); ok {
		return chatter.Chat(ctx, req)
	}

	gen, err := e.generator.Generate(ctx, models.GenerateRequest{
		Conversation: FormatConversation(Conversation{{Role: RoleUser, Content: req.Message}}),
		SystemPrompt: req.SystemPrompt,
		Language:     req.Language,
	})
	if err != nil {
		return "", err
	}
	if gen == nil {
		return "", errors.New("generator returned no reply")
	}
	return strings.TrimSpace(gen.Response), nil
}
