package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
	"github.com/b1506704/Live2D-AI-Agent/app/tools"
	"github.com/b1506704/Live2D-AI-Agent/app/utils"
)

const (
	taskCommand       = "!task"
	sendMessageTool   = "send_discord_message"
	maxDiscordMessage = 2000
)

var _ Interface = &DiscordClient{}

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// gateway is the websocket side of a discordgo session.
type gateway interface {
	Open() error
	Close() error
}

type DiscordClient struct {
	Client
	gateway   gateway
	sender    messageSender
	channelID string
	adminID   string
	ctx       context.Context
}

type discordParameters struct {
	Message   string `json:"message"`
	ChannelID string `json:"channel_id"`
}

// NewDiscordClientFromConfig reads token, channel_id and admin_id. When
// admin_id is empty every user may run tasks.
func NewDiscordClientFromConfig(cfg map[string]string) (*DiscordClient, error) {
	token := cfg["token"]
	if token == "" {
		return nil, errors.New("discord token is empty")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dc := &DiscordClient{
		gateway:   session,
		sender:    session,
		channelID: cfg["channel_id"],
		adminID:   cfg["admin_id"],
	}

	session.AddHandler(dc.onMessageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return dc, nil
}

func (c *DiscordClient) Subscribe(ctx context.Context, executor *agent.Executor) error {
	c.executor = executor
	c.ctx = ctx

	if c.gateway != nil {
		if err := c.gateway.Open(); err != nil {
			return fmt.Errorf("open discord session: %w", err)
		}
		log.Info().Msg("💬 Discord client started, listening for !task messages")
	}
	executor.Tools().RegisterTool(c.sendMessageTool())
	return nil
}

func (c *DiscordClient) sendMessageTool() tools.Tool {
	return tools.Tool{
		Name:        sendMessageTool,
		Description: fmt.Sprintf(`Send a text message to a Discord channel. Parameters: {"message": string, "channel_id": optional string, default %q}`, c.channelID),
		Parameters: &tools.Parameter{
			Type: "object",
			Properties: map[string]any{
				"channel_id": map[string]any{
					"type":        "string",
					"description": "Discord channel ID where the message will be sent.",
				},
				"message": map[string]any{
					"type":        "string",
					"description": "The content of the message to send.",
				},
			},
			Required: []string{"message"},
		},
		Handler: tools.HandlerFunc(func(_ context.Context, params map[string]any) (any, error) {
			p, err := utils.CastAny[discordParameters](params)
			if err != nil {
				return nil, err
			}
			channelID := p.ChannelID
			if channelID == "" {
				channelID = c.channelID
			}
			if err = c.SendMessage(channelID, p.Message); err != nil {
				return nil, err
			}
			return "✅ Message successfully sent to Discord channel " + channelID, nil
		}),
	}
}

func (c *DiscordClient) Close() error {
	if c.gateway == nil {
		return nil
	}
	return c.gateway.Close()
}

func (c *DiscordClient) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	go c.handleMessage(m.Author.ID, m.ChannelID, m.Content)
}

// handleMessage runs one !task command and replies in the same channel.
func (c *DiscordClient) handleMessage(authorID, channelID, content string) {
	if c.adminID != "" && authorID != c.adminID {
		return
	}
	fields := strings.Fields(content)
	if len(fields) == 0 || fields[0] != taskCommand {
		return
	}

	description := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), taskCommand))
	if description == "" {
		c.reply(channelID, "Usage: !task <description>")
		return
	}

	log.Info().Str("author", authorID).Str("task", description).Msg("📥 Discord task received")
	c.reply(channelID, "⏳ Working on: "+description)

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	result := c.executor.ExecuteTask(ctx, agent.TaskRequest{Task: description})

	status := "✅"
	if !result.Completed {
		status = "⚠️ (" + string(result.State) + ")"
	}
	c.reply(channelID, truncate(status+" "+result.Response, maxDiscordMessage))
}

func (c *DiscordClient) reply(channelID, content string) {
	if err := c.SendMessage(channelID, content); err != nil {
		log.Warn().Err(err).Msg("⚠️ Error replying on Discord")
	}
}

func (c *DiscordClient) SendMessage(channelID, content string) error {
	if channelID == "" {
		return errors.New("channelID is empty")
	}
	if _, err := c.sender.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
