package configs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
	"github.com/b1506704/Live2D-AI-Agent/app/clients"
	"github.com/b1506704/Live2D-AI-Agent/app/logs"
	"github.com/b1506704/Live2D-AI-Agent/app/mcps"
	"github.com/b1506704/Live2D-AI-Agent/app/models"
	"github.com/b1506704/Live2D-AI-Agent/app/rag"
	"github.com/b1506704/Live2D-AI-Agent/app/server"
	"github.com/b1506704/Live2D-AI-Agent/app/storage"
	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

// App holds every long-lived component built from a Config.
type App struct {
	Executor *agent.Executor
	Storage  storage.Interface
	MCPs     *mcps.Registry
	Clients  *clients.Registry
	RAG      *rag.Client
	Server   *server.Server
}

// Build wires the executor and its optional collaborators. Failures of
// optional parts (archive, MCP servers, clients, RAG) are logged and skipped.
func (c *Config) Build(ctx context.Context, auditLogs *logs.AuditLogger) (*App, error) {
	llm := models.NewLLMClient(c.LLM)
	return c.build(ctx, llm, llm, auditLogs)
}

func (c *Config) build(ctx context.Context, gen models.Generator, emb models.Embedder, auditLogs *logs.AuditLogger) (*App, error) {
	app := &App{Clients: clients.NewRegistry()}

	if c.Storage.Enabled {
		store, err := storage.NewSQLiteStorage(ctx, c.Storage.Path)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Execution archive disabled")
		} else {
			app.Storage = store
		}
	}

	opts := agent.Options{
		Name:            c.Agent.Name,
		Personality:     c.Agent.Personality,
		MaxIterations:   c.Agent.MaxIterations,
		DefaultLanguage: c.Agent.DefaultLanguage,
		Workspace:       c.Tools.Workspace,
	}
	if len(c.Agent.CompletionKeywords) > 0 {
		opts.Completion = agent.KeywordsCompletion(c.Agent.CompletionKeywords...)
	}
	if app.Storage != nil {
		opts.Archive = app.Storage
	}
	app.Executor = agent.NewExecutor(gen, opts)

	if err := c.registerPresets(app.Executor.Tools()); err != nil {
		app.Close()
		return nil, err
	}

	app.MCPs = mcps.NewRegistry(app.Executor.Tools())
	c.StartMCPs(ctx, app.MCPs)

	if c.RAG.Enabled {
		c.initRAG(ctx, app, emb)
	}

	if err := c.InitializeClients(ctx, app.Clients, app.Executor); err != nil {
		log.Warn().Err(err).Msg("⚠️ Client initialization incomplete")
	}

	srvOpts := server.Options{
		Languages:       c.Agent.SupportedLanguages,
		DefaultLanguage: c.Agent.DefaultLanguage,
	}
	if auditLogs != nil {
		srvOpts.Logs = auditLogs
	}
	if app.Storage != nil {
		srvOpts.Archive = app.Storage
	}
	app.Server = server.New(c.Server, app.Executor, srvOpts)

	log.Info().Int("tools", len(app.Executor.Tools().Catalog())).Msg("🚀 Agent ready")
	return app, nil
}

func (c *Config) registerPresets(registry *tools.Registry) error {
	sandbox := tools.NewSandbox(c.Tools.Workspace)
	for _, preset := range c.Tools.Presets {
		extra, err := tools.Preset(preset, sandbox)
		if err != nil {
			return err
		}
		registry.RegisterAll(extra)
	}
	return nil
}

func (c *Config) StartMCPs(ctx context.Context, registry *mcps.Registry) {
	for _, mcpCfg := range c.MCPs {
		log.Info().Str("mcp", mcpCfg.Name).Msg("🌍 Starting MCP server")
		if err := registry.Start(ctx, mcpCfg); err != nil {
			log.Warn().Err(err).Str("mcp", mcpCfg.Name).Msg("⚠️ MCP server skipped")
		}
	}
}

func (c *Config) initRAG(ctx context.Context, app *App, emb models.Embedder) {
	client, err := rag.NewClient(c.RAG, emb)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Knowledge base disabled")
		return
	}
	if err = client.InitContext(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ Knowledge base indexing failed")
		_ = client.Close()
		return
	}
	app.RAG = client
	app.Executor.Tools().RegisterTool(client.Tool())
}

func (c *Config) InitializeClients(ctx context.Context, clientRegistry *clients.Registry, executor *agent.Executor) error {
	if len(c.Clients) == 0 {
		log.Info().Msg("ℹ️ No clients configured")
		return nil
	}

	for _, clientCfg := range c.Clients {
		if !clientCfg.Enabled {
			log.Info().Str("client", clientCfg.Type).Msg("⏭️ Client is disabled, skipping")
			continue
		}

		log.Info().Str("client", clientCfg.Type).Msg("🔌 Initializing client")
		client, err := clients.CreateClient(clientCfg)
		if err != nil {
			return fmt.Errorf("failed to create %s client: %w", clientCfg.Type, err)
		}
		if err = clientRegistry.Register(ctx, client, executor); err != nil {
			return fmt.Errorf("failed to register %s client: %w", clientCfg.Type, err)
		}
		log.Info().Str("client", clientCfg.Type).Msg("✅ Client initialized")
	}
	return nil
}

// Close releases everything Build opened, in reverse order.
func (a *App) Close() {
	if a.Clients != nil {
		a.Clients.CloseAll()
	}
	if a.RAG != nil {
		if err := a.RAG.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error closing knowledge base")
		}
	}
	if a.MCPs != nil {
		a.MCPs.CloseAll()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error closing archive")
		}
	}
}
