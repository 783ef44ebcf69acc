package mcps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

// Registry owns the running MCP servers and mirrors their tools into a tool
// registry.
type Registry struct {
	mu      sync.RWMutex
	tools   *tools.Registry
	servers map[string]*Client
}

func NewRegistry(toolRegistry *tools.Registry) *Registry {
	return &Registry{
		tools:   toolRegistry,
		servers: make(map[string]*Client),
	}
}

func (r *Registry) Start(ctx context.Context, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[cfg.Name]; exists {
		log.Warn().Str("mcp", cfg.Name).Msg("⚠️ MCP server already running, skipping")
		return nil
	}

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start MCP %s: %w", cfg.Name, err)
	}
	r.add(client)
	return nil
}

func (r *Registry) add(client *Client) {
	r.servers[client.Name()] = client
	r.tools.RegisterAll(client.Tools())
	log.Info().Str("mcp", client.Name()).Int("tools", len(client.tools)).Msg("✅ MCP tools registered")
}

func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.servers[name]
	if !ok {
		return fmt.Errorf("MCP server %s not found", name)
	}
	for _, tool := range client.Tools() {
		r.tools.Unregister(tool.Name)
	}
	delete(r.servers, name)
	return client.Close()
}

func (r *Registry) Get(name string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.servers[name]
	return client, ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, client := range r.servers {
		for _, tool := range client.Tools() {
			r.tools.Unregister(tool.Name)
		}
		if err := client.Close(); err != nil {
			log.Warn().Str("mcp", name).Err(err).Msg("⚠️ Error closing MCP server")
		}
	}
	r.servers = make(map[string]*Client)
}
