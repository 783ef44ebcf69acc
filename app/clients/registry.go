package clients

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
)

// Config defines the configuration for a client connector
type Config struct {
	Type    string            `yaml:"type" json:"type" validate:"required,oneof=discord"`
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Config  map[string]string `yaml:"config,omitempty" json:"config,omitempty"`
}

type Registry struct {
	mu      sync.RWMutex
	clients []Interface
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make([]Interface, 0),
	}
}

func (r *Registry) Register(ctx context.Context, client Interface, executor *agent.Executor) error {
	if err := client.Subscribe(ctx, executor); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, client)
	return nil
}

func (r *Registry) GetAll() []Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Interface, len(r.clients))
	copy(result, r.clients)
	return result
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clients {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error closing client")
		}
	}
	r.clients = make([]Interface, 0)
}

func CreateClient(cfg Config) (Interface, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("client %s is disabled", cfg.Type)
	}

	switch cfg.Type {
	case "discord":
		dc, err := NewDiscordClientFromConfig(cfg.Config)
		if err != nil {
			return nil, err
		}
		return dc, nil
	default:
		return nil, fmt.Errorf("unknown client type: %s", cfg.Type)
	}
}
