package configs

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/b1506704/Live2D-AI-Agent/app/clients"
	"github.com/b1506704/Live2D-AI-Agent/app/logs"
	"github.com/b1506704/Live2D-AI-Agent/app/mcps"
	"github.com/b1506704/Live2D-AI-Agent/app/models"
	"github.com/b1506704/Live2D-AI-Agent/app/rag"
	"github.com/b1506704/Live2D-AI-Agent/app/server"
)

const DefaultPath = "config.yaml"

var ErrNoConfig = errors.New("config file not found")

type Config struct {
	Agent   AgentConfig      `yaml:"agent"`
	LLM     models.Config    `yaml:"llm"`
	Tools   ToolsConfig      `yaml:"tools"`
	Storage StorageConfig    `yaml:"storage"`
	Server  server.Config    `yaml:"server"`
	Logging logs.Config      `yaml:"logging"`
	Clients []clients.Config `yaml:"clients,omitempty" validate:"dive"`
	MCPs    []mcps.Config    `yaml:"mcps,omitempty" validate:"dive"`
	RAG     rag.Config       `yaml:"rag"`
}

type AgentConfig struct {
	Name               string   `yaml:"name"`
	Personality        string   `yaml:"personality"`
	MaxIterations      int      `yaml:"max_iterations" validate:"gte=1"`
	DefaultLanguage    string   `yaml:"default_language" validate:"required"`
	SupportedLanguages []string `yaml:"supported_languages" validate:"min=1,dive,required"`
	// CompletionKeywords replaces the default completion markers when set.
	CompletionKeywords []string `yaml:"completion_keywords"`
}

type ToolsConfig struct {
	Workspace string   `yaml:"workspace" validate:"required"`
	Presets   []string `yaml:"presets" validate:"dive,oneof=default files_extended scraper commands"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default matches the behaviour of a bare checkout talking to a local
// LM Studio server.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Name:               "Hiyori",
			Personality:        "a helpful and cheerful AI assistant",
			MaxIterations:      5,
			DefaultLanguage:    "en",
			SupportedLanguages: []string{"en", "ja"},
		},
		LLM: models.Config{
			BaseURL:     "http://localhost:1234",
			Model:       "local-model",
			Temperature: 0.7,
			MaxTokens:   -1,
			Retries:     3,
		},
		Tools: ToolsConfig{
			Workspace: "./workspace",
			Presets:   []string{"default"},
		},
		Storage: StorageConfig{Enabled: true},
		Server:  server.Config{Addr: ":8000"},
		Logging: logs.Config{Level: "info", Pretty: true, Buffer: 200},
	}
}

// LoadConfig reads path, or $AGENT_CONFIG, or config.yaml. ${VAR}
// references are expanded before parsing and unset keys keep their
// defaults. A missing file yields ErrNoConfig.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read configs file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv lets the environment override the LLM endpoint and database path.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"LLM_BASE_URL", &c.LLM.BaseURL},
		{"LLM_MODEL", &c.LLM.Model},
		{"LLM_EMBEDDINGS_MODEL", &c.LLM.EmbeddingsModel},
		{"LLM_API_KEY", &c.LLM.APIKey},
		{"DB_PATH", &c.Storage.Path},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.target = v
		}
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (%d problems)", first.Namespace(), first.Tag(), len(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.MCPs))
	for _, m := range c.MCPs {
		if seen[m.Name] {
			return fmt.Errorf("invalid config: duplicate MCP server %q", m.Name)
		}
		seen[m.Name] = true
	}
	if c.RAG.Enabled && c.LLM.EmbeddingsModel == "" {
		return errors.New("invalid config: rag.enabled requires llm.embeddings_model")
	}
	return nil
}
