package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/models"
	"github.com/b1506704/Live2D-AI-Agent/app/tools"
	"github.com/b1506704/Live2D-AI-Agent/app/utils"
)

const (
	chunkSize   = 500
	overlap     = 100
	defaultTopK = 3

	ToolName = "search_knowledge"
)

type Config struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port" validate:"omitempty,gt=0,lt=65536"`
	Collection string `yaml:"collection"`
	Folder     string `yaml:"folder"`
	VectorSize int    `yaml:"vector_size" validate:"omitempty,gt=0"`
	TopK       int    `yaml:"top_k" validate:"gte=0"`
	// MinScore drops passages whose cosine similarity is below it.
	MinScore float32 `yaml:"min_score" validate:"gte=0,lte=1"`
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "rag"
	}
	if c.Folder == "" {
		c.Folder = "./rag_data"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 768
	}
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
}

var _ Interface = &Client{}

type Client struct {
	cfg     Config
	vectors vectorStore
	model   models.Embedder
}

func NewClient(cfg Config, model models.Embedder) (*Client, error) {
	cfg.applyDefaults()
	vectors, err := NewQdrantStore(cfg.Host, cfg.Port, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return newClient(cfg, vectors, model), nil
}

func newClient(cfg Config, vectors vectorStore, model models.Embedder) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, vectors: vectors, model: model}
}

// Search returns up to k passages ordered by descending score. An empty
// source searches every file.
func (c *Client) Search(ctx context.Context, text, source string, k int) ([]Passage, error) {
	vec, err := c.model.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = c.cfg.TopK
	}
	passages, err := c.vectors.Search(ctx, Query{
		Vector:   vec,
		Source:   source,
		Limit:    k,
		MinScore: c.cfg.MinScore,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	return passages, nil
}

// InitContext creates the collection and indexes the folder on first run.
// An existing collection is left untouched.
func (c *Client) InitContext(ctx context.Context) error {
	alreadyExists, err := c.vectors.EnsureCollection(ctx, c.cfg.VectorSize)
	if err != nil {
		return err
	}
	if alreadyExists {
		log.Info().Str("collection", c.cfg.Collection).Msg("📚 Knowledge collection already indexed")
		return nil
	}

	paths, err := utils.LoadFilesFromDir(c.cfg.Folder)
	if err != nil {
		return err
	}

	total := 0
	for _, p := range paths {
		var text string
		if text, err = utils.ReadFile(p); err != nil {
			return err
		}

		source := filepath.Base(p)
		chunks := ChunkText(text, chunkSize, overlap)
		batch := make([]Passage, 0, len(chunks))
		for i, ch := range chunks {
			var vec []float32
			if vec, err = c.model.EmbedText(ctx, ch); err != nil {
				return fmt.Errorf("embed %s chunk %d: %w", source, i, err)
			}
			batch = append(batch, Passage{Source: source, Chunk: i, Text: ch, Vector: vec})
		}
		if len(batch) == 0 {
			continue
		}
		if err = c.vectors.Upsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
	}

	log.Info().Int("files", len(paths)).Int("chunks", total).Msg("📚 Knowledge folder indexed")
	return nil
}

func (c *Client) Close() error {
	return c.vectors.Close()
}

type searchAction struct {
	Query  string `json:"query"`
	Source string `json:"source,omitempty"`
	K      int    `json:"k,omitempty"`
}

// Tool exposes Search to the agent as search_knowledge.
func (c *Client) Tool() tools.Tool {
	return tools.Tool{
		Name:        ToolName,
		Description: `Search the local knowledge base for relevant passages. Parameters: {"query": string, "k": optional number, "source": optional file name}`,
		Parameters: &tools.Parameter{
			Type: "object",
			Properties: map[string]any{
				"query":  map[string]any{"type": "string", "description": "What to look for."},
				"k":      map[string]any{"type": "integer", "minimum": 1, "description": "How many passages to return."},
				"source": map[string]any{"type": "string", "description": "Only search this file."},
			},
			Required: []string{"query"},
		},
		Handler: tools.HandlerFunc(c.searchTool),
	}
}

func (c *Client) searchTool(ctx context.Context, params map[string]any) (any, error) {
	action, err := utils.CastAny[searchAction](params)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(action.Query) == "" {
		return nil, errors.New("query is empty")
	}

	passages, err := c.Search(ctx, action.Query, strings.TrimSpace(action.Source), action.K)
	if err != nil {
		return nil, err
	}
	return formatPassages(passages), nil
}

func formatPassages(passages []Passage) string {
	if len(passages) == 0 {
		return "No relevant passages found"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d passages:", len(passages))
	for _, p := range passages {
		fmt.Fprintf(&sb, "\n\n[%s#%d score=%.2f] %s", p.Source, p.Chunk, p.Score, p.Text)
	}
	return sb.String()
}

// ChunkText splits text into rune windows of size that overlap by overlap.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	var chunks []string

	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
