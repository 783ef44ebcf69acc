package tools

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/utils"
)

// Presets
const (
	PresetDefault         = "default"
	PresetFileOpsExtended = "files_extended"
	PresetScraper         = "scraper"
	PresetCommands        = "commands"
)

// Tools
const (
	web_search           = "web_search"
	calculator           = "calculator"
	get_current_time     = "get_current_time"
	get_weather          = "get_weather"
	read_file            = "read_file"
	write_file           = "write_file"
	get_system_info      = "get_system_info"
	list_files           = "list_files"
	append_file          = "append_file"
	search_file          = "search_file"
	create_directory     = "create_directory"
	fetch_page           = "fetch_page"
	extract_links_html   = "extract_links_html"
	extract_text_content = "extract_text_content"
	extract_meta_tags    = "extract_meta_tags"
	run_command          = "run_command"
)

// Handler is the single capability every tool exposes to the registry.
type Handler interface {
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// HandlerFunc adapts a blocking function to Handler.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

func (f HandlerFunc) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// AsyncResult is delivered on the channel returned by an AsyncFunc.
type AsyncResult struct {
	Value any
	Err   error
}

// AsyncFunc adapts a function that starts work in the background and reports
// through a channel. Invoke waits for the result or for ctx to be done.
type AsyncFunc func(ctx context.Context, params map[string]any) <-chan AsyncResult

func (f AsyncFunc) Invoke(ctx context.Context, params map[string]any) (any, error) {
	select {
	case res, ok := <-f(ctx, params):
		if !ok {
			return nil, errors.New("tool finished without a result")
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  *Parameter `json:"parameters,omitempty"`
	Handler     Handler    `json:"-"`
}

type Parameter struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Spec is the view of a tool handed to the generator.
type Spec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func stringParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func objectParams(required []string, props map[string]any) *Parameter {
	return &Parameter{Type: "object", Properties: props, Required: required}
}

func withParsed[T any](params map[string]any, op string, f func(T) (string, error)) (any, error) {
	v, err := utils.CastAny[T](params)
	if err != nil {
		log.Error().Err(err).Msgf("❌ Error parsing %s parameters", op)
		return nil, err
	}
	if v == nil {
		log.Error().Msgf("❌ %s parameters are nil", op)
		return nil, errors.New("parameters are nil")
	}
	return f(*v)
}
