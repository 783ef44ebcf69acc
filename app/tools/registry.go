package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry maps tool names to handlers. Registration order is kept so the
// catalog shown to the generator is stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register inserts or replaces a tool. It never fails.
func (r *Registry) Register(name, description string, handler Handler) {
	r.RegisterTool(Tool{Name: name, Description: description, Handler: handler})
}

func (r *Registry) RegisterTool(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		log.Warn().Str("tool", tool.Name).Msg("⚠️ Tool already registered, overwriting")
	} else {
		r.order = append(r.order, tool.Name)
	}
	if tool.Handler == nil {
		log.Warn().Str("tool", tool.Name).Msg("⚠️ Tool has no handler")
	}

	r.tools[tool.Name] = tool
	log.Info().Str("tool", tool.Name).Msg("🔧 Registered tool")
}

func (r *Registry) RegisterAll(tools []Tool) {
	for _, t := range tools {
		r.RegisterTool(t)
	}
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Catalog lists name and description pairs in registration order.
func (r *Registry) Catalog() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, Spec{Name: t.Name, Description: t.Description})
	}
	return specs
}

// Tools returns a copy of every registered tool in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Invoke runs the named tool and always returns something printable: either
// the handler's value or a string describing why it could not produce one.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (result any) {
	tool, ok := r.Get(name)
	if !ok {
		log.Warn().Str("tool", name).Msg("⚠️ Unknown tool requested")
		return fmt.Sprintf("Error: Unknown tool '%s'", name)
	}
	if tool.Handler == nil {
		return fmt.Sprintf("Error executing tool: %s has no handler", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("tool", name).Interface("panic", rec).Msg("🚨 Tool panicked")
			result = fmt.Sprintf("Error executing tool: %v", rec)
		}
	}()

	if params == nil {
		params = map[string]any{}
	}
	if err := validateParams(tool.Parameters, params); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("⚠️ Invalid tool parameters")
		return fmt.Sprintf("Error executing tool: %v", err)
	}

	value, err := tool.Handler.Invoke(ctx, params)
	if err != nil {
		log.Error().Str("tool", name).Err(err).Msg("❌ Tool execution failed")
		return fmt.Sprintf("Error executing tool: %v", err)
	}
	return value
}
