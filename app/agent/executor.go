package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/models"
	"github.com/b1506704/Live2D-AI-Agent/app/tools"
)

const (
	defaultMaxIterations = 5
	defaultLanguage      = "en"
	defaultName          = "Assistant"
	defaultPersonality   = "a helpful AI assistant"
)

type Options struct {
	Name            string
	Personality     string
	MaxIterations   int
	DefaultLanguage string
	// Workspace is the sandbox root for the built-in file tools.
	Workspace string
	// Completion replaces KeywordCompletion when set.
	Completion CompletionPolicy
	// Archive, when set, receives a copy of every execution record.
	Archive Archive
}

type TaskRequest struct {
	Task    string         `json:"task"`
	Context map[string]any `json:"context,omitempty"`
	// MaxIterations overrides the configured default when non-nil.
	MaxIterations *int   `json:"max_iterations,omitempty"`
	Language      string `json:"language,omitempty"`
}

type Result struct {
	Completed    bool         `json:"completed"`
	State        State        `json:"state"`
	Response     string       `json:"response"`
	Iterations   int          `json:"iterations"`
	ToolResults  []ToolResult `json:"tool_results"`
	Conversation Conversation `json:"conversation"`
}

// Executor runs tasks as bounded rounds of generate, parse, execute tools and
// append results. One Executor is safe for concurrent ExecuteTask calls.
type Executor struct {
	generator  models.Generator
	registry   *tools.Registry
	history    *History
	completion CompletionPolicy
	archive    Archive
	persona    string
	maxIter    int
	language   string
}

// NewExecutor builds an executor whose registry already holds the built-in
// tools.
func NewExecutor(generator models.Generator, opts Options) *Executor {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = defaultLanguage
	}
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.Personality == "" {
		opts.Personality = defaultPersonality
	}
	if opts.Completion == nil {
		opts.Completion = KeywordCompletion
	}

	registry := tools.NewRegistry()
	registry.RegisterAll(tools.Builtins(tools.NewSandbox(opts.Workspace)))

	return &Executor{
		generator:  generator,
		registry:   registry,
		history:    NewHistory(),
		completion: opts.Completion,
		archive:    opts.Archive,
		persona:    buildPersona(opts.Name, opts.Personality),
		maxIter:    opts.MaxIterations,
		language:   opts.DefaultLanguage,
	}
}

func (e *Executor) Tools() *tools.Registry {
	return e.registry
}

func (e *Executor) RegisterTool(name, description string, handler tools.Handler) {
	e.registry.Register(name, description, handler)
}

func (e *Executor) History() []ExecutionRecord {
	return e.history.Snapshot()
}

func (e *Executor) ClearHistory() {
	e.history.Clear()
	log.Info().Msg("🧹 Execution history cleared")
}

// ExecuteTask never returns an error: every exit path yields a Result and
// leaves one record in the history.
func (e *Executor) ExecuteTask(ctx context.Context, req TaskRequest) Result {
	maxIter := e.maxIter
	if req.MaxIterations != nil {
		maxIter = *req.MaxIterations
	}
	language := req.Language
	if language == "" {
		language = e.language
	}

	id := uuid.NewString()
	logger := log.With().Str("execution", id).Logger()
	logger.Info().Str("task", req.Task).Int("max_iterations", maxIter).Str("language", language).Msg("▶️ Task started")

	var conv Conversation
	if len(req.Context) > 0 {
		conv.Append(RoleSystem, "Context: "+encodeContext(req.Context))
	}
	conv.Append(RoleUser, req.Task)

	state := StateRunning
	iterations := 0
	results := []ToolResult{}

	for !state.Terminal() && iterations < maxIter {
		iterations++

		gen, err := e.generator.Generate(ctx, models.GenerateRequest{
			Conversation: FormatConversation(conv),
			Tools:        e.registry.Catalog(),
			SystemPrompt: e.persona,
			Language:     language,
		})
		if err == nil && gen == nil {
			err = errors.New("generator returned no reply")
		}
		if err != nil {
			logger.Error().Err(err).Int("iteration", iterations).Msg("❌ Generation failed")
			conv.Append(RoleError, err.Error())
			state = StateAborted
			break
		}

		conv.Append(RoleAssistant, gen.Response)

		if len(gen.ToolCalls) == 0 {
			state = StateCompleted
		}
		for _, call := range gen.ToolCalls {
			logger.Info().Str("tool", call.Tool).Int("iteration", iterations).Msg("🔧 Executing tool")
			result := e.registry.Invoke(ctx, call.Tool, call.Parameters)
			conv.Append(RoleTool, fmt.Sprintf("Tool '%s' result: %s", call.Tool, formatResult(result)))
			results = append(results, ToolResult{Tool: call.Tool, Parameters: call.Parameters, Result: result})
		}

		if e.completion(gen.Response) {
			state = StateCompleted
		}
	}

	if state == StateRunning {
		state = StateExhausted
	}

	e.record(ctx, ExecutionRecord{
		ID:           id,
		Task:         req.Task,
		Timestamp:    time.Now().UTC(),
		Iterations:   iterations,
		Completed:    state == StateCompleted,
		State:        state,
		Results:      append(make([]ToolResult, 0, len(results)), results...),
		Conversation: conv.Clone(),
		Language:     language,
	})

	logger.Info().Str("state", string(state)).Int("iterations", iterations).Int("tool_calls", len(results)).Msg("🏁 Task finished")

	return Result{
		Completed:    state == StateCompleted,
		State:        state,
		Response:     conv.Last(),
		Iterations:   iterations,
		ToolResults:  results,
		Conversation: conv,
	}
}

func (e *Executor) record(ctx context.Context, rec ExecutionRecord) {
	e.history.Append(rec)
	if e.archive == nil {
		return
	}
	if err := e.archive.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn().Err(err).Str("execution", rec.ID).Msg("⚠️ Failed to archive execution")
	}
}

func encodeContext(c map[string]any) string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%v", c)
	}
	return string(b)
}

func formatResult(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case fmt.Stringer:
		return r.String()
	case error:
		return r.Error()
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
