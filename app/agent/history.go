package agent

import (
	"context"
	"sync"
	"time"
)

type ToolResult struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Result     any            `json:"result"`
}

type ExecutionRecord struct {
	ID           string       `json:"id"`
	Task         string       `json:"task"`
	Timestamp    time.Time    `json:"timestamp"`
	Iterations   int          `json:"iterations"`
	Completed    bool         `json:"completed"`
	State        State        `json:"state"`
	Results      []ToolResult `json:"results"`
	Conversation Conversation `json:"conversation"`
	Language     string       `json:"language"`
}

// Archive persists execution records beyond the process lifetime.
type Archive interface {
	SaveExecution(ctx context.Context, rec ExecutionRecord) error
}

// History is the append-only, process-lifetime execution log. It grows until
// Clear is called.
type History struct {
	mu      sync.Mutex
	records []ExecutionRecord
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(rec ExecutionRecord) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

// Snapshot returns a copy that later appends or clears do not affect.
func (h *History) Snapshot() []ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ExecutionRecord, len(h.records))
	for i, rec := range h.records {
		rec.Results = append([]ToolResult(nil), rec.Results...)
		rec.Conversation = rec.Conversation.Clone()
		out[i] = rec
	}
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	h.records = nil
	h.mu.Unlock()
}
