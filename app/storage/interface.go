package storage

import (
	"context"
	"errors"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
)

var ErrClosed = errors.New("storage is closed")

// Interface archives execution records. It is a write-mostly mirror of the
// in-memory history, not a replacement for it.
type Interface interface {
	agent.Archive
	ListExecutions(ctx context.Context, limit int) ([]agent.ExecutionRecord, error)
	Close() error
}
