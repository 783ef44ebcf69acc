package clients

import (
	"context"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
)

// Interface is an external chat surface that forwards tasks to the executor.
type Interface interface {
	Subscribe(ctx context.Context, executor *agent.Executor) error
	Close() error
}

type Client struct {
	executor *agent.Executor
}
