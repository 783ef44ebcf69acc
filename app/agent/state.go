package agent

// State is the lifecycle of a single task execution.
type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateAborted   State = "ABORTED"
	StateExhausted State = "EXHAUSTED"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateExhausted
}
