package commands

import (
	"context"

	"github.com/modelrelay/modelrelay/internal/router"
	"github.com/modelrelay/modelrelay/internal/state"
)

// RouterProvider exposes routing functionality to commands.
type RouterProvider interface {
	Status() router.Status
	StatusSummary() string
	Events(limit int) []state.DecisionEvent
	Explain() []state.DecisionEvent
	ForceRoute(routeID, modelID string) error
	RenameRoute(routeID, label string) error
	ReorderRoute(routeID string, pos int) error
	Reload() error
	StartContinuation(ctx context.Context) error
}

// CommandResult contains the result of a command execution
type CommandResult struct {
	Text     string // Plain text output
	Markdown string // Markdown formatted output
	Error    error  // Error if command failed
	ExitCode int    // For CLI usage (0 = success)
}
