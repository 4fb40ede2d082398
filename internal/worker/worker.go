package worker

import (
	"context"
)

// Worker is one long-running processing loop.
type Worker interface {
	// Start blocks until the worker stops or the context ends.
	Start(ctx context.Context) error

	// Stop signals the loop to drain and exit.
	Stop() error

	// Name identifies the worker in logs.
	Name() string
}
