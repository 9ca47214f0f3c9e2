package source

import (
	"context"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/logging"
)

// Fetcher loads target-state artifacts from somewhere: a local file, or a
// reviewed directory in a Git repository.
type Fetcher interface {
	Fetch(ctx context.Context, log logging.InternalLogger) ([]core.TargetState, error)
}
