package source

import (
	"context"

	"github.com/snowbind/snowbind/internal/config"
	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/logging"
)

// LocalFetcher loads a single target-state artifact from disk.
type LocalFetcher struct {
	Path string
}

var _ Fetcher = (*LocalFetcher)(nil)

func (f *LocalFetcher) Fetch(_ context.Context, logger logging.InternalLogger) ([]core.TargetState, error) {
	target, err := config.LoadTarget(f.Path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded target state from %s (database %s)", f.Path, target.DatabaseName)
	return []core.TargetState{target}, nil
}
