package source

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-github/v80/github"

	"github.com/snowbind/snowbind/internal/config"
	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/logging"
)

// GitHubFetcher loads target-state artifacts from a directory in a GitHub
// repository, authenticated as a GitHub App installation. Keeping targets in
// a reviewed repo gives provisioning the same change control as code.
type GitHubFetcher struct {
	cfg config.GitHubSourceConfig
}

func NewGitHubFetcher(cfg config.GitHubSourceConfig) (*GitHubFetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid GitHub source config: %w", err)
	}
	return &GitHubFetcher{cfg: cfg}, nil
}

func (f *GitHubFetcher) Fetch(ctx context.Context, logger logging.InternalLogger) ([]core.TargetState, error) {
	logger.Info("Fetching target states from repo %s/%s (ref: %s)", f.cfg.Owner, f.cfg.Repo, f.cfg.Ref)

	appClient, err := newAppClient(f.cfg.AppID, []byte(f.cfg.PrivateKey), f.cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("app auth failed: %w", err)
	}

	gh, err := newInstallationClient(ctx, appClient, f.cfg.InstallationID)
	if err != nil {
		return nil, fmt.Errorf("installation auth failed: %w", err)
	}

	ref := f.cfg.Ref
	if ref == "" {
		ref = "main"
	}

	logger.Debug("Fetching tree for ref %s...", ref)
	tree, _, err := gh.Git.GetTree(ctx, f.cfg.Owner, f.cfg.Repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("get tree failed: %w", err)
	}

	var targetFiles []string
	for _, entry := range tree.Entries {
		path := entry.GetPath()

		if entry.GetType() != "blob" {
			continue
		}

		if f.cfg.Path != "" && !strings.HasPrefix(path, f.cfg.Path) {
			continue
		}

		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			targetFiles = append(targetFiles, path)
		}
	}
	if len(targetFiles) == 0 {
		logger.Warn("No target-state files found in %s @ %s", f.cfg.Path, ref)
		return nil, nil
	}

	// stable order: targets are independent, but deterministic processing
	// makes failures reproducible
	slices.Sort(targetFiles)

	var targets []core.TargetState
	for i, path := range targetFiles {
		logger.Debug("Downloading %d/%d: %s", i+1, len(targetFiles), path)

		fileContent, _, _, err := gh.Repositories.GetContents(ctx, f.cfg.Owner, f.cfg.Repo, path, &github.RepositoryContentGetOptions{
			Ref: ref,
		})
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", path, err)
		}

		content, err := fileContent.GetContent()
		if err != nil {
			return nil, fmt.Errorf("decode content %s: %w", path, err)
		}

		target, err := config.ParseTarget([]byte(content))
		if err != nil {
			logger.Error("Invalid target state in %s: %v", path, err)
			return nil, fmt.Errorf("invalid target state %s: %w", path, err)
		}

		targets = append(targets, target)
		logger.Debug("Loaded %s (database %s)", path, target.DatabaseName)
	}

	logger.Info("Fetch complete. Total target states loaded: %d", len(targets))
	return targets, nil
}
