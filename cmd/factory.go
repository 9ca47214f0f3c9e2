package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	// the platform control plane speaks SQL; register its driver
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/snowbind/snowbind/internal/audit"
	"github.com/snowbind/snowbind/internal/config"
	"github.com/snowbind/snowbind/internal/converge"
	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
	"github.com/snowbind/snowbind/internal/logging"
	"github.com/snowbind/snowbind/internal/platform"
	"github.com/snowbind/snowbind/internal/source"
	"github.com/snowbind/snowbind/internal/verify"
	"github.com/snowbind/snowbind/pkg/session"
)

const (
	VerifyAttemptsKey  = "verify.attempts"
	VerifyBaseDelayKey = "verify.base_delay"
)

// Factory wires the provisioning components from the tool configuration.
type Factory struct {
	// TargetPath is the local target-state artifact, when provided via -f.
	TargetPath string

	// AllowRebind is the explicit operator override for federation drift.
	AllowRebind bool
}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) bindTargetFlag(flags *pflag.FlagSet) {
	flags.StringVarP(&f.TargetPath, "target", "f", "", "Target-state artifact (YAML)")
}

// LoadConfig loads the tool configuration named by --config (or the default
// search path).
func (f *Factory) LoadConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if userConfig != "" {
		path = userConfig
	}
	if path == "" {
		return nil, fmt.Errorf("tool configuration not found (use --config or place .snowbind.yaml in the search path)")
	}
	return config.Load(path)
}

// OpenStore connects to the platform control plane and returns the Object
// Store adapter plus a close func.
func (f *Factory) OpenStore(cfg *config.Config) (*platform.SQLStore, func() error, error) {
	opts, err := cfg.Connection.DecodeOptions()
	if err != nil {
		return nil, nil, err
	}

	dsn := cfg.Connection.DSN
	if dsn == "" {
		dsn = session.Params{
			Account:        cfg.Connection.Account,
			User:           cfg.Connection.User,
			Role:           cfg.Connection.Role,
			Warehouse:      cfg.Connection.Warehouse,
			LoginTimeout:   opts.LoginTimeout,
			NetworkTimeout: opts.NetworkTimeout,
		}.DSN()
	}

	driver := cfg.Connection.Driver
	if driver == "" {
		driver = "snowflake"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening control-plane connection: %w", err)
	}
	log.Debug().Str("driver", driver).Str("account", cfg.Connection.Account).Msg("control-plane connection opened")
	return platform.NewSQLStore(db), db.Close, nil
}

// Runner assembles the convergence runner around a store.
func (f *Factory) Runner(store core.ObjectStore, auditor core.Auditor) *converge.Runner {
	binder := federation.NewBinder(store)
	if f.AllowRebind {
		binder = binder.WithRebind()
	}
	return converge.NewRunner(store, binder, f.Verifier(store), auditor)
}

// Verifier builds the verifier with the configured attempt budget.
func (f *Factory) Verifier(store core.ObjectStore) *verify.Verifier {
	cfg := verify.Config{
		Attempts:  viper.GetInt(VerifyAttemptsKey),
		BaseDelay: viper.GetDuration(VerifyBaseDelayKey),
	}
	return verify.New(store, cfg)
}

// Auditor builds the configured auditor; commands must Close it.
func (f *Factory) Auditor(cfg *config.Config) (core.Auditor, error) {
	return audit.NewFromConfig(cfg.Audit)
}

// Targets loads the target states to provision: the -f artifact when given,
// otherwise the configured target source.
func (f *Factory) Targets(ctx context.Context, cfg *config.Config) ([]core.TargetState, error) {
	var fetcher source.Fetcher
	switch {
	case f.TargetPath != "":
		fetcher = &source.LocalFetcher{Path: f.TargetPath}
	case cfg != nil && cfg.Source != nil && cfg.Source.GitHub != nil:
		gh, err := source.NewGitHubFetcher(*cfg.Source.GitHub)
		if err != nil {
			return nil, err
		}
		fetcher = gh
	default:
		return nil, fmt.Errorf("no target state given (use -f or configure target_source)")
	}

	targets, err := fetcher.Fetch(ctx, logging.NewZLogger(*log.Ctx(ctx)))
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target states found")
	}
	return targets, nil
}

func init() {
	viper.SetDefault(VerifyAttemptsKey, verify.DefaultAttempts)
	viper.SetDefault(VerifyBaseDelayKey, 500*time.Millisecond)
}
