package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/snowbind/snowbind/internal/buildinfo"
	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/logging"
)

// exit codes for automation: drift is distinct from ordinary failure so
// alerting can treat it as a security signal, not a flaky run
const (
	ExitConverged = 0
	ExitFailed    = 1
	ExitDrifted   = 2
)

var userConfig string

var rootCmd = &cobra.Command{
	Use:   "snowbind",
	Short: fmt.Sprintf("snowbind provisioner (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `snowbind provisions a service identity on a data platform using
cloud workload-identity federation: no static secret is ever created.
It converges a declarative target state (role, database, schemas, grants,
federated service user) idempotently and verifies the result independently.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init()
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

// terminalStateError carries a run's terminal state up to Execute so the
// process exit code can be derived from it.
type terminalStateError struct {
	State core.RunState
}

func (e terminalStateError) Error() string {
	return "run ended " + string(e.State)
}

func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var terminal terminalStateError
	if errors.As(err, &terminal) {
		switch terminal.State {
		case core.StateDrifted:
			os.Exit(ExitDrifted)
		default:
			os.Exit(ExitFailed)
		}
	}

	log.Error().Err(err).Msg("execution failed")
	os.Exit(ExitFailed)
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&userConfig, "config", "",
		"Tool configuration file (default is $HOME/.snowbind.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(logging.LevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(logging.FormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(logging.NoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	viper.SetEnvPrefix("SNOWBIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		configDir, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(configDir + "/snowbind")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".snowbind")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
