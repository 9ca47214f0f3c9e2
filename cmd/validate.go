package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snowbind/snowbind/internal/config"
)

var validateTargetPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a target-state artifact without touching the platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := config.LoadTarget(validateTargetPath)
		if err != nil {
			log.Error().Err(err).Msg("Target state is invalid.")
			return err
		}
		log.Info().
			Str("role", target.RoleName).
			Str("database", target.DatabaseName).
			Str("user", target.ServiceUserName).
			Str("provider", string(target.FederatedIdentity.Provider)).
			Msg("Target state is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateTargetPath, "target", "f", "", "Target-state artifact (YAML)")
	_ = validateCmd.MarkFlagRequired("target")
}
