package cmd

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snowbind/snowbind/internal/converge"
)

var planFactory = NewFactory()

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the operations a provision run would execute",
	Long: `Reads current platform state and prints the convergence plan without
executing anything. An empty plan means the platform already satisfies the
target state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := planFactory.LoadConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := planFactory.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				log.Warn().Err(err).Msg("closing control-plane connection")
			}
		}()

		ctx := log.Logger.WithContext(cmd.Context())

		targets, err := planFactory.Targets(ctx, cfg)
		if err != nil {
			return err
		}

		for _, target := range targets {
			plan, err := converge.BuildPlan(ctx, store, target)
			if err != nil {
				return err
			}

			if plan.Empty() {
				log.Info().Str("database", target.DatabaseName).Msg("no changes, platform already satisfies the target state")
				continue
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetTitle("plan for database %s", target.DatabaseName)
			t.AppendHeader(table.Row{"#", "Operation", "Detail"})
			for i, op := range plan.Ops {
				t.AppendRow(table.Row{i + 1, op.Kind, op.Describe()})
			}
			t.Render()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planFactory.bindTargetFlag(planCmd.Flags())
}
