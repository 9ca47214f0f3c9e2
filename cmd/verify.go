package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snowbind/snowbind/internal/core"
)

var verifyFactory = NewFactory()

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-check a target state against the platform without changing anything",
	Long: `Runs the independent post-convergence verification on its own: the
service identity exists with the expected kind, its federation binding
resolves to the target cloud principal, and the role is attached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := verifyFactory.LoadConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := verifyFactory.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				log.Warn().Err(err).Msg("closing control-plane connection")
			}
		}()

		ctx := log.Logger.WithContext(cmd.Context())

		targets, err := verifyFactory.Targets(ctx, cfg)
		if err != nil {
			return err
		}

		verifier := verifyFactory.Verifier(store)
		allPassed := true
		for _, target := range targets {
			result := verifier.Verify(ctx, target)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetTitle("verification of user %s", target.ServiceUserName)
			t.AppendHeader(table.Row{"Check", "Result"})
			t.AppendRows([]table.Row{
				{"identity exists", checkBadge(result.IdentityExists)},
				{"binding resolved", checkBadge(result.BindingResolved)},
				{"role attached", checkBadge(result.RoleAttached)},
			})
			for _, detail := range result.Details {
				t.AppendFooter(table.Row{"", detail})
			}
			t.Render()

			if !result.Passed() {
				allPassed = false
			}
		}

		if !allPassed {
			return terminalStateError{State: core.StateFailed}
		}
		return nil
	},
}

func checkBadge(ok bool) string {
	if ok {
		return color.GreenString("pass")
	}
	return color.RedString("fail")
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyFactory.bindTargetFlag(verifyCmd.Flags())
}
