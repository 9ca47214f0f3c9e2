package cmd

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/snowbind/snowbind/internal/converge"
	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/pkg/session"
)

var provisionFactory = NewFactory()

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Converge the platform onto a target state",
	Long: `Provisions the role, database, schemas, grants and federated service
user a target state describes. Safe to re-run: satisfied steps are skipped,
and an interrupted run resumes from where it stopped.

Federation drift (an existing service user bound to a different cloud
principal) stops the run and exits with code 2; pass --allow-rebind to
replace the recorded binding deliberately.`,
	Example: `  # Provision a single target
  snowbind provision -f target.yaml

  # Provision everything in the configured GitHub target source
  snowbind provision

  # Operator-approved rebind after drift
  snowbind provision -f target.yaml --allow-rebind`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := provisionFactory.LoadConfig()
		if err != nil {
			return err
		}

		store, closeStore, err := provisionFactory.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				log.Warn().Err(err).Msg("closing control-plane connection")
			}
		}()

		auditor, err := provisionFactory.Auditor(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := auditor.Close(); err != nil {
				log.Warn().Err(err).Msg("closing auditor")
			}
		}()

		// the run-scoped loggers downstream resolve via log.Ctx, so the
		// command context must carry the configured logger
		ctx := log.Logger.WithContext(cmd.Context())

		targets, err := provisionFactory.Targets(ctx, cfg)
		if err != nil {
			return err
		}

		runner := provisionFactory.Runner(store, auditor)

		// independent targets share no local state; run them in parallel
		// and let the control plane arbitrate
		results := make([]*converge.Result, len(targets))
		var wg sync.WaitGroup
		for i, target := range targets {
			wg.Add(1)
			go func(i int, target core.TargetState) {
				defer wg.Done()
				results[i] = runner.Run(ctx, target)
			}(i, target)
		}
		wg.Wait()

		worst := core.StateConverged
		for _, res := range results {
			printResult(cfg.Connection.Account, res)
			switch {
			case res.State == core.StateDrifted:
				worst = core.StateDrifted
			case res.State == core.StateFailed && worst != core.StateDrifted:
				worst = core.StateFailed
			}
		}

		if worst != core.StateConverged {
			return terminalStateError{State: worst}
		}
		return nil
	},
}

func printResult(account string, res *converge.Result) {
	fmt.Fprintf(os.Stdout, "%s  %s\n", stateBadge(res.State), res.Explanation)

	if res.State != core.StateConverged {
		return
	}

	// the runtime's contract: everything it needs to open a federated
	// session to what was just provisioned
	contract := session.EnvContract(
		account,
		res.Outputs.ServiceUser,
		res.Outputs.Role,
		res.Outputs.Warehouse,
		res.Outputs.Database,
	)
	keys := make([]string, 0, len(contract))
	for k := range contract {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stdout, "  %s=%s\n", k, contract[k])
	}
}

func stateBadge(state core.RunState) string {
	switch state {
	case core.StateConverged:
		return color.GreenString("%s", state)
	case core.StateDrifted:
		return color.YellowString("%s", state)
	default:
		return color.RedString("%s", state)
	}
}

func init() {
	rootCmd.AddCommand(provisionCmd)

	provisionFactory.bindTargetFlag(provisionCmd.Flags())
	provisionCmd.Flags().BoolVar(&provisionFactory.AllowRebind, "allow-rebind", false,
		"Replace a drifted federation binding (security-sensitive, requires operator intent)")
}
