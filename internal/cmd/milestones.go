package cmd

import (
	"github.com/spf13/cobra"

	"ghsync/pkg/github"
)

var (
	milestonesFrom      string
	milestonesTo        string
	milestonesStatus    string
	milestonesAutoClose bool
	milestonesDryRun    bool
)

var milestonesCmd = &cobra.Command{
	Use:   "milestones",
	Short: "Copy milestones from one repository to another",
	Long: `Create and update the milestones of the destination repository so they
match the source repository.

A destination milestone matches a source milestone with the same title, ignoring
case. Failing that, milestones due on the same date match, unless the
destination already has a milestone with the source's title.

With --autoclose, open destination milestones without open issues are closed
once they are more than a day past due.

Examples:
  ghsync milestones --from octo/template --to octo/app
  ghsync milestones --from octo/template --to octo/app --status=all --autoclose`,
	Args: cobra.NoArgs,
	RunE: runMilestones,
}

func init() {
	milestonesCmd.Flags().StringVar(&milestonesFrom, "from", "", "Source repository (owner/repo)")
	milestonesCmd.Flags().StringVar(&milestonesTo, "to", "", "Destination repository (owner/repo)")
	milestonesCmd.Flags().StringVar(&milestonesStatus, "status", github.MilestoneStateOpen, "Source milestones to copy: open, closed or all")
	milestonesCmd.Flags().BoolVar(&milestonesAutoClose, "autoclose", false, "Close past-due destination milestones without open issues")
	milestonesCmd.Flags().BoolVar(&milestonesDryRun, "dry-run", false, "Show the planned changes without applying them")
}

func runMilestones(cmd *cobra.Command, _ []string) error {
	if err := validateFromTo(milestonesFrom, milestonesTo); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	opts := github.MilestoneOptions{State: milestonesStatus, AutoClose: milestonesAutoClose}
	if !cmd.Flags().Changed("status") && s.cfg.Sync.MilestoneState != "" {
		opts.State = s.cfg.Sync.MilestoneState
	}
	if !cmd.Flags().Changed("autoclose") {
		opts.AutoClose = s.cfg.Sync.AutoClose
	}

	ctx := cmd.Context()
	reconciler := github.NewMilestoneReconciler(s.client, s.logger)

	plan, err := reconciler.Plan(ctx, milestonesFrom, milestonesTo, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	displayMilestonePlan(out, plan, milestonesDryRun)
	if milestonesDryRun {
		return nil
	}

	result, err := reconciler.Apply(ctx, plan)
	if err != nil {
		return err
	}
	s.finish(out, result)
	return nil
}
