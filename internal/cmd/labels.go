package cmd

import (
	"github.com/spf13/cobra"

	"ghsync/pkg/github"
)

var (
	labelsFrom   string
	labelsTo     string
	labelsDelete string
	labelsDryRun bool
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Copy labels from one repository to another",
	Long: `Create and update the labels of the destination repository so they match
the source repository. Label names are compared case-insensitively and the
destination takes the source's exact spelling.

Labels that only exist in the destination are kept unless --delete is given:

  --delete         delete them (same as --delete=force)
  --delete=prune   delete them unless an open issue uses them

Examples:
  ghsync labels --from octo/template --to octo/app
  ghsync labels --from octo/template --to octo/app --delete=prune --dry-run`,
	Args: cobra.NoArgs,
	RunE: runLabels,
}

func init() {
	labelsCmd.Flags().StringVar(&labelsFrom, "from", "", "Source repository (owner/repo)")
	labelsCmd.Flags().StringVar(&labelsTo, "to", "", "Destination repository (owner/repo)")
	labelsCmd.Flags().StringVar(&labelsDelete, "delete", "off", "Delete destination labels missing from the source: off, force or prune")
	labelsCmd.Flags().Lookup("delete").NoOptDefVal = string(github.DeleteModeForce)
	labelsCmd.Flags().BoolVar(&labelsDryRun, "dry-run", false, "Show the planned changes without applying them")
}

func runLabels(cmd *cobra.Command, _ []string) error {
	if err := validateFromTo(labelsFrom, labelsTo); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	deleteValue := labelsDelete
	if !cmd.Flags().Changed("delete") {
		deleteValue = s.cfg.Sync.DeleteMode
	}
	mode, err := github.ParseDeleteMode(deleteValue)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reconciler := github.NewLabelReconciler(s.client, s.logger)

	plan, err := reconciler.Plan(ctx, labelsFrom, labelsTo)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	displayLabelPlan(out, plan, mode, labelsDryRun)
	if labelsDryRun {
		return nil
	}

	s.finish(out, reconciler.Apply(ctx, plan, mode))
	return nil
}

// validateFromTo checks the --from and --to repositories together
func validateFromTo(from, to string) error {
	var errs github.ValidationErrors
	requireRepository(&errs, "from", from)
	requireRepository(&errs, "to", to)
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func requireRepository(errs *github.ValidationErrors, flag, value string) {
	if value == "" {
		errs.Add(flag, "", "--"+flag+" is required")
		return
	}
	if err := github.ValidateRepository(value); err != nil {
		errs.Add(flag, value, "repository must be in the form owner/repo")
	}
}
