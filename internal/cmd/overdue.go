package cmd

import (
	"github.com/spf13/cobra"

	"ghsync/pkg/github"
)

var (
	overdueRepo   string
	overdueLabel  string
	overdueDryRun bool
)

var overdueCmd = &cobra.Command{
	Use:   "overdue",
	Short: "Label the open issues of past-due milestones",
	Long: `Add a label to every open issue whose milestone is past its due date.

The label must already exist in the repository. When it doesn't, nothing is
changed.

Examples:
  ghsync overdue --repo octo/app
  ghsync overdue --repo octo/app --label late --dry-run`,
	Args: cobra.NoArgs,
	RunE: runOverdue,
}

func init() {
	overdueCmd.Flags().StringVar(&overdueRepo, "repo", "", "Repository (owner/repo)")
	overdueCmd.Flags().StringVar(&overdueLabel, "label", github.DefaultOverdueLabel, "Label to add to overdue issues")
	overdueCmd.Flags().BoolVar(&overdueDryRun, "dry-run", false, "Show the issues without labeling them")
}

func runOverdue(cmd *cobra.Command, _ []string) error {
	var errs github.ValidationErrors
	requireRepository(&errs, "repo", overdueRepo)
	if errs.HasErrors() {
		return errs
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	label := overdueLabel
	if !cmd.Flags().Changed("label") {
		label = s.cfg.Sync.OverdueLabel
	}

	ctx := cmd.Context()
	labeler := github.NewOverdueLabeler(s.client, s.logger)

	plan, err := labeler.Plan(ctx, overdueRepo, label)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	displayOverduePlan(out, plan, overdueDryRun)
	if overdueDryRun || plan.LabelMissing {
		return nil
	}

	s.finish(out, labeler.Apply(ctx, plan))
	return nil
}
