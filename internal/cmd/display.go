package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"ghsync/pkg/github"
)

// displayLabelPlan shows the planned label changes in a human-readable format
func displayLabelPlan(w io.Writer, plan *github.LabelPlan, mode github.DeleteMode, isDryRun bool) {
	displayHeader(w, "label", plan.From, plan.To, isDryRun)

	changeCount := 0
	destructiveChanges := 0

	for _, change := range plan.Changes {
		switch change.Type {
		case github.ChangeTypeCreate:
			changeCount++
			fmt.Fprintf(w, "  + Label: CREATE %s (#%s)\n", change.After.Name, change.After.Color)
			if change.After.Description != nil && *change.After.Description != "" {
				fmt.Fprintf(w, "    - Description: %s\n", *change.After.Description)
			}
		case github.ChangeTypeUpdate:
			changeCount++
			fmt.Fprintf(w, "  ~ Label: UPDATE %s\n", change.Before.Name)
			displayLabelChanges(w, change.Before, change.After, "    ")
		case github.ChangeTypeDelete:
			switch mode {
			case github.DeleteModeForce:
				changeCount++
				destructiveChanges++
				fmt.Fprintf(w, "  ⚠️  Label: DELETE %s\n", change.Before.Name)
			case github.DeleteModePrune:
				changeCount++
				destructiveChanges++
				fmt.Fprintf(w, "  ⚠️  Label: DELETE %s (unless in use)\n", change.Before.Name)
			default:
				fmt.Fprintf(w, "  = Label: KEEP %s (not in source, use --delete to remove)\n", change.Before.Name)
			}
		}
	}

	displayTotals(w, changeCount, destructiveChanges, isDryRun, "labels are up to date")
}

func displayLabelChanges(w io.Writer, before, after *github.Label, indent string) {
	if before.Name != after.Name {
		fmt.Fprintf(w, "%s~ Name: %q → %q\n", indent, before.Name, after.Name)
	}
	if before.Color != after.Color {
		fmt.Fprintf(w, "%s~ Color: %s → %s\n", indent, before.Color, after.Color)
	}
	if github.StringValue(before.Description) != github.StringValue(after.Description) {
		fmt.Fprintf(w, "%s~ Description: %q → %q\n", indent, github.StringValue(before.Description), github.StringValue(after.Description))
	}
}

// displayMilestonePlan shows the planned milestone changes in a human-readable format
func displayMilestonePlan(w io.Writer, plan *github.MilestonePlan, isDryRun bool) {
	displayHeader(w, "milestone", plan.From, plan.To, isDryRun)

	changeCount := len(plan.Changes)
	for _, change := range plan.Changes {
		switch change.Type {
		case github.ChangeTypeCreate:
			fmt.Fprintf(w, "  + Milestone: CREATE %s (due %s)\n", change.After.Title, github.FormatDueOn(change.After.DueOn))
		case github.ChangeTypeUpdate:
			fmt.Fprintf(w, "  ~ Milestone: UPDATE %s\n", change.Before.Title)
			if change.Before.Title != change.After.Title {
				fmt.Fprintf(w, "    ~ Title: %q → %q\n", change.Before.Title, change.After.Title)
			}
			if github.StringValue(change.Before.Description) != github.StringValue(change.After.Description) {
				fmt.Fprintf(w, "    ~ Description: %q → %q\n",
					github.StringValue(change.Before.Description), github.StringValue(change.After.Description))
			}
			if before, after := github.FormatDueOn(change.Before.DueOn), github.FormatDueOn(change.After.DueOn); before != after {
				fmt.Fprintf(w, "    ~ Due: %s → %s\n", before, after)
			}
		case github.ChangeTypeClose:
			fmt.Fprintf(w, "  - Milestone: CLOSE %s (due %s, no open issues)\n", change.Before.Title, github.FormatDueOn(change.Before.DueOn))
		}
	}

	displayTotals(w, changeCount, 0, isDryRun, "milestones are up to date")
}

// displayOverduePlan lists the issues that will be labeled
func displayOverduePlan(w io.Writer, plan *github.OverduePlan, isDryRun bool) {
	if isDryRun {
		fmt.Fprintf(w, "\n🔍 Dry-run mode: Showing overdue issues of %s\n", plan.Repository)
	} else {
		fmt.Fprintf(w, "\n📋 Overdue issues of %s:\n", plan.Repository)
	}

	if plan.LabelMissing {
		fmt.Fprintf(w, "  ⚠️  Label %q does not exist in %s, nothing to do\n", plan.Label, plan.Repository)
		return
	}

	for _, issue := range plan.Issues {
		fmt.Fprintf(w, "  + #%d %s (milestone %s): add %q\n", issue.Number, issue.Title, issue.Milestone, plan.Label)
	}

	displayTotals(w, len(plan.Issues), 0, isDryRun, "no overdue issues without the "+plan.Label+" label")
}

func displayHeader(w io.Writer, kind, from, to string, isDryRun bool) {
	if isDryRun {
		fmt.Fprintf(w, "\n🔍 Dry-run mode: Showing planned %s changes for %s → %s\n", kind, from, to)
	} else {
		fmt.Fprintf(w, "\n📋 Planned %s changes for %s → %s:\n", kind, from, to)
	}
}

func displayTotals(w io.Writer, changeCount, destructiveChanges int, isDryRun bool, upToDate string) {
	if changeCount == 0 {
		fmt.Fprintf(w, "  No changes needed - %s\n", upToDate)
		return
	}

	fmt.Fprintf(w, "\nTotal changes: %d", changeCount)
	if destructiveChanges == 0 {
		fmt.Fprintf(w, "\n")
		return
	}

	fmt.Fprintf(w, " (%d potentially destructive)\n", destructiveChanges)
	if isDryRun {
		fmt.Fprintf(w, "\n⚠️  WARNING: %d potentially destructive change(s) detected!\n", destructiveChanges)
		fmt.Fprintf(w, "   Review these changes carefully before applying.\n")
	}
}

// summaryVerbs maps the first word of an operation name to its summary column
var summaryVerbs = []struct {
	verb  string
	label string
}{
	{"create", "added"},
	{"update", "updated"},
	{"delete", "deleted"},
	{"close", "closed"},
	{"label", "labeled"},
}

// displaySummary shows the counts of an applied plan and every failed operation
func displaySummary(w io.Writer, result *github.ApplyResult) {
	counts := make(map[string]int)
	for _, op := range result.Succeeded {
		verb, _, _ := strings.Cut(op, " ")
		counts[verb]++
	}

	var parts []string
	for _, v := range summaryVerbs {
		if counts[v.verb] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[v.verb], v.label))
		}
	}
	parts = append(parts,
		fmt.Sprintf("%d skipped", len(result.Skipped)),
		fmt.Sprintf("%d failed", len(result.Failed)))

	if len(result.Failed) == 0 {
		fmt.Fprintf(w, "\n✅ Successfully applied %d change(s)\n", len(result.Succeeded))
	} else {
		fmt.Fprintf(w, "\n⚠️  Applied %d change(s), %d failed\n", len(result.Succeeded), len(result.Failed))
	}
	fmt.Fprintf(w, "📊 Summary: %s\n", strings.Join(parts, ", "))

	var partial *github.PartialFailureError
	if !errors.As(result.Err(), &partial) {
		return
	}
	for _, op := range partial.GetFailedOperations() {
		fmt.Fprintf(w, "  ✗ %s: %v\n", op, partial.Failed[op])
	}
}
