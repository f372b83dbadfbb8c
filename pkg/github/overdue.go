package github

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// DefaultOverdueLabel is the label applied when none is configured
const DefaultOverdueLabel = "Overdue"

// OverdueLabeler tags the open issues of past-due milestones
type OverdueLabeler struct {
	client APIClient
	logger *slog.Logger
	now    func() time.Time
}

// NewOverdueLabeler creates a new overdue labeler
func NewOverdueLabeler(client APIClient, logger *slog.Logger) *OverdueLabeler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueLabeler{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Plan finds the issues of overdue open milestones that lack the label. A label
// the repository does not have yields an empty plan with LabelMissing set.
func (o *OverdueLabeler) Plan(ctx context.Context, repo, label string) (*OverduePlan, error) {
	if label == "" {
		label = DefaultOverdueLabel
	}
	plan := &OverduePlan{Repository: repo, Label: label}

	o.logger.Info(fmt.Sprintf("Marking issues overdue on %s", repo))

	if _, err := o.client.GetLabel(ctx, repo, label); err != nil {
		if !IsRemoteError(err) {
			return nil, err
		}
		o.logger.Error("Could not find label: "+label, "status", StatusCode(err))
		plan.LabelMissing = true
		return plan, nil
	}

	now := o.now()
	milestones := o.client.ListMilestones(ctx, repo, MilestoneStateOpen)
	for milestones.Next() {
		milestone := milestones.Value()
		if milestone.DueOn == nil || !milestone.DueOn.Before(now) || milestone.OpenIssues <= 0 {
			continue
		}

		issues, err := o.milestoneIssues(ctx, repo, milestone, label)
		plan.Issues = append(plan.Issues, issues...)
		if err != nil {
			o.logger.Error("Could not list issues of milestone "+milestone.Title, "error", err, "fetched", len(issues))
		}
	}
	if err := milestones.Err(); err != nil {
		return nil, fmt.Errorf("failed to list milestones of %s: %w", repo, err)
	}

	return plan, nil
}

// milestoneIssues returns the open issues of a milestone that lack the label. On a
// listing error the issues of the pages already read are returned with it.
func (o *OverdueLabeler) milestoneIssues(ctx context.Context, repo string, milestone Milestone, label string) ([]OverdueIssue, error) {
	var issues []OverdueIssue

	it := o.client.ListIssues(ctx, repo, IssueFilter{Milestone: strconv.Itoa(milestone.Number), State: IssueStateOpen})
	for it.Next() {
		issue := it.Value()
		if issue.HasLabel(label) {
			continue
		}
		issues = append(issues, OverdueIssue{
			Milestone: milestone.Title,
			Number:    issue.Number,
			Title:     issue.Title,
		})
	}
	return issues, it.Err()
}

// Apply attaches the label to every planned issue. Failures are recorded and the
// remaining issues are still labeled.
func (o *OverdueLabeler) Apply(ctx context.Context, plan *OverduePlan) *ApplyResult {
	result := newApplyResult()

	for _, issue := range plan.Issues {
		op := fmt.Sprintf("label issue #%d", issue.Number)
		if err := o.client.AddLabelsToIssue(ctx, plan.Repository, issue.Number, []string{plan.Label}); err != nil {
			o.logger.Error("Failed to "+op, "error", err)
			result.Failed[op] = err
			continue
		}
		o.logger.Info(fmt.Sprintf("#%d %s: %s", issue.Number, issue.Title, plan.Label))
		result.Succeeded = append(result.Succeeded, op)
	}

	return result
}
