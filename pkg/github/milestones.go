package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// autoCloseGrace is how long past its due date a finished milestone stays open
const autoCloseGrace = 24 * time.Hour

// MilestoneOptions controls a milestone sync
type MilestoneOptions struct {
	// State filters the source milestones: open, closed or all
	State string

	// AutoClose closes open destination milestones that are overdue and have no open issues
	AutoClose bool
}

// MilestoneReconciler converges the milestones of one repository toward another
type MilestoneReconciler struct {
	client APIClient
	logger *slog.Logger
	now    func() time.Time
}

// NewMilestoneReconciler creates a new milestone reconciler
func NewMilestoneReconciler(client APIClient, logger *slog.Logger) *MilestoneReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MilestoneReconciler{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Plan fetches the source milestones in the requested state and every destination
// milestone, then diffs them.
func (r *MilestoneReconciler) Plan(ctx context.Context, from, to string, opts MilestoneOptions) (*MilestonePlan, error) {
	state := opts.State
	if state == "" {
		state = MilestoneStateOpen
	}
	if err := ValidateMilestoneState(state); err != nil {
		return nil, err
	}

	r.logger.Info(fmt.Sprintf("Synchronizing milestones from %s to %s", from, to))

	source, err := Collect(r.client.ListMilestones(ctx, from, state), MilestoneKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones of %s: %w", from, err)
	}

	dest, err := Collect(r.client.ListMilestones(ctx, to, MilestoneStateAll), MilestoneKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones of %s: %w", to, err)
	}

	changes, err := DiffMilestones(source, dest)
	if err != nil {
		return nil, err
	}

	if opts.AutoClose {
		changes = append(changes, closableMilestones(dest, r.now())...)
	}

	return &MilestonePlan{
		From:    from,
		To:      to,
		Changes: changes,
	}, nil
}

// MilestonesMatch reports whether a source and a destination milestone are the
// same milestone. Titles are compared case-insensitively first. Failing that,
// two milestones due at the same time match, unless destAll already holds a
// milestone titled like the source one, in which case that milestone wins.
func MilestonesMatch(source, dest Milestone, destAll *Collection[Milestone]) bool {
	if strings.EqualFold(source.Title, dest.Title) {
		return true
	}
	if source.DueOn == nil || dest.DueOn == nil {
		return false
	}
	return source.DueOn.Equal(*dest.DueOn) && !destAll.Has(source.Title)
}

// DiffMilestones computes the creates and updates that converge dest toward source.
// Milestones are never deleted.
func DiffMilestones(source, dest *Collection[Milestone]) ([]MilestoneChange, error) {
	var changes []MilestoneChange

	sourceMatch := func(s, d Milestone) bool { return MilestonesMatch(s, d, dest) }
	destMatch := func(d, s Milestone) bool { return MilestonesMatch(s, d, dest) }

	for _, milestone := range Difference(source.Values(), dest.Values(), sourceMatch) {
		after := milestone
		changes = append(changes, MilestoneChange{Type: ChangeTypeCreate, After: &after})
	}

	for _, current := range Intersection(dest.Values(), source.Values(), destMatch) {
		desired, ok := findSourceMilestone(current, source, dest)
		if !ok {
			return nil, fmt.Errorf("%w: no source milestone for %q", ErrInconsistentPlan, current.Title)
		}
		if milestonesEqual(current, desired) {
			continue
		}
		before, after := current, desired
		changes = append(changes, MilestoneChange{Type: ChangeTypeUpdate, Before: &before, After: &after})
	}

	return changes, nil
}

// findSourceMilestone finds the source milestone a destination milestone matched,
// by title first and then by scanning for a due date match.
func findSourceMilestone(current Milestone, source, dest *Collection[Milestone]) (Milestone, bool) {
	if milestone, ok := source.Get(current.Title); ok {
		return milestone, true
	}
	for _, milestone := range source.Values() {
		if MilestonesMatch(milestone, current, dest) {
			return milestone, true
		}
	}
	return Milestone{}, false
}

func milestonesEqual(a, b Milestone) bool {
	return a.Title == b.Title &&
		stringPtrEqual(a.Description, b.Description) &&
		timePtrEqual(a.DueOn, b.DueOn)
}

// closableMilestones returns close changes for open milestones without open issues
// whose due date passed at least a full day ago.
func closableMilestones(dest *Collection[Milestone], now time.Time) []MilestoneChange {
	var changes []MilestoneChange
	for _, milestone := range dest.Values() {
		if !milestone.IsOpen() || milestone.OpenIssues > 0 || milestone.DueOn == nil {
			continue
		}
		if now.Sub(*milestone.DueOn) < autoCloseGrace {
			continue
		}
		before := milestone
		changes = append(changes, MilestoneChange{Type: ChangeTypeClose, Before: &before})
	}
	return changes
}

// Apply executes the plan against the destination. Failed writes are recorded and
// the remaining changes are still attempted. An update without a source milestone
// aborts the run.
func (r *MilestoneReconciler) Apply(ctx context.Context, plan *MilestonePlan) (*ApplyResult, error) {
	result := newApplyResult()

	for _, change := range plan.Changes {
		switch change.Type {
		case ChangeTypeCreate:
			op := fmt.Sprintf("create milestone %s", change.After.Title)
			r.logger.Info("Add " + change.After.Title)
			r.record(result, op, r.client.CreateMilestone(ctx, plan.To, *change.After))

		case ChangeTypeUpdate:
			if change.Before == nil || change.After == nil {
				return result, fmt.Errorf("%w: update without source milestone", ErrInconsistentPlan)
			}
			op := fmt.Sprintf("update milestone %s", change.Before.Title)
			r.logger.Info("Update " + change.Before.Title)
			r.record(result, op, r.client.UpdateMilestone(ctx, plan.To, change.Before.Number, *change.After))

		case ChangeTypeClose:
			op := fmt.Sprintf("close milestone %s", change.Before.Title)
			r.logger.Info("Close " + change.Before.Title)
			r.record(result, op, r.client.CloseMilestone(ctx, plan.To, change.Before.Number))
		}
	}

	return result, nil
}

func (r *MilestoneReconciler) record(result *ApplyResult, op string, err error) {
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		result.Failed[op] = err
		return
	}
	result.Succeeded = append(result.Succeeded, op)
}
