package github

import (
	"context"
	"fmt"
	"log/slog"
)

// LabelReconciler converges the labels of one repository toward another
type LabelReconciler struct {
	client APIClient
	logger *slog.Logger
}

// NewLabelReconciler creates a new label reconciler
func NewLabelReconciler(client APIClient, logger *slog.Logger) *LabelReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelReconciler{
		client: client,
		logger: logger,
	}
}

// Plan fetches the labels of both repositories and diffs them
func (r *LabelReconciler) Plan(ctx context.Context, from, to string) (*LabelPlan, error) {
	r.logger.Info(fmt.Sprintf("Synchronizing labels from %s to %s", from, to))

	source, err := Collect(r.client.ListLabels(ctx, from), LabelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels of %s: %w", from, err)
	}

	dest, err := Collect(r.client.ListLabels(ctx, to), LabelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels of %s: %w", to, err)
	}

	return &LabelPlan{
		From:    from,
		To:      to,
		Changes: DiffLabels(source, dest),
	}, nil
}

// DiffLabels computes the creates, updates and deletes that converge dest toward
// source. Labels are matched by case-insensitive name; an update is planned when
// the exact name, the color or the description differ.
func DiffLabels(source, dest *Collection[Label]) []LabelChange {
	var changes []LabelChange

	for _, label := range source.Values() {
		if !dest.Has(label.Name) {
			after := label
			changes = append(changes, LabelChange{Type: ChangeTypeCreate, After: &after})
		}
	}

	for _, current := range dest.Values() {
		desired, ok := source.Get(current.Name)
		if !ok || labelsEqual(current, desired) {
			continue
		}
		before, after := current, desired
		changes = append(changes, LabelChange{Type: ChangeTypeUpdate, Before: &before, After: &after})
	}

	for _, current := range dest.Values() {
		if !source.Has(current.Name) {
			before := current
			changes = append(changes, LabelChange{Type: ChangeTypeDelete, Before: &before})
		}
	}

	return changes
}

func labelsEqual(a, b Label) bool {
	return a.Name == b.Name &&
		a.Color == b.Color &&
		stringPtrEqual(a.Description, b.Description)
}

// Apply executes the plan against the destination. A failed write is recorded
// and the remaining changes are still attempted.
func (r *LabelReconciler) Apply(ctx context.Context, plan *LabelPlan, mode DeleteMode) *ApplyResult {
	result := newApplyResult()

	for _, change := range plan.Changes {
		switch change.Type {
		case ChangeTypeCreate:
			op := fmt.Sprintf("create label %s", change.After.Name)
			r.logger.Info("Add " + change.After.Name)
			r.record(result, op, r.client.CreateLabel(ctx, plan.To, *change.After))

		case ChangeTypeUpdate:
			op := fmt.Sprintf("update label %s", change.Before.Name)
			r.logger.Info("Update " + change.Before.Name)
			r.record(result, op, r.client.UpdateLabel(ctx, plan.To, change.Before.Name, *change.After))

		case ChangeTypeDelete:
			r.applyDelete(ctx, plan.To, *change.Before, mode, result)
		}
	}

	return result
}

func (r *LabelReconciler) applyDelete(ctx context.Context, repo string, label Label, mode DeleteMode, result *ApplyResult) {
	op := fmt.Sprintf("delete label %s", label.Name)

	switch mode {
	case DeleteModeForce:
	case DeleteModePrune:
		inUse, err := r.labelInUse(ctx, repo, label.Name)
		if err != nil {
			r.logger.Error("Could not check label usage", "label", label.Name, "error", err)
			result.Failed[op] = err
			return
		}
		if inUse {
			r.logger.Warn(fmt.Sprintf("The %q label is in use and won't be deleted", label.Name))
			result.Skipped = append(result.Skipped, op)
			return
		}
	default:
		r.logger.Info("Not deleting " + label.Name)
		result.Skipped = append(result.Skipped, op)
		return
	}

	r.logger.Info("Delete " + label.Name)
	r.record(result, op, r.client.DeleteLabel(ctx, repo, label.Name))
}

// labelInUse reports whether any open issue carries the label. Only the first
// issue is ever requested.
func (r *LabelReconciler) labelInUse(ctx context.Context, repo, name string) (bool, error) {
	it := r.client.ListIssues(ctx, repo, IssueFilter{Labels: []string{name}, State: IssueStateOpen, PerPage: 1})
	if it.Next() {
		return true, nil
	}
	return false, it.Err()
}

func (r *LabelReconciler) record(result *ApplyResult, op string, err error) {
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		result.Failed[op] = err
		return
	}
	result.Succeeded = append(result.Succeeded, op)
}
