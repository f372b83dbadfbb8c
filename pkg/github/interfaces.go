package github

import "context"

// Iterator is a single-pass sequence of records. Next advances to the next record and
// reports whether one is available; Err reports the error that ended iteration, if any.
type Iterator[T any] interface {
	Next() bool
	Value() T
	Err() error
}

// APIClient defines the interface for GitHub API operations
type APIClient interface {
	// Listing operations
	ListLabels(ctx context.Context, repo string) Iterator[Label]
	ListMilestones(ctx context.Context, repo, state string) Iterator[Milestone]
	ListIssues(ctx context.Context, repo string, filter IssueFilter) Iterator[Issue]

	// Label operations
	GetLabel(ctx context.Context, repo, name string) (*Label, error)
	CreateLabel(ctx context.Context, repo string, label Label) error
	UpdateLabel(ctx context.Context, repo, currentName string, label Label) error
	DeleteLabel(ctx context.Context, repo, name string) error

	// Milestone operations
	CreateMilestone(ctx context.Context, repo string, milestone Milestone) error
	UpdateMilestone(ctx context.Context, repo string, number int, milestone Milestone) error
	CloseMilestone(ctx context.Context, repo string, number int) error

	// Issue operations
	AddLabelsToIssue(ctx context.Context, repo string, number int, labels []string) error
}

// ChangeType represents the type of change in a reconciliation plan
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "create"
	ChangeTypeUpdate ChangeType = "update"
	ChangeTypeDelete ChangeType = "delete"
	ChangeTypeClose  ChangeType = "close"
)

// LabelPlan represents the label changes needed to converge To toward From
type LabelPlan struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Changes []LabelChange `json:"changes,omitempty"`
}

// LabelChange represents a change to a single destination label
type LabelChange struct {
	Type   ChangeType `json:"type"`
	Before *Label     `json:"before,omitempty"`
	After  *Label     `json:"after,omitempty"`
}

// MilestonePlan represents the milestone changes needed to converge To toward From
type MilestonePlan struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Changes []MilestoneChange `json:"changes,omitempty"`
}

// MilestoneChange represents a change to a single destination milestone
type MilestoneChange struct {
	Type   ChangeType `json:"type"`
	Before *Milestone `json:"before,omitempty"`
	After  *Milestone `json:"after,omitempty"`
}

// OverduePlan lists the issues that will receive the overdue label
type OverduePlan struct {
	Repository   string         `json:"repository"`
	Label        string         `json:"label"`
	LabelMissing bool           `json:"label_missing,omitempty"`
	Issues       []OverdueIssue `json:"issues,omitempty"`
}

// OverdueIssue is an open issue of a past-due milestone that lacks the overdue label
type OverdueIssue struct {
	Milestone string `json:"milestone"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
}

// ApplyResult summarizes the outcome of applying a plan
type ApplyResult struct {
	Succeeded []string         `json:"succeeded"`
	Skipped   []string         `json:"skipped"`
	Failed    map[string]error `json:"failed"`
}

func newApplyResult() *ApplyResult {
	return &ApplyResult{
		Succeeded: make([]string, 0),
		Skipped:   make([]string, 0),
		Failed:    make(map[string]error),
	}
}

// Err returns a PartialFailureError when any operation failed
func (r *ApplyResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return NewPartialFailureError(r.Succeeded, r.Failed)
}

// ByType returns the label changes of the given type in plan order
func (p *LabelPlan) ByType(changeType ChangeType) []LabelChange {
	var changes []LabelChange
	for _, change := range p.Changes {
		if change.Type == changeType {
			changes = append(changes, change)
		}
	}
	return changes
}

// ByType returns the milestone changes of the given type in plan order
func (p *MilestonePlan) ByType(changeType ChangeType) []MilestoneChange {
	var changes []MilestoneChange
	for _, change := range p.Changes {
		if change.Type == changeType {
			changes = append(changes, change)
		}
	}
	return changes
}
