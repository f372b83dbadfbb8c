package github

import (
	"time"

	"ghsync/pkg/config"
)

// Milestone states accepted by the milestones endpoint
const (
	MilestoneStateOpen   = "open"
	MilestoneStateClosed = "closed"
	MilestoneStateAll    = "all"
)

// IssueStateOpen restricts an issue listing to open issues
const IssueStateOpen = "open"

// Label represents a repository label
type Label struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Description *string `json:"description"`
}

// Milestone represents a repository milestone
type Milestone struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	DueOn       *time.Time `json:"due_on"`
	State       string     `json:"state"`
	OpenIssues  int        `json:"open_issues"`
}

// IsOpen reports whether the milestone is open
func (m Milestone) IsOpen() bool {
	return m.State == MilestoneStateOpen
}

// Issue represents a repository issue. Only label attachment is ever written.
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Labels    []string   `json:"labels"`
	Milestone *Milestone `json:"milestone,omitempty"`
}

// HasLabel reports whether the issue carries a label with exactly this name
func (i Issue) HasLabel(name string) bool {
	for _, label := range i.Labels {
		if label == name {
			return true
		}
	}
	return false
}

// IssueFilter narrows an issue listing
type IssueFilter struct {
	Milestone string
	Labels    []string
	State     string
	PerPage   int
}

// DeleteMode controls what happens to destination labels missing from the source
type DeleteMode string

const (
	DeleteModeOff   DeleteMode = "off"
	DeleteModeForce DeleteMode = "force"
	DeleteModePrune DeleteMode = "prune"
)

// ParseDeleteMode parses a --delete flag value. An empty value means off.
func ParseDeleteMode(value string) (DeleteMode, error) {
	mode, err := config.NormalizeDeleteMode(value)
	if err != nil {
		return "", &ValidationError{
			Field:   "delete",
			Value:   value,
			Message: err.Error(),
		}
	}
	return DeleteMode(mode), nil
}

// ValidateMilestoneState checks a milestone state filter
func ValidateMilestoneState(state string) error {
	switch state {
	case MilestoneStateOpen, MilestoneStateClosed, MilestoneStateAll:
		return nil
	default:
		return &ValidationError{
			Field:   "status",
			Value:   state,
			Message: "must be one of open, closed, all",
		}
	}
}

// StringValue dereferences an optional string
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// FormatDueOn renders a due date for display
func FormatDueOn(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format("2006-01-02")
}
