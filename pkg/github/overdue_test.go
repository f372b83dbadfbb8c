package github

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
}

func TestOverdueLabeler_EndToEnd(t *testing.T) {
	f := newFakeGitHub(t)
	overdue := Milestone{Number: 1, Title: "v1", DueOn: datePtr(2024, 2, 1), State: MilestoneStateOpen, OpenIssues: 2}
	future := Milestone{Number: 2, Title: "v2", DueOn: datePtr(2024, 4, 1), State: MilestoneStateOpen, OpenIssues: 1}
	empty := Milestone{Number: 3, Title: "v0", DueOn: datePtr(2024, 1, 1), State: MilestoneStateOpen}
	undated := Milestone{Number: 4, Title: "someday", State: MilestoneStateOpen, OpenIssues: 1}

	f.labels["octo/app"] = []Label{{Name: "Overdue", Color: "b60205"}}
	f.milestones["octo/app"] = []Milestone{overdue, future, empty, undated}
	f.issues["octo/app"] = []Issue{
		{Number: 10, Title: "crash on start", Milestone: &overdue},
		{Number: 11, Title: "already tagged", Labels: []string{"Overdue"}, Milestone: &overdue},
		{Number: 12, Title: "not due yet", Milestone: &future},
		{Number: 13, Title: "no date", Milestone: &undated},
	}

	logger, logs := bufferLogger()
	labeler := NewOverdueLabeler(f.client(t), logger)
	labeler.now = fixedNow
	ctx := context.Background()

	plan, err := labeler.Plan(ctx, "octo/app", "Overdue")
	require.NoError(t, err)

	assert.False(t, plan.LabelMissing)
	assert.Equal(t, []OverdueIssue{{Milestone: "v1", Number: 10, Title: "crash on start"}}, plan.Issues)

	result := labeler.Apply(ctx, plan)
	require.NoError(t, result.Err())

	assert.Equal(t, []string{"POST /repos/octo/app/issues/10/labels"}, f.writes())
	assert.Equal(t, []string{"label issue #10"}, result.Succeeded)
	assert.Contains(t, logs.String(), "#10 crash on start: Overdue")

	for _, issue := range f.issuesOf("octo/app") {
		if issue.Number == 10 {
			assert.True(t, issue.HasLabel("Overdue"))
		}
	}
}

func TestOverdueLabeler_MissingLabel(t *testing.T) {
	f := newFakeGitHub(t)
	f.milestones["octo/app"] = []Milestone{
		{Number: 1, Title: "v1", DueOn: datePtr(2024, 2, 1), State: MilestoneStateOpen, OpenIssues: 2},
	}

	logger, logs := bufferLogger()
	labeler := NewOverdueLabeler(f.client(t), logger)
	labeler.now = fixedNow

	plan, err := labeler.Plan(context.Background(), "octo/app", "Late")
	require.NoError(t, err)

	assert.True(t, plan.LabelMissing)
	assert.Empty(t, plan.Issues)
	assert.Equal(t, []string{"GET /repos/octo/app/labels/Late"}, f.recorded())
	assert.Contains(t, logs.String(), "Could not find label: Late")
}

func TestOverdueLabeler_DefaultLabel(t *testing.T) {
	client := &MockAPIClient{}
	client.On("GetLabel", mock.Anything, "octo/app", DefaultOverdueLabel).Return(&Label{Name: DefaultOverdueLabel}, nil)
	client.On("ListMilestones", mock.Anything, "octo/app", MilestoneStateOpen).Return(Iterator[Milestone](iterate[Milestone]()))

	labeler := NewOverdueLabeler(client, discardLogger())
	plan, err := labeler.Plan(context.Background(), "octo/app", "")

	require.NoError(t, err)
	assert.Equal(t, DefaultOverdueLabel, plan.Label)
	client.AssertExpectations(t)
}

func TestOverdueLabeler_TransportErrorIsFatal(t *testing.T) {
	client := &MockAPIClient{}
	boom := NewGitHubError(ErrorTypeNetwork, "connection refused", errors.New("dial tcp"))
	client.On("GetLabel", mock.Anything, "octo/app", "Overdue").Return(nil, boom)

	labeler := NewOverdueLabeler(client, discardLogger())
	plan, err := labeler.Plan(context.Background(), "octo/app", "Overdue")

	assert.Nil(t, plan)
	assert.ErrorIs(t, err, boom)
}

func TestOverdueLabeler_KeepsIssuesFetchedBeforeListingFails(t *testing.T) {
	client := &MockAPIClient{}
	first := Milestone{Number: 1, Title: "v1", DueOn: datePtr(2024, 1, 1), State: MilestoneStateOpen, OpenIssues: 1}
	second := Milestone{Number: 2, Title: "v2", DueOn: datePtr(2024, 2, 1), State: MilestoneStateOpen, OpenIssues: 1}
	remote := &GitHubError{Type: ErrorTypeNotFound, StatusCode: http.StatusNotFound, Message: "gone"}

	client.On("GetLabel", mock.Anything, "octo/app", "Overdue").Return(&Label{Name: "Overdue"}, nil)
	client.On("ListMilestones", mock.Anything, "octo/app", MilestoneStateOpen).
		Return(Iterator[Milestone](iterate(first, second)))
	client.On("ListIssues", mock.Anything, "octo/app", IssueFilter{Milestone: "1", State: IssueStateOpen}).
		Return(Iterator[Issue](failing(remote, Issue{Number: 5, Title: "partial"})))
	client.On("ListIssues", mock.Anything, "octo/app", IssueFilter{Milestone: "2", State: IssueStateOpen}).
		Return(Iterator[Issue](iterate(Issue{Number: 6, Title: "late"})))

	logger, logs := bufferLogger()
	labeler := NewOverdueLabeler(client, logger)
	labeler.now = fixedNow

	plan, err := labeler.Plan(context.Background(), "octo/app", "Overdue")
	require.NoError(t, err)

	assert.Equal(t, []OverdueIssue{
		{Milestone: "v1", Number: 5, Title: "partial"},
		{Milestone: "v2", Number: 6, Title: "late"},
	}, plan.Issues)
	assert.Contains(t, logs.String(), "Could not list issues of milestone v1")
	client.AssertExpectations(t)
}

func TestOverdueLabeler_ApplyIsBestEffort(t *testing.T) {
	client := &MockAPIClient{}
	boom := errors.New("server error")
	client.On("AddLabelsToIssue", mock.Anything, "octo/app", 1, []string{"Overdue"}).Return(boom)
	client.On("AddLabelsToIssue", mock.Anything, "octo/app", 2, []string{"Overdue"}).Return(nil)

	labeler := NewOverdueLabeler(client, discardLogger())
	result := labeler.Apply(context.Background(), &OverduePlan{
		Repository: "octo/app",
		Label:      "Overdue",
		Issues: []OverdueIssue{
			{Milestone: "v1", Number: 1, Title: "one"},
			{Milestone: "v1", Number: 2, Title: "two"},
		},
	})

	assert.Equal(t, []string{"label issue #2"}, result.Succeeded)
	assert.ErrorIs(t, result.Failed["label issue #1"], boom)
	client.AssertExpectations(t)
}
