package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAPIClient is a mock implementation of APIClient for testing
type MockAPIClient struct {
	mock.Mock
}

func (m *MockAPIClient) ListLabels(ctx context.Context, repo string) Iterator[Label] {
	args := m.Called(ctx, repo)
	return args.Get(0).(Iterator[Label])
}

func (m *MockAPIClient) ListMilestones(ctx context.Context, repo, state string) Iterator[Milestone] {
	args := m.Called(ctx, repo, state)
	return args.Get(0).(Iterator[Milestone])
}

func (m *MockAPIClient) ListIssues(ctx context.Context, repo string, filter IssueFilter) Iterator[Issue] {
	args := m.Called(ctx, repo, filter)
	return args.Get(0).(Iterator[Issue])
}

func (m *MockAPIClient) GetLabel(ctx context.Context, repo, name string) (*Label, error) {
	args := m.Called(ctx, repo, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Label), args.Error(1)
}

func (m *MockAPIClient) CreateLabel(ctx context.Context, repo string, label Label) error {
	args := m.Called(ctx, repo, label)
	return args.Error(0)
}

func (m *MockAPIClient) UpdateLabel(ctx context.Context, repo, currentName string, label Label) error {
	args := m.Called(ctx, repo, currentName, label)
	return args.Error(0)
}

func (m *MockAPIClient) DeleteLabel(ctx context.Context, repo, name string) error {
	args := m.Called(ctx, repo, name)
	return args.Error(0)
}

func (m *MockAPIClient) CreateMilestone(ctx context.Context, repo string, milestone Milestone) error {
	args := m.Called(ctx, repo, milestone)
	return args.Error(0)
}

func (m *MockAPIClient) UpdateMilestone(ctx context.Context, repo string, number int, milestone Milestone) error {
	args := m.Called(ctx, repo, number, milestone)
	return args.Error(0)
}

func (m *MockAPIClient) CloseMilestone(ctx context.Context, repo string, number int) error {
	args := m.Called(ctx, repo, number)
	return args.Error(0)
}

func (m *MockAPIClient) AddLabelsToIssue(ctx context.Context, repo string, number int, labels []string) error {
	args := m.Called(ctx, repo, number, labels)
	return args.Error(0)
}

// sliceIterator serves records from memory, optionally failing once they are drained
type sliceIterator[T any] struct {
	items   []T
	err     error
	current T
}

func iterate[T any](items ...T) *sliceIterator[T] {
	return &sliceIterator[T]{items: items}
}

func failing[T any](err error, items ...T) *sliceIterator[T] {
	return &sliceIterator[T]{items: items, err: err}
}

func (s *sliceIterator[T]) Next() bool {
	if len(s.items) == 0 {
		return false
	}
	s.current, s.items = s.items[0], s.items[1:]
	return true
}

func (s *sliceIterator[T]) Value() T { return s.current }

func (s *sliceIterator[T]) Err() error {
	if len(s.items) > 0 {
		return nil
	}
	return s.err
}

func strPtr(s string) *string { return &s }

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// fakeGitHub is an in-memory GitHub REST API covering the label, milestone and
// issue endpoints used by the reconcilers. Listings paginate with Link headers.
type fakeGitHub struct {
	mu         sync.Mutex
	server     *httptest.Server
	labels     map[string][]Label
	milestones map[string][]Milestone
	issues     map[string][]Issue
	failures   map[string]int
	requests   []string
	headers    []http.Header
	pageSize   int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{
		labels:     make(map[string][]Label),
		milestones: make(map[string][]Milestone),
		issues:     make(map[string][]Issue),
		failures:   make(map[string]int),
		pageSize:   30,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// client returns a client for the fake server with retries disabled
func (f *fakeGitHub) client(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		BaseURL: f.server.URL,
		Token:   "test-token",
		Logger:  discardLogger(),
		Retry:   NoRetryConfig(),
	})
	require.NoError(t, err)
	return client
}

// fail makes every request matching "METHOD /path" answer with status
func (f *fakeGitHub) fail(method, path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = status
}

// writes returns the recorded non-GET requests
func (f *fakeGitHub) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var writes []string
	for _, r := range f.requests {
		if !strings.HasPrefix(r, "GET ") {
			writes = append(writes, r)
		}
	}
	return writes
}

func (f *fakeGitHub) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeGitHub) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeGitHub) resetRequests() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
	f.headers = nil
}

func (f *fakeGitHub) labelsOf(repo string) []Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Label(nil), f.labels[repo]...)
}

func (f *fakeGitHub) milestonesOf(repo string) []Milestone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Milestone(nil), f.milestones[repo]...)
}

func (f *fakeGitHub) issuesOf(repo string) []Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Issue(nil), f.issues[repo]...)
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	f.requests = append(f.requests, r.Method+" "+target)
	f.headers = append(f.headers, r.Header.Clone())
	w.Header().Set("Content-Type", "application/json")

	if status, ok := f.failures[r.Method+" "+r.URL.Path]; ok {
		writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/repos/"), "/")
	if !strings.HasPrefix(r.URL.Path, "/repos/") || len(parts) < 3 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	repo := parts[0] + "/" + parts[1]

	switch {
	case parts[2] == "labels":
		f.handleLabels(w, r, repo, parts[3:])
	case parts[2] == "milestones":
		f.handleMilestones(w, r, repo, parts[3:])
	case parts[2] == "issues" && len(parts) == 5 && parts[4] == "labels":
		f.handleIssueLabels(w, r, repo, parts[3])
	case parts[2] == "issues":
		f.handleIssues(w, r, repo)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	}
}

func (f *fakeGitHub) handleLabels(w http.ResponseWriter, r *http.Request, repo string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			records := make([]interface{}, 0, len(f.labels[repo]))
			for _, l := range f.labels[repo] {
				records = append(records, labelJSON(l))
			}
			f.writePage(w, r, records)
		case http.MethodPost:
			var body struct {
				Name        string  `json:"name"`
				Color       string  `json:"color"`
				Description *string `json:"description"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			label := Label{Name: body.Name, Color: body.Color, Description: body.Description}
			f.labels[repo] = append(f.labels[repo], label)
			writeJSON(w, http.StatusCreated, labelJSON(label))
		}
		return
	}

	name := strings.Join(rest, "/")
	index := -1
	for i, l := range f.labels[repo] {
		if strings.EqualFold(l.Name, name) {
			index = i
			break
		}
	}
	if index < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, labelJSON(f.labels[repo][index]))
	case http.MethodPatch:
		var body struct {
			Name        string  `json:"name"`
			NewName     string  `json:"new_name"`
			Color       string  `json:"color"`
			Description *string `json:"description"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		label := &f.labels[repo][index]
		if body.NewName != "" {
			label.Name = body.NewName
		} else if body.Name != "" {
			label.Name = body.Name
		}
		label.Color = body.Color
		label.Description = body.Description
		writeJSON(w, http.StatusOK, labelJSON(*label))
	case http.MethodDelete:
		f.labels[repo] = append(f.labels[repo][:index], f.labels[repo][index+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeGitHub) handleMilestones(w http.ResponseWriter, r *http.Request, repo string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			state := r.URL.Query().Get("state")
			if state == "" {
				state = MilestoneStateOpen
			}
			records := make([]interface{}, 0)
			for _, m := range f.milestones[repo] {
				if state == MilestoneStateAll || m.State == state {
					records = append(records, milestoneJSON(m))
				}
			}
			f.writePage(w, r, records)
		case http.MethodPost:
			var body struct {
				Title       string     `json:"title"`
				Description *string    `json:"description"`
				DueOn       *time.Time `json:"due_on"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			number := 1
			for _, m := range f.milestones[repo] {
				if m.Number >= number {
					number = m.Number + 1
				}
			}
			milestone := Milestone{
				Number:      number,
				Title:       body.Title,
				Description: body.Description,
				DueOn:       body.DueOn,
				State:       MilestoneStateOpen,
			}
			f.milestones[repo] = append(f.milestones[repo], milestone)
			writeJSON(w, http.StatusCreated, milestoneJSON(milestone))
		}
		return
	}

	number, _ := strconv.Atoi(rest[0])
	for i := range f.milestones[repo] {
		milestone := &f.milestones[repo][i]
		if milestone.Number != number {
			continue
		}
		if r.Method == http.MethodPatch {
			var body map[string]json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&body)
			if raw, ok := body["title"]; ok {
				_ = json.Unmarshal(raw, &milestone.Title)
			}
			if raw, ok := body["description"]; ok {
				milestone.Description = nil
				_ = json.Unmarshal(raw, &milestone.Description)
			}
			if raw, ok := body["due_on"]; ok {
				milestone.DueOn = nil
				_ = json.Unmarshal(raw, &milestone.DueOn)
			}
			if raw, ok := body["state"]; ok {
				_ = json.Unmarshal(raw, &milestone.State)
			}
		}
		writeJSON(w, http.StatusOK, milestoneJSON(*milestone))
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func (f *fakeGitHub) handleIssues(w http.ResponseWriter, r *http.Request, repo string) {
	query := r.URL.Query()
	records := make([]interface{}, 0)
	for _, issue := range f.issues[repo] {
		if m := query.Get("milestone"); m != "" {
			if issue.Milestone == nil || strconv.Itoa(issue.Milestone.Number) != m {
				continue
			}
		}
		if labels := query.Get("labels"); labels != "" && !issueHasAllLabels(issue, strings.Split(labels, ",")) {
			continue
		}
		records = append(records, issueJSON(issue))
	}
	f.writePage(w, r, records)
}

func (f *fakeGitHub) handleIssueLabels(w http.ResponseWriter, r *http.Request, repo, rawNumber string) {
	number, _ := strconv.Atoi(rawNumber)
	var names []string
	_ = json.NewDecoder(r.Body).Decode(&names)

	for i := range f.issues[repo] {
		issue := &f.issues[repo][i]
		if issue.Number != number {
			continue
		}
		for _, name := range names {
			if !issue.HasLabel(name) {
				issue.Labels = append(issue.Labels, name)
			}
		}
		writeJSON(w, http.StatusOK, issueJSON(*issue)["labels"])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

// writePage serves one page of records and links to the next one
func (f *fakeGitHub) writePage(w http.ResponseWriter, r *http.Request, records []interface{}) {
	query := r.URL.Query()
	perPage := f.pageSize
	if n, err := strconv.Atoi(query.Get("per_page")); err == nil && n > 0 && n < perPage {
		perPage = n
	}
	page := 1
	if n, err := strconv.Atoi(query.Get("page")); err == nil && n > 0 {
		page = n
	}

	start := (page - 1) * perPage
	if start > len(records) {
		start = len(records)
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}

	if end < len(records) {
		next := url.Values{}
		for k, v := range query {
			next[k] = v
		}
		next.Set("page", strconv.Itoa(page+1))
		w.Header().Set("Link", fmt.Sprintf(`<%s%s?%s>; rel="next", <%s%s?page=1>; rel="first"`,
			f.server.URL, r.URL.Path, next.Encode(), f.server.URL, r.URL.Path))
	}
	writeJSON(w, http.StatusOK, records[start:end])
}

func issueHasAllLabels(issue Issue, names []string) bool {
	for _, name := range names {
		found := false
		for _, label := range issue.Labels {
			if strings.EqualFold(label, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func labelJSON(l Label) map[string]interface{} {
	return map[string]interface{}{
		"name":        l.Name,
		"color":       l.Color,
		"description": l.Description,
	}
}

func milestoneJSON(m Milestone) map[string]interface{} {
	record := map[string]interface{}{
		"number":      m.Number,
		"title":       m.Title,
		"description": m.Description,
		"state":       m.State,
		"open_issues": m.OpenIssues,
		"due_on":      "",
		"created_at":  "2020-01-01T00:00:00Z",
		"closed_at":   "",
	}
	if m.DueOn != nil {
		record["due_on"] = m.DueOn.UTC().Format(time.RFC3339)
	}
	return record
}

func issueJSON(i Issue) map[string]interface{} {
	labels := make([]map[string]string, 0, len(i.Labels))
	for _, name := range i.Labels {
		labels = append(labels, map[string]string{"name": name})
	}
	record := map[string]interface{}{
		"number":     i.Number,
		"title":      i.Title,
		"labels":     labels,
		"state":      "open",
		"created_at": "2020-01-01T00:00:00Z",
		"closed_at":  "",
	}
	if i.Milestone != nil {
		record["milestone"] = milestoneJSON(*i.Milestone)
	}
	return record
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func labelNames(labels []Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}
