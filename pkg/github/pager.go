package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
)

// MaxPages bounds how many pages a single listing follows
const MaxPages = 1000

// linkNextPattern extracts the rel="next" URL from a Link header
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// dateFields are normalized on every listed record
var dateFields = []string{"created_at", "updated_at", "closed_at", "due_on", "milestone_due_on"}

// nestedDateFields are normalized on a record's nested milestone
var nestedDateFields = []string{"created_at", "updated_at", "closed_at", "due_on"}

var jsonNull = json.RawMessage("null")

// Pager lazily walks a paginated listing. Each page is requested only once the
// records of the previous page have been consumed, so a caller that stops early
// never pays for the remaining pages. A Pager is single-pass.
type Pager[T any] struct {
	ctx      context.Context
	client   *Client
	resource string
	nextURL  string
	decode   func(json.RawMessage) (T, error)

	buf     []T
	current T
	err     error
	pages   int
}

func newPager[W, T any](ctx context.Context, c *Client, path, resource string, convert func(*W) T) *Pager[T] {
	return &Pager[T]{
		ctx:      ctx,
		client:   c,
		resource: resource,
		nextURL:  path,
		decode: func(raw json.RawMessage) (T, error) {
			var wire W
			if err := json.Unmarshal(raw, &wire); err != nil {
				var zero T
				return zero, err
			}
			return convert(&wire), nil
		},
	}
}

// Next advances to the next record, fetching the next page when the current one is drained
func (p *Pager[T]) Next() bool {
	for len(p.buf) == 0 {
		if p.err != nil || p.nextURL == "" {
			return false
		}
		p.fetch()
	}

	p.current, p.buf = p.buf[0], p.buf[1:]
	return true
}

// Value returns the current record
func (p *Pager[T]) Value() T {
	return p.current
}

// Err returns the error that stopped iteration, if any
func (p *Pager[T]) Err() error {
	return p.err
}

// Requests returns the number of pages fetched so far
func (p *Pager[T]) Requests() int {
	return p.pages
}

func (p *Pager[T]) fetch() {
	if p.pages >= MaxPages {
		p.err = fmt.Errorf("%s: pagination limit of %d pages exceeded", p.resource, MaxPages)
		return
	}

	var body json.RawMessage
	var resp *http.Response
	err := WithRetry(p.ctx, func() error {
		req, err := p.client.newRequest(http.MethodGet, p.nextURL, nil)
		if err != nil {
			return err
		}

		body = nil
		ghResp, err := p.client.client.Do(p.ctx, req, &body)
		if err != nil {
			return WrapGitHubError(err, p.resource)
		}
		resp = ghResp.Response
		return nil
	}, p.client.retry)

	p.pages++
	p.nextURL = ""
	if err != nil {
		p.err = err
		return
	}

	records, err := splitRecords(body)
	if err != nil {
		p.err = fmt.Errorf("%s: decoding page %d: %w", p.resource, p.pages, err)
		return
	}

	items := make([]T, 0, len(records))
	for _, raw := range records {
		normalized, err := normalizeRecord(raw)
		if err != nil {
			p.err = fmt.Errorf("%s: normalizing record: %w", p.resource, err)
			return
		}
		item, err := p.decode(normalized)
		if err != nil {
			p.err = fmt.Errorf("%s: decoding record: %w", p.resource, err)
			return
		}
		items = append(items, item)
	}

	p.buf = items
	p.nextURL = nextPageURL(resp.Header.Get("Link"))
}

// splitRecords returns the records of a page. Search-style endpoints wrap the
// records in an object under "items".
func splitRecords(body json.RawMessage) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, jsonNull) {
		return nil, nil
	}

	if body[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, err
		}
		items, ok := wrapper["items"]
		if !ok {
			return nil, fmt.Errorf("expected a list or an object with items")
		}
		body = items
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// normalizeRecord rewrites empty date strings to null so they decode as absent
// values instead of failing timestamp parsing.
func normalizeRecord(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	changed := nullEmptyDates(fields, dateFields)

	if nested, ok := fields["milestone"]; ok && len(nested) > 0 && nested[0] == '{' {
		var milestone map[string]json.RawMessage
		if err := json.Unmarshal(nested, &milestone); err != nil {
			return nil, err
		}
		if nullEmptyDates(milestone, nestedDateFields) {
			encoded, err := json.Marshal(milestone)
			if err != nil {
				return nil, err
			}
			fields["milestone"] = encoded
			changed = true
		}
	}

	if !changed {
		return raw, nil
	}
	return json.Marshal(fields)
}

func nullEmptyDates(fields map[string]json.RawMessage, names []string) bool {
	changed := false
	for _, name := range names {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if string(bytes.TrimSpace(value)) == `""` {
			fields[name] = jsonNull
			changed = true
		}
	}
	return changed
}

// nextPageURL returns the rel="next" URL of a Link header, or "" on the last page
func nextPageURL(link string) string {
	if link == "" {
		return ""
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
