package ubidots

import (
	"context"
	"encoding/json"
	"fmt"
)

// page is the pagination envelope returned by the list endpoints.
type page struct {
	Results []json.RawMessage `json:"results"`
	Next    *string           `json:"next"`
}

// FetchAll follows next links from startURL and returns every record of every
// page in order. Records are not deduplicated. The walk stops at the first
// page whose next link is null or empty.
func (c *Client) FetchAll(ctx context.Context, startURL string) ([]json.RawMessage, error) {
	records := make([]json.RawMessage, 0)
	seen := make(map[string]struct{})

	next := startURL
	for next != "" {
		if _, ok := seen[next]; ok {
			return nil, fmt.Errorf("%w: %s", ErrPaginationCycle, next)
		}
		seen[next] = struct{}{}

		resp, err := c.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		if err := resp.Err(); err != nil {
			return nil, err
		}

		var p page
		if err := json.Unmarshal(resp.Body, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPage, next, err)
		}
		records = append(records, p.Results...)
		c.logger.Debug("page fetched", "url", next, "results", len(p.Results), "total", len(records))

		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}

	return records, nil
}

// fetchAllAs runs FetchAll and decodes each record into T.
func fetchAllAs[T any](ctx context.Context, c *Client, startURL string) ([]T, error) {
	raw, err := c.FetchAll(ctx, startURL)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(raw))
	for i, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, fmt.Errorf("%w: record %d from %s: %w", ErrMalformedPage, i, startURL, err)
		}
		items = append(items, item)
	}
	return items, nil
}
