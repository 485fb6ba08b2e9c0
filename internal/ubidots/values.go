package ubidots

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Values returns the most recent readings of a variable, newest first.
// Only the first page is read; limit bounds its size.
func (c *Client) Values(ctx context.Context, variableID string, limit int) ([]Reading, error) {
	path := "/api/v1.6/variables/" + url.PathEscape(variableID) + "/values/"
	resp, err := c.Get(ctx, c.endpoint(path, limitQuery(limit)))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	var p struct {
		Results []Reading `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPage, resp.URL, err)
	}
	if p.Results == nil {
		p.Results = []Reading{}
	}
	return p.Results, nil
}

// ValuesCSV returns the most recent readings of a device/variable label pair
// using the CSV rendering of the values endpoint.
func (c *Client) ValuesCSV(ctx context.Context, deviceLabel, variableLabel string, limit int) ([]Reading, error) {
	path := "/api/v1.6/devices/" + url.PathEscape(deviceLabel) + "/" + url.PathEscape(variableLabel) + "/values/"
	q := limitQuery(limit)
	q.Set("format", "csv")

	resp, err := c.Get(ctx, c.endpoint(path, q))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	readings, err := parseValuesCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resp.URL, err)
	}
	return readings, nil
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("page_size", strconv.Itoa(limit))
	}
	return q
}

// csvColumns holds the header positions of a values CSV; -1 means absent.
type csvColumns struct {
	timestamp, createdAt, value, context int
}

func locateColumns(header []string) (csvColumns, error) {
	cols := csvColumns{timestamp: -1, createdAt: -1, value: -1, context: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case name == "timestamp":
			cols.timestamp = i
		case name == "value":
			cols.value = i
		case name == "context":
			cols.context = i
		case strings.Contains(name, "date"), strings.Contains(name, "created"):
			cols.createdAt = i
		}
	}
	if cols.timestamp < 0 || cols.value < 0 {
		return cols, fmt.Errorf("%w: header %v lacks timestamp or value", ErrMalformedCSV, header)
	}
	return cols, nil
}

// parseValuesCSV decodes a values CSV body. Columns are located by header
// name; an empty body yields no readings.
func parseValuesCSV(body []byte) ([]Reading, error) {
	readings := make([]Reading, 0)
	if len(bytes.TrimSpace(body)) == 0 {
		return readings, nil
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrMalformedCSV, err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return nil, err
	}

	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}

		reading, err := readingFromRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedCSV, line, err)
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func readingFromRecord(rec []string, cols csvColumns) (Reading, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ts, err := strconv.ParseInt(field(cols.timestamp), 10, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("timestamp: %w", err)
	}
	value, err := strconv.ParseFloat(field(cols.value), 64)
	if err != nil {
		return Reading{}, fmt.Errorf("value: %w", err)
	}

	reading := Reading{
		Timestamp: ts,
		CreatedAt: field(cols.createdAt),
		Value:     value,
	}
	if raw := field(cols.context); raw != "" {
		var ctxMap map[string]any
		if json.Unmarshal([]byte(raw), &ctxMap) == nil {
			reading.Context = ctxMap
		}
	}
	if reading.CreatedAt == "" {
		reading.CreatedAt = reading.Time().Format(createdAtLayout)
	}
	return reading, nil
}
