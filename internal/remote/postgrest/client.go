// ABOUTME: Remote store over HTTP speaking the PostgREST (Supabase REST) dialect
// ABOUTME: Maps eq filters, order and limit onto query parameters and classifies HTTP failures
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harper/om/internal/remote"
)

// Client talks to a PostgREST endpoint such as https://<project>.supabase.co/rest/v1
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ remote.Store = (*Client)(nil)

// New creates a client. A nil httpClient gets one with the given timeout.
func New(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

func (c *Client) Get(ctx context.Context, table, key string) (remote.Row, error) {
	t, err := remote.Lookup(table)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set(t.PrimaryKey, "eq."+key)
	params.Set("limit", "1")

	rows, err := c.fetch(ctx, "get", t.Name, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, remote.ErrNotFound
	}
	return rows[0], nil
}

func (c *Client) Query(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	t, err := remote.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := q.Check(t); err != nil {
		return nil, err
	}
	params := filterParams(q.Filter)
	if q.OrderBy != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.fetch(ctx, "query", t.Name, params)
}

func (c *Client) Insert(ctx context.Context, table string, row remote.Row) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	if err := t.CheckColumns(row.Columns()...); err != nil {
		return err
	}
	return c.write(ctx, "insert", http.MethodPost, t.Name, nil, row, "return=minimal")
}

func (c *Client) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	if err := t.CheckColumns(append(row.Columns(), conflictKey)...); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("on_conflict", conflictKey)
	return c.write(ctx, "upsert", http.MethodPost, t.Name, params, row, "resolution=merge-duplicates,return=minimal")
}

func (c *Client) Delete(ctx context.Context, table string, filter remote.Filter) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return remote.Irrecoverablef("delete", table, "refusing unfiltered delete")
	}
	if err := (remote.Query{Filter: filter}).Check(t); err != nil {
		return err
	}
	return c.write(ctx, "delete", http.MethodDelete, t.Name, filterParams(filter), nil, "return=minimal")
}

func (c *Client) fetch(ctx context.Context, op, table string, params url.Values) ([]remote.Row, error) {
	params.Set("select", "*")
	resp, err := c.do(ctx, op, http.MethodGet, table, params, nil, "")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, remote.Wrap(op, table, fmt.Errorf("decode response: %w", err))
	}
	rows := make([]remote.Row, len(raw))
	for i, r := range raw {
		rows[i] = remote.Row(r)
	}
	return rows, nil
}

func (c *Client) write(ctx context.Context, op, method, table string, params url.Values, row remote.Row, prefer string) error {
	var body io.Reader
	if row != nil {
		b, err := json.Marshal(row)
		if err != nil {
			return remote.Irrecoverablef(op, table, "encode row: %v", err)
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, op, method, table, params, body, prefer)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) do(ctx context.Context, op, method, table string, params url.Values, body io.Reader, prefer string) (*http.Response, error) {
	u := c.baseURL + "/" + table
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, remote.Irrecoverablef(op, table, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, remote.Wrap(op, table, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	cause := fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	if retryable(resp.StatusCode) {
		return nil, remote.Wrap(op, table, cause)
	}
	return nil, &remote.Error{Op: op, Table: table, Class: remote.Irrecoverable, Err: cause}
}

func retryable(status int) bool {
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500
}

func filterParams(filter remote.Filter) url.Values {
	params := url.Values{}
	for col, v := range filter {
		params.Set(col, "eq."+formatValue(v))
	}
	return params
}

func formatValue(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
