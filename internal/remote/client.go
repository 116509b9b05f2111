package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/leafline/internal/entity"
)

// DefaultTimeout bounds every remote call when Config.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// DefaultMaxResponseBytes caps a response body when Config.MaxResponseBytes
// is unset.
const DefaultMaxResponseBytes = 32 << 20

// Config configures the REST client.
type Config struct {
	ProjectURL string
	APIKey     string

	// Tables maps each kind to its REST table. Missing kinds use DefaultTables.
	Tables map[entity.Kind]string

	Timeout time.Duration

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64

	// Optional additional headers to send on every request.
	DefaultHeaders map[string]string
	// Optional explicit allowlist; if empty, derived from ProjectURL host.
	AllowedHosts []string

	HTTPClient *http.Client
}

// DefaultTables returns the table name for every kind.
func DefaultTables() map[entity.Kind]string {
	return map[entity.Kind]string{
		entity.KindScan:      "scans",
		entity.KindDirectory: "directory_records",
		entity.KindPromo:     "promo_media",
	}
}

// Client performs PostgREST calls against the hosted backend.
type Client struct {
	http    *http.Client
	prefix  string
	apiKey  string
	tables  map[entity.Kind]string
	timeout time.Duration
	maxBody int64
	headers map[string]string
	allowed map[string]struct{}
}

var _ Service = (*Client)(nil)

// New creates a REST client.
func New(cfg Config) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, fmt.Errorf("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	trimmed := strings.TrimRight(cfg.ProjectURL, "/")

	allowed := make(map[string]struct{})
	if len(cfg.AllowedHosts) == 0 {
		if u, err := url.Parse(cfg.ProjectURL); err == nil && u.Hostname() != "" {
			allowed[u.Hostname()] = struct{}{}
		}
	} else {
		for _, h := range cfg.AllowedHosts {
			if h != "" {
				allowed[h] = struct{}{}
			}
		}
	}

	tables := DefaultTables()
	for k, t := range cfg.Tables {
		if t != "" {
			tables[k] = t
		}
	}

	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	for k, v := range cfg.DefaultHeaders {
		if v != "" {
			headers[k] = v
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		http:    httpClient,
		prefix:  trimmed + "/rest/v1",
		apiKey:  cfg.APIKey,
		tables:  tables,
		timeout: timeout,
		maxBody: maxBody,
		headers: headers,
		allowed: allowed,
	}, nil
}

// FetchAll selects every row of kind's table ordered by id.
func (c *Client) FetchAll(ctx context.Context, kind entity.Kind) ([]entity.Entity, error) {
	table, err := c.table(kind)
	if err != nil {
		return nil, err
	}
	op := "fetch " + string(kind)

	body, err := c.do(ctx, op, http.MethodGet, c.prefix+"/"+url.PathEscape(table)+"?select=*&order=id.asc", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(kind, body)
}

// Save upserts e and returns the row the service stored.
func (c *Client) Save(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	if e == nil {
		return nil, fmt.Errorf("save: nil entity")
	}
	table, err := c.table(e.Kind())
	if err != nil {
		return nil, err
	}
	op := "save " + string(e.Kind())

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", op, err)
	}
	extra := map[string]string{
		"Prefer": "return=representation,resolution=merge-duplicates",
	}
	if key, ok := IdempotencyKey(ctx); ok {
		extra["Idempotency-Key"] = key
	}

	body, err := c.do(ctx, op, http.MethodPost, c.prefix+"/"+url.PathEscape(table), payload, extra)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(e.Kind(), body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// return=representation was ignored; the write itself succeeded.
		return e, nil
	}
	return rows[0], nil
}

// HealthCheck reports whether the REST endpoint answers at all.
// Any status below 500 counts as reachable.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, c.prefix+"/", nil, nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
	return resp.StatusCode < 500
}

func (c *Client) table(kind entity.Kind) (string, error) {
	t, ok := c.tables[kind]
	if !ok {
		return "", fmt.Errorf("no table for kind %q", string(kind))
	}
	return t, nil
}

// do performs one request and classifies the outcome.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body []byte, extra map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, rawURL, body, extra)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnreachableError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &UnreachableError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > c.maxBody {
		return nil, &UnreachableError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("response body exceeds %d bytes", c.maxBody)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case retryableStatus(resp.StatusCode):
		return nil, &UnreachableError{Op: op, Status: resp.StatusCode}
	case accessStatus(resp.StatusCode):
		return nil, &UnreachableError{
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%w: %s", ErrAccessDenied, rejection(resp.StatusCode, data).Message),
		}
	default:
		return nil, rejection(resp.StatusCode, data)
	}
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body []byte, extra map[string]string) (*http.Request, error) {
	if err := c.ensureAllowed(rawURL); err != nil {
		return nil, err
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) ensureAllowed(rawURL string) error {
	if len(c.allowed) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid url host")
	}
	if _, ok := c.allowed[host]; !ok {
		return fmt.Errorf("host not allowed: %s", host)
	}
	return nil
}

// apiError is the PostgREST error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func rejection(status int, body []byte) *RejectedError {
	re := &RejectedError{Status: status}
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Message != "" {
		re.Code = ae.Code
		re.Message = ae.Message
		if ae.Details != "" {
			re.Message += ": " + ae.Details
		}
		return re
	}
	re.Message = strings.TrimSpace(string(body))
	if re.Message == "" {
		re.Message = http.StatusText(status)
	}
	return re
}

func decodeRows(kind entity.Kind, body []byte) ([]entity.Entity, error) {
	switch kind {
	case entity.KindScan:
		return decodeAs[entity.ScanRecord](kind, body)
	case entity.KindDirectory:
		return decodeAs[entity.DirectoryRecord](kind, body)
	case entity.KindPromo:
		return decodeAs[entity.PromoMedia](kind, body)
	}
	return nil, fmt.Errorf("decode: unknown kind %q", string(kind))
}

func decodeAs[T entity.Entity](kind entity.Kind, body []byte) ([]entity.Entity, error) {
	var rows []T
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode %s rows: %w", kind, err)
		}
	}
	out := make([]entity.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	return out, nil
}
