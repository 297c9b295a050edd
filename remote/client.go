// Package remote talks to the Remote Task Store over HTTP/JSON.
package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	routeTasks = "/tasks"
	routeTask  = "/tasks/:id"

	// HeaderIdempotencyKey lets the store collapse repeated creates.
	HeaderIdempotencyKey = "Idempotency-Key"
)

// rawBody receives the undecoded response body from do.
type rawBody []byte

// Client wraps http.Client with the task store's CRUD contract.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the per-request timeout. A client installed with
// WithHTTPClient is copied rather than modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// New creates a client for the store rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTasks returns every task owned by owner in store order. Records without
// an id or whose category is not one of the board columns are skipped.
func (c *Client) ListTasks(ctx context.Context, owner string) (tasks []domain.Task, err error) {
	metrics, ctx := newRequestMetrics(ctx, c.logger, http.MethodGet, routeTasks)
	status := 0
	defer func() { metrics.Log(status, err) }()

	q := url.Values{}
	q.Set("owner", owner)
	var records []taskRecord
	status, err = c.do(ctx, metrics, http.MethodGet, routeTasks+"?"+q.Encode(), nil, nil, &records)
	if err != nil {
		return nil, err
	}

	tasks = make([]domain.Task, 0, len(records))
	for _, rec := range records {
		if rec.id() == "" {
			c.logger.WithField("title", rec.Title).Warn("skipping task without id")
			continue
		}
		t, convErr := rec.toDomain()
		if convErr != nil {
			c.logger.WithFields(log.Fields{"task": rec.id(), "category": rec.Category}).Warn("skipping task with unknown category")
			continue
		}
		tasks = append(tasks, t)
	}
	metrics.SetTasksReturned(len(tasks))
	return tasks, nil
}

// CreateTask stores a new task and returns it with its assigned id.
func (c *Client) CreateTask(ctx context.Context, owner string, draft domain.Draft, idempotencyKey string) (task domain.Task, err error) {
	metrics, ctx := newRequestMetrics(ctx, c.logger, http.MethodPost, routeTasks)
	status := 0
	defer func() { metrics.Log(status, err) }()

	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set(HeaderIdempotencyKey, idempotencyKey)
	}
	var raw rawBody
	status, err = c.do(ctx, metrics, http.MethodPost, routeTasks, headers, newDraftRecord(owner, draft), &raw)
	if err != nil {
		return domain.Task{}, err
	}

	var rec taskRecord
	if err = sonic.Unmarshal(raw, &rec); err != nil {
		metrics.SetErrorStage("decode_response")
		return domain.Task{}, err
	}
	if rec.id() == "" {
		var ack createAck
		if ackErr := sonic.Unmarshal(raw, &ack); ackErr == nil && ack.InsertedID != "" {
			t := draft.Task(owner, "")
			t.ID = ack.InsertedID
			return t, nil
		}
		metrics.SetErrorStage("decode_response")
		err = errors.New("remote: create response has no task id")
		return domain.Task{}, err
	}
	if rec.Category == "" {
		rec.Category = draft.Category.String()
	}
	if rec.owner() == "" {
		rec.OwnerEmail = owner
	}
	task, err = rec.toDomain()
	if err != nil {
		metrics.SetErrorStage("decode_response")
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask sends the non-nil patch fields. It returns the updated record,
// or nil when the store only acknowledged the change.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.Patch) (task *domain.Task, err error) {
	metrics, ctx := newRequestMetrics(ctx, c.logger, http.MethodPut, routeTask)
	status := 0
	defer func() { metrics.Log(status, err) }()

	var raw rawBody
	status, err = c.do(ctx, metrics, http.MethodPut, routeTasks+"/"+url.PathEscape(id), nil, newPatchRecord(patch), &raw)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var rec taskRecord
	if sonic.Unmarshal(raw, &rec) != nil || rec.id() == "" {
		// Status-only acknowledgement such as {"modifiedCount":1}.
		return nil, nil
	}
	t, convErr := rec.toDomain()
	if convErr != nil {
		return nil, nil
	}
	return &t, nil
}

// DeleteTask removes the task. A missing task yields an error matching ErrNotFound.
func (c *Client) DeleteTask(ctx context.Context, id string) (err error) {
	metrics, ctx := newRequestMetrics(ctx, c.logger, http.MethodDelete, routeTask)
	status := 0
	defer func() { metrics.Log(status, err) }()

	status, err = c.do(ctx, metrics, http.MethodDelete, routeTasks+"/"+url.PathEscape(id), nil, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, metrics *requestMetrics, method, path string, headers http.Header, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			metrics.SetErrorStage("encode_request")
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		metrics.SetErrorStage("build_request")
		return 0, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SetErrorStage("transport")
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.SetErrorStage("read_response")
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.SetErrorStage("status")
		return resp.StatusCode, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if raw, ok := out.(*rawBody); ok {
		*raw = data
		return resp.StatusCode, nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
		metrics.SetErrorStage("decode_response")
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
