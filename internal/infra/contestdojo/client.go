// internal/infra/contestdojo/client.go
package contestdojo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"verifier_bot/internal/domain/student"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.contestdojo.com/"
	DefaultTimeout = 10 * time.Second

	maxErrorBodyBytes = 4 << 10
)

// CallObserver is notified after every directory call.
type CallObserver interface {
	ObserveDirectoryCall(op string, start time.Time, err error)
}

// Client implements student.Directory against the ContestDojo REST API.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiToken   string
	logger     *logrus.Entry
	observer   CallObserver
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a directory client authenticated with apiToken.
// An empty baseURL selects DefaultBaseURL; a non-positive timeout selects DefaultTimeout.
func NewClient(baseURL, apiToken string, timeout time.Duration, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if apiToken == "" {
		return nil, errors.New("contestdojo: api token is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("contestdojo: invalid base url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    u,
		apiToken:   apiToken,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListStudents lists the students of an event. Only non-nil filter fields are
// sent as query parameters.
func (c *Client) ListStudents(ctx context.Context, eventID string, filter student.ListFilter) ([]student.Record, error) {
	if eventID == "" {
		return nil, errors.New("contestdojo: event id is required")
	}
	path := fmt.Sprintf("events/%s/students/", url.PathEscape(eventID))

	var students []student.Record
	if err := c.do(ctx, "list_students", http.MethodGet, path, filterQuery(filter), nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// UpdateStudent applies a partial update to a student. Unset patch fields are
// left out of the request body so the directory leaves them unchanged.
func (c *Client) UpdateStudent(ctx context.Context, eventID, studentID string, patch student.Patch) (*student.Record, error) {
	if eventID == "" || studentID == "" {
		return nil, errors.New("contestdojo: event id and student id are required")
	}
	path := fmt.Sprintf("events/%s/students/%s", url.PathEscape(eventID), url.PathEscape(studentID))

	var updated student.Record
	if err := c.do(ctx, "update_student", http.MethodPatch, path, nil, patch.Body(), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func filterQuery(f student.ListFilter) url.Values {
	q := url.Values{}
	set := func(key string, v *string) {
		if v != nil {
			q.Set(key, *v)
		}
	}
	set("org_id", f.OrgID)
	set("team_id", f.TeamID)
	set("number", f.Number)
	set("email", f.Email)
	return q
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveDirectoryCall(op, start, err)
		}
	}()

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("contestdojo %s: build url: %w", op, err)
	}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	target := c.baseURL.ResolveReference(ref)

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("contestdojo %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return fmt.Errorf("contestdojo %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RemoteError{Op: op, Class: transportClass(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	log := c.logger.WithFields(logrus.Fields{
		"op":          op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		log.Debug("Directory call failed")
		return &RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Class:      classForStatus(resp.StatusCode),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Op: op, StatusCode: 0, Class: transportClass(ctx, err), Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	log.Debug("Directory call succeeded")
	return nil
}

func transportClass(ctx context.Context, err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return ClassCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	return ClassTransport
}
