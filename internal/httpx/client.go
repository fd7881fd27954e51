// Package httpx is the request layer every integration goes through.
// A Client is bound to one service base URL; calls return an Outcome
// instead of a Go error so automation steps can branch on failure kind
// without panic or exception control flow.
package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
)

const (
	defaultTimeout  = 30 * time.Second
	maxDetailLength = 512
)

// Policy controls retry behavior for a client.
type Policy struct {
	// MaxAttempts is the total number of requests including the first.
	MaxAttempts int
	// Backoff is the wait before the first retry; resty doubles it per
	// attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// RetryStatuses are terminal statuses worth retrying.
	RetryStatuses []int
	// RetryMethods are the verbs retries apply to.
	RetryMethods []string
}

// DefaultPolicy matches the service defaults: four attempts total,
// exponential backoff, idempotent-safe status set.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   4,
		Backoff:       time.Second,
		MaxBackoff:    10 * time.Second,
		RetryStatuses: []int{http.StatusTooManyRequests, 500, 502, 503, 504},
		RetryMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}
}

func (p Policy) statusRetryable(status int) bool {
	for _, s := range p.RetryStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (p Policy) methodRetryable(method string) bool {
	for _, m := range p.RetryMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// shouldRetry is the single resty retry condition. Context
// cancellation is never retried.
func (p Policy) shouldRetry(resp *resty.Response, err error) bool {
	method := ""
	if resp != nil && resp.Request != nil {
		method = resp.Request.Method
	}
	if method != "" && !p.methodRetryable(method) {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return p.statusRetryable(resp.StatusCode())
}

// Authorizer supplies per-request headers, typically a live bearer
// token. An Authorizer error fails the call as FailAuth before any
// request is issued.
type Authorizer func(ctx context.Context) (map[string]string, error)

// Config assembles a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Policy    Policy
	TLS       *tls.Config
	Authorize Authorizer
	Auditor   Auditor
}

// Client issues requests against one service. Safe for concurrent use.
type Client struct {
	baseURL   string
	rest      *resty.Client
	policy    Policy
	authorize Authorizer
	auditor   Auditor
	logger    *common.Logger
}

// New builds a Client from the config. Zero-value fields take the
// service defaults.
func New(cfg Config) *Client {
	policy := cfg.Policy
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	eng := engine{tlsConfig: cfg.TLS}
	rest := eng.new()
	rest.SetTimeout(timeout)
	rest.SetRetryCount(policy.MaxAttempts - 1)
	rest.SetRetryWaitTime(policy.Backoff)
	if policy.MaxBackoff > 0 {
		rest.SetRetryMaxWaitTime(policy.MaxBackoff)
	}
	rest.AddRetryCondition(policy.shouldRetry)

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		rest:      rest,
		policy:    policy,
		authorize: cfg.Authorize,
		auditor:   cfg.Auditor,
		logger:    common.GetLogger().WithComponent("httpx"),
	}
}

// BaseURL returns the normalized base URL the client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

type callOptions struct {
	query     map[string]string
	headers   map[string]string
	body      interface{}
	raw       bool
	handle400 bool
	timeout   time.Duration
}

// Option adjusts a single call.
type Option func(*callOptions)

// WithQuery sets query parameters
func WithQuery(params map[string]string) Option {
	return func(o *callOptions) { o.query = params }
}

// WithHeaders sets extra request headers
func WithHeaders(headers map[string]string) Option {
	return func(o *callOptions) { o.headers = headers }
}

// WithBody sets a JSON request body
func WithBody(body interface{}) Option {
	return func(o *callOptions) { o.body = body }
}

// Raw returns the response body verbatim instead of decoding JSON
func Raw() Option {
	return func(o *callOptions) { o.raw = true }
}

// Handle400 turns a 400 response into a handled outcome: OK with the
// sentinel payload {"message":"Bad request"} instead of a failure.
func Handle400() Option {
	return func(o *callOptions) { o.handle400 = true }
}

// WithTimeout overrides the client timeout for one call
func WithTimeout(d time.Duration) Option {
	return func(o *callOptions) { o.timeout = d }
}

// Get issues a GET request
func (c *Client) Get(ctx context.Context, path string, opts ...Option) Outcome {
	return c.do(ctx, http.MethodGet, path, opts...)
}

// Post issues a POST request
func (c *Client) Post(ctx context.Context, path string, opts ...Option) Outcome {
	return c.do(ctx, http.MethodPost, path, opts...)
}

// Put issues a PUT request
func (c *Client) Put(ctx context.Context, path string, opts ...Option) Outcome {
	return c.do(ctx, http.MethodPut, path, opts...)
}

// Delete issues a DELETE request
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) Outcome {
	return c.do(ctx, http.MethodDelete, path, opts...)
}

// prepareURL joins base and path with exactly one slash.
func (c *Client) prepareURL(path string) string {
	// Absolute endpoints bypass the base URL, as does a client without
	// one.
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if c.baseURL == "" {
		return path
	}
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + path
}

func (c *Client) do(ctx context.Context, method, path string, opts ...Option) Outcome {
	options := callOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	url := c.prepareURL(path)

	if options.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.timeout)
		defer cancel()
	}

	req := c.rest.R().SetContext(ctx)
	if options.query != nil {
		req.SetQueryParams(options.query)
	}
	if options.headers != nil {
		req.SetHeaders(options.headers)
	}
	if options.body != nil {
		req.SetBody(options.body)
	}

	if c.authorize != nil {
		headers, err := c.authorize(ctx)
		if err != nil {
			return c.finish(method, url, failed(newFailure(FailAuth, 0, "authorizer rejected request", err)))
		}
		req.SetHeaders(headers)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return c.finish(method, url, failed(c.classifyTransport(err)))
	}

	status := resp.StatusCode()
	body := resp.Body()

	switch {
	case status == http.StatusBadRequest && options.handle400:
		// Sentinel bad-request payload; the caller opted in to treat a
		// 400 as a handled outcome with a stable shape.
		return c.finish(method, url, success(status, []byte(`{"message":"Bad request"}`), false))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return c.finish(method, url, failed(newFailure(FailAuth, status, extractErrorDetail(body), nil)))
	case status >= 200 && status < 300:
		if options.raw {
			return c.finish(method, url, success(status, body, true))
		}
		if len(body) > 0 && !gjson.ValidBytes(body) {
			return c.finish(method, url, failed(newFailure(FailDecode, status, "response body is not valid JSON", nil)))
		}
		return c.finish(method, url, success(status, body, false))
	default:
		return c.finish(method, url, failed(newFailure(FailHTTPStatus, status, extractErrorDetail(body), nil)))
	}
}

// classifyTransport splits a resty error into timeout vs transport.
func (c *Client) classifyTransport(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return newFailure(FailTimeout, 0, "request timed out", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newFailure(FailTimeout, 0, "request timed out", err)
	}
	return newFailure(FailTransport, 0, "transport error", err)
}

// finish audits the terminal outcome and logs failures once.
func (c *Client) finish(method, url string, out Outcome) Outcome {
	if c.auditor != nil {
		entry := AuditEntry{
			Time:        time.Now(),
			Method:      method,
			Destination: url,
			Status:      out.Status,
			OK:          out.OK,
		}
		if out.Failure != nil {
			entry.Detail = out.Failure.Error()
		}
		c.auditor.Record(entry)
	}
	if !out.OK {
		c.logger.WithRequest(method, url).Warn("request failed",
			"kind", out.Failure.Kind.String(),
			"status", out.Status,
			"detail", common.MaskSensitiveData(out.Failure.Detail))
	}
	return out
}

// extractErrorDetail pulls the service error envelope out of a failed
// response body. The envelope is a messages array of {type,text}
// objects; bodies without one fall back to a truncated excerpt.
func extractErrorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if gjson.ValidBytes(body) {
		msgs := gjson.GetBytes(body, "messages")
		if msgs.IsArray() {
			var parts []string
			msgs.ForEach(func(_, m gjson.Result) bool {
				text := m.Get("text").String()
				if text == "" {
					return true
				}
				if typ := m.Get("type").String(); typ != "" {
					parts = append(parts, typ+": "+text)
				} else {
					parts = append(parts, text)
				}
				return true
			})
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxDetailLength {
		detail = detail[:maxDetailLength]
	}
	return detail
}
