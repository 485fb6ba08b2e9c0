package ubidots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/awqp/ubidots-export/internal/infrastructure/config"
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
)

// AuthHeader is the request header carrying the account token.
const AuthHeader = "X-Auth-Token"

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 5
	defaultPageSize = 100
	userAgent       = "ubiexport"
)

// Logger is the subset of logging.Logger used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// restyLogger routes resty's printf-style logging into the structured logger.
type restyLogger struct {
	log Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}

// Outcome classifies a single HTTP response.
type Outcome int

const (
	// OutcomeSuccess is any status below 400.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable is a 4xx/5xx status worth asking again for.
	OutcomeRetryable
	// OutcomeFatal is a status that will not change on retry (401, 403, 404).
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Categorise maps an HTTP status code to an Outcome.
func Categorise(status int) Outcome {
	switch {
	case status < http.StatusBadRequest:
		return OutcomeSuccess
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return OutcomeFatal
	default:
		return OutcomeRetryable
	}
}

// Response is the final response of a Get call.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte

	// Attempts is the number of requests made to obtain this response.
	Attempts int
	Outcome  Outcome
}

// Err returns nil for a successful response and a *StatusError otherwise.
func (r *Response) Err() error {
	if r.Outcome == OutcomeSuccess {
		return nil
	}
	return &StatusError{
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Attempts:   r.Attempts,
		Outcome:    r.Outcome,
	}
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Token    string
	PageSize int
	Timeout  time.Duration

	// Attempts is the total number of requests per Get, including the first.
	Attempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration

	Logger Logger
}

// OptionsFromConfig builds client options from the ubidots config section.
func OptionsFromConfig(cfg config.UbidotsConfig) Options {
	return Options{
		BaseURL:  cfg.BaseURL,
		Token:    cfg.Token,
		PageSize: cfg.PageSize,
		Timeout:  cfg.Timeout,
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
	}
}

// Client talks to the Ubidots REST API with a single account token.
type Client struct {
	http     *resty.Client
	baseURL  string
	token    string
	pageSize int
	attempts int
	delay    time.Duration
	logger   Logger
}

// New creates a Client. The token is required.
func New(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, ErrMissingToken
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("ubidots: base url is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = defaultAttempts
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	var logger Logger = logging.Discard()
	if opts.Logger != nil {
		logger = opts.Logger
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetLogger(restyLogger{log: logger})

	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		pageSize: pageSize,
		attempts: attempts,
		delay:    opts.Delay,
		logger:   logger,
	}, nil
}

// WithToken returns a copy of the client that authenticates with token.
// The copy shares the underlying connection pool.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// Token returns the token the client authenticates with.
func (c *Client) Token() string {
	return c.token
}

// Get performs a GET with the retry policy and returns the last response.
//
// Retryable statuses are retried until the attempt bound is reached; fatal
// statuses return immediately. In both cases the response is returned with a
// nil error and Response.Err reports the failure. An error is returned only
// when the context is cancelled or the last attempt produced no response.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var last *Response
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, c.delay); err != nil {
				return nil, fmt.Errorf("GET %s: %w", rawURL, err)
			}
		}

		c.logger.Debug("retrieving data", "url", rawURL, "attempt", attempt)

		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader(AuthHeader, c.token).
			Get(rawURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("GET %s: %w", rawURL, ctxErr)
			}
			last = nil
			lastErr = fmt.Errorf("%w: GET %s: %w", ErrTransport, rawURL, err)
			c.logger.Warn("request failed", "url", rawURL, "attempt", attempt, "error", err)
			continue
		}

		last = &Response{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Body:       resp.Body(),
			Attempts:   attempt,
			Outcome:    Categorise(resp.StatusCode()),
		}

		switch last.Outcome {
		case OutcomeSuccess:
			return last, nil
		case OutcomeFatal:
			c.logger.Warn("request rejected", "url", rawURL, "status", last.StatusCode, "attempt", attempt)
			return last, nil
		default:
			c.logger.Warn("retryable response", "url", rawURL, "status", last.StatusCode, "attempt", attempt)
		}
	}

	if last == nil {
		return nil, fmt.Errorf("%w (after %d attempts)", lastErr, c.attempts)
	}
	return last, nil
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// endpoint joins an API path onto the base URL and appends the query.
func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

// pageQuery returns the page_size query used by the list endpoints.
func (c *Client) pageQuery() url.Values {
	return url.Values{"page_size": {strconv.Itoa(c.pageSize)}}
}
