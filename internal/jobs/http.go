package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/phase"
	"shuttle/internal/services"
)

const maxResponseBytes = 1 << 20

// Actions names the admin endpoint actions for each operation.
type Actions struct {
	Start    string
	Progress string
	Cancel   string
}

// HTTPRunner talks to a form-encoded admin endpoint that answers with
// {"success": bool, "data": {...}} envelopes.
type HTTPRunner struct {
	endpoint    string
	nonce       string
	actions     Actions
	httpClient  *http.Client
	maxAttempts int
	newBackOff  func() backoff.BackOff
	now         func() time.Time
	logger      *slog.Logger
}

// Option customizes the runner.
type Option func(*HTTPRunner)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *HTTPRunner) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithBackOff overrides the retry policy for progress fetches (useful for tests).
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(r *HTTPRunner) {
		if factory != nil {
			r.newBackOff = factory
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *HTTPRunner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *HTTPRunner) {
		r.logger = logging.NewComponentLogger(logger, "runner")
	}
}

// NewHTTPRunner constructs a runner from the [runner] config section.
func NewHTTPRunner(cfg config.Runner, opts ...Option) *HTTPRunner {
	r := &HTTPRunner{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		nonce:    strings.TrimSpace(cfg.Nonce),
		actions: Actions{
			Start:    cfg.StartAction,
			Progress: cfg.ProgressAction,
			Cancel:   cfg.CancelAction,
		},
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		maxAttempts: cfg.RetryMaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		now:    time.Now,
		logger: logging.NewComponentLogger(nil, "runner"),
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartBatch issues a single start request. It is never retried: a lost
// response could otherwise launch the same batch twice.
func (r *HTTPRunner) StartBatch(ctx context.Context, p phase.Phase, batchSize int) (BatchResult, error) {
	form := url.Values{}
	form.Set("batch_size", strconv.Itoa(batchSize))
	data, err := r.post(ctx, r.actions.Start, p, form)
	if err != nil {
		return BatchResult{}, err
	}
	return parseBatchResult(data), nil
}

// Progress fetches a snapshot, retrying transport failures with exponential backoff.
func (r *HTTPRunner) Progress(ctx context.Context, p phase.Phase) (Snapshot, error) {
	operation := func() (Snapshot, error) {
		data, err := r.post(ctx, r.actions.Progress, p, nil)
		if err != nil {
			if services.Retryable(err) {
				return Snapshot{}, err
			}
			return Snapshot{}, backoff.Permanent(err)
		}
		snap, err := parseSnapshot(data, string(p))
		if err != nil {
			return Snapshot{}, backoff.Permanent(err)
		}
		snap.Timestamp = r.now()
		return snap, nil
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(uint(r.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Debug("progress fetch retry",
				logging.String(logging.FieldPhase, string(p)),
				logging.Duration("wait", wait),
				logging.Error(err),
			)
		}),
	)
}

// Cancel asks the server to abort the phase's job.
func (r *HTTPRunner) Cancel(ctx context.Context, p phase.Phase) error {
	_, err := r.post(ctx, r.actions.Cancel, p, nil)
	return err
}

func (r *HTTPRunner) post(ctx context.Context, action string, p phase.Phase, extra url.Values) (gjson.Result, error) {
	phaseName := string(p)
	form := url.Values{}
	for key, values := range extra {
		form[key] = values
	}
	form.Set("action", action)
	form.Set("phase", phaseName)
	if r.nonce != "" {
		form.Set("nonce", r.nonce)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrConfiguration, phaseName, action, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return gjson.Result{}, services.Wrap(services.ErrTimeout, phaseName, action, "request timed out", err)
		}
		return gjson.Result{}, services.Wrap(services.ErrTransport, phaseName, action, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrTransport, phaseName, action, "read response", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return gjson.Result{}, services.Wrap(services.ErrTransport, phaseName, action,
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	}
	if resp.StatusCode >= 400 {
		return gjson.Result{}, services.Wrap(services.ErrApplication, phaseName, action,
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body)), nil)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, services.Wrap(services.ErrApplication, phaseName, action,
			"malformed response: "+snippet(body), nil)
	}

	envelope := gjson.ParseBytes(body)
	if success := envelope.Get("success"); success.Exists() && !success.Bool() {
		return gjson.Result{}, services.Wrap(services.ErrApplication, phaseName, action, failureMessage(envelope), nil)
	}
	if data := envelope.Get("data"); data.Exists() {
		return data, nil
	}
	return envelope, nil
}

func failureMessage(envelope gjson.Result) string {
	data := envelope.Get("data")
	if data.Type == gjson.String && data.String() != "" {
		return data.String()
	}
	if msg := firstOf(data, "message", "error").String(); msg != "" {
		return msg
	}
	if msg := firstOf(envelope, "message", "error").String(); msg != "" {
		return msg
	}
	return "server reported failure"
}

const snippetBytes = 200

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > snippetBytes {
		cut := snippetBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	if text == "" {
		return "(empty body)"
	}
	return text
}
