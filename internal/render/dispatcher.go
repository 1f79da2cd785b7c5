package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
)

// DefaultBudget is the wall-clock budget of one dispatch.
const DefaultBudget = 35 * time.Second

// Reasons attached to accepted outcomes.
const (
	ReasonLocalTimeout   = "local_timeout"
	ReasonEdgeTimeout    = "edge_timeout"
	ReasonGatewayTimeout = "gateway_timeout"
	ReasonRequestTimeout = "request_timeout"
)

// StatusEdgeTimeout is the status an edge proxy answers with when the origin is slow.
const StatusEdgeTimeout = 524

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Outcome is the result of one dispatch. Accepted means the job was handed off but no
// result is available yet; Result is only meaningful when Accepted is false.
type Outcome struct {
	Accepted   bool
	Reason     string
	StatusCode int
	Result     NormalizedResult
}

// TokenHeader carries the shared render proxy token.
const TokenHeader = "X-Render-Token"

// Options configures the dispatcher. Token is sent in TokenHeader when set.
type Options struct {
	Endpoint   string
	Budget     time.Duration
	Token      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Dispatcher posts requests to the render endpoint under a hard budget.
type Dispatcher struct {
	endpoint   string
	budget     time.Duration
	token      string
	httpClient *http.Client
	logger     *infra.Logger
}

type wireRequest struct {
	Mode    domain.Mode `json:"mode"`
	Payload any         `json:"payload"`
}

type callResult struct {
	status int
	body   []byte
	err    error
}

// NewDispatcher applies defaults. The HTTP client must not carry its own timeout; the
// dispatcher budget is the only deadline.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, errors.New("render: endpoint is required")
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Dispatcher{endpoint: endpoint, budget: budget, token: opts.Token, httpClient: httpClient, logger: logger}, nil
}

// Dispatch sends req and races the call against the budget timer. The losing side is
// cancelled: a fired timer aborts the in-flight call and yields an accepted outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	body, err := json.Marshal(wireRequest{Mode: req.Mode, Payload: req.Payload})
	if err != nil {
		return Outcome{}, &domain.DispatchFailure{Err: fmt.Errorf("encode request: %w", err)}
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan callResult, 1)
	go func() {
		done <- d.call(callCtx, req.JobID, body)
	}()

	timer := time.NewTimer(d.budget)
	defer timer.Stop()

	select {
	case <-timer.C:
		cancel()
		d.logger.Warn().
			Str("job_id", req.JobID).
			Str("mode", string(req.Mode)).
			Dur("budget", d.budget).
			Msg("render: dispatch budget expired, continuing via polling")
		return Outcome{Accepted: true, Reason: ReasonLocalTimeout}, nil
	case <-ctx.Done():
		return Outcome{}, &domain.DispatchFailure{Err: ctx.Err()}
	case res := <-done:
		return d.settle(ctx, req, res)
	}
}

func (d *Dispatcher) settle(ctx context.Context, req Request, res callResult) (Outcome, error) {
	if res.err != nil {
		if ctx.Err() != nil {
			return Outcome{}, &domain.DispatchFailure{Err: ctx.Err()}
		}
		return Outcome{}, &domain.DispatchFailure{Err: res.err}
	}
	if reason, ok := stillProcessing(res.status); ok {
		d.logger.Warn().
			Str("job_id", req.JobID).
			Int("status", res.status).
			Msg("render: upstream timed out, job may still complete")
		return Outcome{Accepted: true, Reason: reason, StatusCode: res.status}, nil
	}
	if res.status < 200 || res.status >= 300 {
		return Outcome{}, &domain.DispatchFailure{
			StatusCode: res.status,
			Err:        fmt.Errorf("render endpoint responded %d: %s", res.status, snippet(res.body)),
		}
	}
	result := Normalize(res.body)
	d.logger.Debug().
		Str("job_id", req.JobID).
		Int("status", res.status).
		Bool("success", result.Success).
		Msg("render: dispatch completed")
	return Outcome{StatusCode: res.status, Result: result}, nil
}

func (d *Dispatcher) call(ctx context.Context, jobID string, body []byte) callResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return callResult{err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if jobID != "" {
		httpReq.Header.Set("X-Job-ID", jobID)
	}
	if d.token != "" {
		httpReq.Header.Set(TokenHeader, d.token)
	}
	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return callResult{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return callResult{status: resp.StatusCode, err: fmt.Errorf("read response: %w", err)}
	}
	return callResult{status: resp.StatusCode, body: raw}
}

// stillProcessing lists the statuses treated as "accepted, no result yet".
func stillProcessing(status int) (string, bool) {
	switch status {
	case StatusEdgeTimeout:
		return ReasonEdgeTimeout, true
	case http.StatusGatewayTimeout:
		return ReasonGatewayTimeout, true
	case http.StatusRequestTimeout:
		return ReasonRequestTimeout, true
	default:
		return "", false
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
