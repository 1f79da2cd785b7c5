// Package webhook forwards studio render requests to the per-mode automation webhook and
// translates slow upstreams into accepted responses the poller can pick up from.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
)

// DefaultTimeout is the upstream budget of one forward.
const DefaultTimeout = 25 * time.Second

// DefaultSignatureHeader carries the per-mode secret.
const DefaultSignatureHeader = "X-Webhook-Signature"

const statusCloudflareTimeout = 524

const maxUpstreamBytes = 4 << 20

// Endpoint is one mode's webhook.
type Endpoint struct {
	URL    string
	Secret string
}

func (e Endpoint) configured() bool {
	return strings.TrimSpace(e.URL) != "" && strings.TrimSpace(e.Secret) != ""
}

// Options configures the forwarder.
type Options struct {
	Photo           Endpoint
	Video           Endpoint
	SignatureHeader string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Logger          *infra.Logger
}

// Forwarder proxies a render payload to the webhook of its mode.
type Forwarder struct {
	endpoints       map[domain.Mode]Endpoint
	signatureHeader string
	timeout         time.Duration
	httpClient      *http.Client
	logger          *infra.Logger
}

// Reply is the status and JSON body returned to the caller.
type Reply struct {
	Status int
	Body   any
}

// Accepted is the body of a 202 reply for an upstream that is still working.
type Accepted struct {
	Status         string `json:"status"`
	UpstreamStatus *int   `json:"upstreamStatus"`
	Reason         string `json:"reason"`
}

// ErrorBody is the body of a failed forward.
type ErrorBody struct {
	Error string `json:"error"`
}

// NewForwarder applies defaults.
func NewForwarder(opts Options) *Forwarder {
	header := strings.TrimSpace(opts.SignatureHeader)
	if header == "" {
		header = DefaultSignatureHeader
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
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
	return &Forwarder{
		endpoints:       map[domain.Mode]Endpoint{domain.ModePhoto: opts.Photo, domain.ModeVideo: opts.Video},
		signatureHeader: header,
		timeout:         timeout,
		httpClient:      httpClient,
		logger:          logger,
	}
}

// Configured reports whether mode has both a URL and a secret.
func (f *Forwarder) Configured(mode domain.Mode) bool {
	return f.endpoints[mode].configured()
}

// Forward posts payload to the webhook of mode. An empty payload is sent as {}.
func (f *Forwarder) Forward(ctx context.Context, mode domain.Mode, payload json.RawMessage) Reply {
	if !mode.Valid() {
		return Reply{Status: http.StatusBadRequest, Body: ErrorBody{Error: "Invalid mode."}}
	}
	ep := f.endpoints[mode]
	if !ep.configured() {
		f.logger.Error().Str("mode", string(mode)).Msg("webhook: configuration missing")
		return Reply{Status: http.StatusInternalServerError, Body: ErrorBody{Error: "Webhook configuration missing."}}
	}
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = json.RawMessage(`{}`)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		f.logger.Error().Err(err).Str("mode", string(mode)).Msg("webhook: build request")
		return unreachable()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(f.signatureHeader, ep.Secret)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			f.logger.Warn().Str("mode", string(mode)).Dur("elapsed", time.Since(start)).Msg("webhook: upstream timeout")
			return Reply{Status: http.StatusAccepted, Body: Accepted{Status: "accepted", Reason: "upstream_timeout"}}
		}
		f.logger.Error().Err(err).Str("mode", string(mode)).Msg("webhook: upstream unreachable")
		return unreachable()
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Reply{Status: http.StatusAccepted, Body: Accepted{Status: "accepted", Reason: "upstream_timeout"}}
		}
		f.logger.Error().Err(err).Str("mode", string(mode)).Msg("webhook: read upstream body")
		return unreachable()
	}

	f.logger.Debug().Str("mode", string(mode)).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("webhook: upstream replied")

	if resp.StatusCode == statusCloudflareTimeout {
		status := resp.StatusCode
		return Reply{Status: http.StatusAccepted, Body: Accepted{Status: "accepted", UpstreamStatus: &status, Reason: "cloudflare_timeout"}}
	}
	return Reply{Status: resp.StatusCode, Body: parseBody(raw)}
}

// parseBody keeps JSON bodies as-is and wraps anything else as {"raw": text}.
func parseBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return map[string]string{"raw": string(raw)}
}

func unreachable() Reply {
	return Reply{Status: http.StatusBadGateway, Body: ErrorBody{Error: "Failed to reach upstream webhook."}}
}
