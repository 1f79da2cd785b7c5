// Package imagemeta measures source images so auto framing can pick an aspect ratio.
package imagemeta

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"studio/internal/infra"
	"studio/internal/render"
)

// headerBytes is enough for the decoders to find the image dimensions.
const headerBytes = 512 << 10

// Options configures a Measurer. Allow, when set, must approve a URL before it is
// downloaded.
type Options struct {
	HTTPClient *http.Client
	TTL        time.Duration
	FailureTTL time.Duration
	Timeout    time.Duration
	Allow      func(url string) bool
	Logger     *infra.Logger
}

// Measurer downloads the head of an image and decodes its size. Sizes are cached per URL
// for TTL; failed measurements only for FailureTTL.
type Measurer struct {
	client     *http.Client
	cache      *cache.Cache
	failureTTL time.Duration
	timeout    time.Duration
	allow      func(string) bool
	logger     *infra.Logger
}

// NewMeasurer applies defaults.
func NewMeasurer(opts Options) *Measurer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	failureTTL := opts.FailureTTL
	if failureTTL <= 0 {
		failureTTL = 30 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Measurer{
		client:     client,
		cache:      cache.New(ttl, 2*ttl),
		failureTTL: failureTTL,
		timeout:    timeout,
		allow:      opts.Allow,
		logger:     logger,
	}
}

// Measure returns the dimensions of the image at url. Unknown sizes come back as zero
// dimensions, never as an error, so callers fall back to the square preset.
func (m *Measurer) Measure(ctx context.Context, url string) render.Dimensions {
	url = strings.TrimSpace(url)
	if url == "" {
		return render.Dimensions{}
	}
	if m.allow != nil && !m.allow(url) {
		m.logger.Warn().Str("url", url).Msg("imagemeta: host not allowed")
		return render.Dimensions{}
	}
	if v, ok := m.cache.Get(url); ok {
		return v.(render.Dimensions)
	}
	dims, err := m.fetch(ctx, url)
	if err != nil {
		m.logger.Debug().Err(err).Str("url", url).Msg("imagemeta: measure failed")
		if ctx.Err() == nil {
			m.cache.Set(url, render.Dimensions{}, m.failureTTL)
		}
		return render.Dimensions{}
	}
	m.cache.Set(url, dims, cache.DefaultExpiration)
	return dims
}

func (m *Measurer) fetch(ctx context.Context, url string) (render.Dimensions, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return render.Dimensions{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return render.Dimensions{}, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return render.Dimensions{}, fmt.Errorf("download status %d", resp.StatusCode)
	}
	cfg, _, err := image.DecodeConfig(io.LimitReader(resp.Body, headerBytes))
	if err != nil {
		return render.Dimensions{}, fmt.Errorf("decode: %w", err)
	}
	return render.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}
