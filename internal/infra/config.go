package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	ConfigFile  string

	AssetBaseURL       string
	SourceAllowedHosts []string
	MediaDir           string
	RenderEndpoint     string
	RenderBudget       time.Duration
	// RenderProxyToken authenticates the dispatcher on the render proxy route.
	RenderProxyToken string

	PhotoPollAttempts int
	PhotoPollInterval time.Duration
	VideoPollAttempts int
	VideoPollInterval time.Duration

	PhotoWebhookURL        string
	PhotoWebhookSecret     string
	VideoWebhookURL        string
	VideoWebhookSecret     string
	WebhookSignatureHeader string
	WebhookTimeout         time.Duration

	SessionTTL         time.Duration
	CORSAllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// When STUDIO_CONFIG_FILE points to a YAML file its render, polling and webhook settings
// override the environment.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ConfigFile:  os.Getenv("STUDIO_CONFIG_FILE"),

		AssetBaseURL:       getEnv("ASSET_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		SourceAllowedHosts: splitList(os.Getenv("SOURCE_ALLOWED_HOSTS")),
		MediaDir:           os.Getenv("MEDIA_DIR"),
		RenderEndpoint:     getEnv("RENDER_ENDPOINT", fmt.Sprintf("http://localhost:%s/v1/studio/render", port)),
		RenderBudget:       time.Second * time.Duration(getEnvInt("RENDER_BUDGET_SECONDS", 35)),
		RenderProxyToken:   os.Getenv("RENDER_PROXY_TOKEN"),

		PhotoPollAttempts: getEnvInt("PHOTO_POLL_ATTEMPTS", 40),
		PhotoPollInterval: time.Millisecond * time.Duration(getEnvInt("PHOTO_POLL_INTERVAL_MS", 800)),
		VideoPollAttempts: getEnvInt("VIDEO_POLL_ATTEMPTS", 300),
		VideoPollInterval: time.Millisecond * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_MS", 2000)),

		PhotoWebhookURL:        os.Getenv("PHOTO_WEBHOOK_URL"),
		PhotoWebhookSecret:     os.Getenv("PHOTO_WEBHOOK_SECRET"),
		VideoWebhookURL:        os.Getenv("VIDEO_WEBHOOK_URL"),
		VideoWebhookSecret:     os.Getenv("VIDEO_WEBHOOK_SECRET"),
		WebhookSignatureHeader: getEnv("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
		WebhookTimeout:         time.Second * time.Duration(getEnvInt("WEBHOOK_TIMEOUT_SECONDS", 25)),

		SessionTTL:         time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 120)),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := url.ParseRequestURI(cfg.RenderEndpoint); err != nil {
		return nil, fmt.Errorf("RENDER_ENDPOINT is invalid: %w", err)
	}

	// Without a shared token only this process can call its own render proxy.
	if cfg.RenderProxyToken == "" {
		cfg.RenderProxyToken = uuid.NewString()
	}

	if floor := cfg.MinSessionTTL(); cfg.SessionTTL < floor {
		cfg.SessionTTL = floor
	}

	cfg.AssetBaseURL = strings.TrimRight(cfg.AssetBaseURL, "/")
	return cfg, nil
}

// MinSessionTTL is the longest a job can stay in flight plus a minute. Every job starts
// from a request that refreshes its session, so a TTL above this never evicts a session
// with a job in flight.
func (c *Config) MinSessionTTL() time.Duration {
	poll := time.Duration(c.PhotoPollAttempts+1) * c.PhotoPollInterval
	if v := time.Duration(c.VideoPollAttempts+1) * c.VideoPollInterval; v > poll {
		poll = v
	}
	return c.RenderBudget + poll + time.Minute
}

// fileConfig is the YAML overlay. Empty values keep the environment setting.
type fileConfig struct {
	Render struct {
		Endpoint string `yaml:"endpoint"`
		Budget   string `yaml:"budget"`
	} `yaml:"render"`
	Poll struct {
		Photo pollConfig `yaml:"photo"`
		Video pollConfig `yaml:"video"`
	} `yaml:"poll"`
	Webhook struct {
		PhotoURL        string `yaml:"photo_url"`
		VideoURL        string `yaml:"video_url"`
		SignatureHeader string `yaml:"signature_header"`
		Timeout         string `yaml:"timeout"`
	} `yaml:"webhook"`
	Assets struct {
		BaseURL      string   `yaml:"base_url"`
		AllowedHosts []string `yaml:"allowed_hosts"`
	} `yaml:"assets"`
	Session struct {
		TTL string `yaml:"ttl"`
	} `yaml:"session"`
}

type pollConfig struct {
	Attempts int    `yaml:"attempts"`
	Interval string `yaml:"interval"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&c.RenderEndpoint, fc.Render.Endpoint)
	setString(&c.PhotoWebhookURL, fc.Webhook.PhotoURL)
	setString(&c.VideoWebhookURL, fc.Webhook.VideoURL)
	setString(&c.WebhookSignatureHeader, fc.Webhook.SignatureHeader)
	setString(&c.AssetBaseURL, fc.Assets.BaseURL)
	if len(fc.Assets.AllowedHosts) > 0 {
		c.SourceAllowedHosts = fc.Assets.AllowedHosts
	}
	if fc.Poll.Photo.Attempts > 0 {
		c.PhotoPollAttempts = fc.Poll.Photo.Attempts
	}
	if fc.Poll.Video.Attempts > 0 {
		c.VideoPollAttempts = fc.Poll.Video.Attempts
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"render.budget", fc.Render.Budget, &c.RenderBudget},
		{"poll.photo.interval", fc.Poll.Photo.Interval, &c.PhotoPollInterval},
		{"poll.video.interval", fc.Poll.Video.Interval, &c.VideoPollInterval},
		{"webhook.timeout", fc.Webhook.Timeout, &c.WebhookTimeout},
		{"session.ttl", fc.Session.TTL, &c.SessionTTL},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || v <= 0 {
			return fmt.Errorf("config file %s: invalid %s %q", path, d.field, d.raw)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
