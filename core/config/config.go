package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel         OTelConfig
	GitHub       GitHubConfig
	GitLab       GitLabConfig
	LLM          LLMConfig
	Pipeline     PipelineConfig
	State        StateConfig
	Action       ActionConfig
	Env          string
	Port         string
	SpecDir      string
	BotUsername  string
	MaxLoops     int
	MaxRevisions int
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type GitHubConfig struct {
	Token         string
	APIURL        string
	WebhookSecret string
}

type GitLabConfig struct {
	Token         string
	BaseURL       string // Optional: self-hosted instance, e.g. https://gitlab.example.com
	WebhookSecret string
}

type LLMConfig struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string
	BaseURL   string // Optional: for custom endpoints
	Model     string // Optional: provider default when empty
	MaxTokens int
}

type PipelineConfig struct {
	RedisURL        string
	RedisStream     string
	RedisGroup      string
	RedisDLQStream  string
	RedisConsumer   string
	TraceHeaderName string
	IngestToken     string
	MaxAttempts     int
	DedupeTTL       time.Duration
}

type StateConfig struct {
	Backend   string // "comment" (default) or "redis"
	KeyPrefix string
}

// ActionConfig carries the GitHub Actions runner contract for one-shot mode.
type ActionConfig struct {
	EventPath string
	EventName string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeAction ServiceType = "action"
)

const (
	StateBackendComment = "comment"
	StateBackendRedis   = "redis"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the webhook server
//   - .env.worker for the background worker
//   - .env.action for the one-shot CLI runner
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("CONCIERGE_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:          getEnv("CONCIERGE_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		SpecDir:      getEnv("SUPPORTBOT_SPEC_DIR", ".supportbot"),
		BotUsername:  getEnv("SUPPORTBOT_BOT_USERNAME", "github-actions[bot]"),
		MaxLoops:     getEnvInt("SUPPORTBOT_MAX_LOOPS", 3),
		MaxRevisions: getEnvInt("SUPPORTBOT_MAX_BRIEF_ITERATIONS", 2),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "concierge"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		GitHub: GitHubConfig{
			Token:         getEnv("GITHUB_TOKEN", ""),
			APIURL:        getEnv("GITHUB_API_URL", "https://api.github.com"),
			WebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),
		},
		GitLab: GitLabConfig{
			Token:         getEnv("GITLAB_TOKEN", ""),
			BaseURL:       getEnv("GITLAB_BASE_URL", ""),
			WebhookSecret: getEnv("GITLAB_WEBHOOK_SECRET", ""),
		},
		LLM: LLMConfig{
			Provider:  getEnv("LLM_PROVIDER", "openai"),
			APIKey:    getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:   getEnv("LLM_BASE_URL", ""),
			Model:     getEnv("LLM_MODEL", ""),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 2000),
		},
		Pipeline: PipelineConfig{
			RedisURL:        getEnv("REDIS_URL", ""),
			RedisStream:     getEnv("REDIS_STREAM", "concierge_events"),
			RedisGroup:      getEnv("REDIS_CONSUMER_GROUP", "concierge_group"),
			RedisDLQStream:  getEnv("REDIS_DLQ_STREAM", "concierge_events_dlq"),
			RedisConsumer:   getEnv("REDIS_CONSUMER_NAME", "concierge-worker"),
			TraceHeaderName: getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
			IngestToken:     getEnv("INGEST_API_TOKEN", ""),
			MaxAttempts:     getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
			DedupeTTL:       getEnvDuration("DEDUPE_TTL", 24*time.Hour),
		},
		State: StateConfig{
			Backend:   getEnv("STATE_BACKEND", StateBackendComment),
			KeyPrefix: getEnv("REDIS_STATE_PREFIX", "concierge:state"),
		},
		Action: ActionConfig{
			EventPath: getEnv("GITHUB_EVENT_PATH", ""),
			EventName: getEnv("GITHUB_EVENT_NAME", ""),
		},
	}

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	if c.State.Backend != StateBackendComment && c.State.Backend != StateBackendRedis {
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendComment, StateBackendRedis, c.State.Backend)
	}
	if c.State.Backend == StateBackendRedis && c.Pipeline.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when STATE_BACKEND=redis")
	}

	switch serviceType {
	case ServiceTypeServer:
		if c.Pipeline.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
		if c.GitHub.WebhookSecret == "" && c.GitLab.WebhookSecret == "" {
			return fmt.Errorf("GITHUB_WEBHOOK_SECRET or GITLAB_WEBHOOK_SECRET is required")
		}
	case ServiceTypeWorker:
		if c.Pipeline.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
		if !c.LLM.Enabled() {
			return fmt.Errorf("LLM_API_KEY and a supported LLM_PROVIDER are required")
		}
		if !c.GitHub.Enabled() && !c.GitLab.Enabled() {
			return fmt.Errorf("GITHUB_TOKEN or GITLAB_TOKEN is required")
		}
	case ServiceTypeAction:
		if !c.GitHub.Enabled() {
			return fmt.Errorf("GITHUB_TOKEN is required")
		}
		if !c.LLM.Enabled() {
			return fmt.Errorf("LLM_API_KEY and a supported LLM_PROVIDER are required")
		}
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c GitHubConfig) Enabled() bool {
	return c.Token != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c StateConfig) UsesRedis() bool {
	return c.Backend == StateBackendRedis
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}


func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
