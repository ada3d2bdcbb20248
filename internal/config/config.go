// Package config loads echo-agent configuration. Precedence, lowest to
// highest: built-in defaults, optional YAML config file, environment
// variables. A .env file in the working directory is loaded first so
// local development matches deployed environments.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the complete echo-agent configuration.
type Config struct {
	// HTTP is the listen address of the API server.
	HTTP HTTPConfig `yaml:"http"`

	// Database is the Postgres row store, also the source of the
	// change feed (LISTEN/NOTIFY).
	Database DatabaseConfig `yaml:"database"`

	// LLM selects and configures the inference backend.
	LLM LLMConfig `yaml:"llm"`

	// Embeddings configures the text-encoder endpoint.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Feed configures the change-feed subscriber.
	Feed FeedConfig `yaml:"feed"`

	// Agent configures the code-generation orchestrator.
	Agent AgentConfig `yaml:"agent"`

	// RunnerURL is the best-effort downstream trigger hit after an
	// escalation creates a task. Empty disables the trigger.
	RunnerURL string `yaml:"runner_url"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// GenerateRPM caps /generate requests per client IP per minute.
	GenerateRPM int `yaml:"generate_rpm"`
}

// DatabaseConfig configures the pgx pool and the feed connection.
type DatabaseConfig struct {
	// URL, when set, wins over the discrete fields.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString returns the pgx connection string.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// LLMConfig selects the inference backend. Backend "local" talks to an
// OpenAI-compatible server (llama.cpp); "anthropic" uses the hosted API.
type LLMConfig struct {
	Backend string `yaml:"backend"`

	// BaseURL, Model apply to the local backend.
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// AnthropicModel applies to the anthropic backend. The API key is
	// only ever read from ANTHROPIC_API_KEY.
	AnthropicModel string `yaml:"anthropic_model"`

	// SynthesisTimeout bounds one code-synthesis call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

// EmbeddingsConfig configures the text encoder.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// FeedConfig configures the change-feed subscriber and its supervisor.
type FeedConfig struct {
	// Channel is the NOTIFY channel carrying comment inserts.
	Channel string `yaml:"channel"`

	// QueueSize bounds the handoff channel between the delivery
	// connection and the worker pool.
	QueueSize int `yaml:"queue_size"`

	// Workers bounds concurrent comment processing.
	Workers int `yaml:"workers"`

	// RestartDelay is the fixed pause before the supervisor restarts
	// a crashed subscription.
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// AgentConfig configures workspaces and VCS interaction.
type AgentConfig struct {
	// WorkspaceRoot is where ephemeral clones are created. Empty
	// means the OS temp directory.
	WorkspaceRoot string `yaml:"workspace_root"`

	// CloneTimeout bounds the shallow clone.
	CloneTimeout time.Duration `yaml:"clone_timeout"`

	// MaxTreeFiles truncates the file list handed to synthesis.
	MaxTreeFiles int `yaml:"max_tree_files"`

	// StaleTaskAge marks processing tasks with older heartbeats as
	// failed before a new run starts.
	StaleTaskAge time.Duration `yaml:"stale_task_age"`

	// CommitName and CommitEmail are the workspace-scoped git identity.
	CommitName  string `yaml:"commit_name"`
	CommitEmail string `yaml:"commit_email"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:        ":8000",
			GenerateRPM: 6,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "echo",
			User:     "echo",
			SSLMode:  "prefer",
		},
		LLM: LLMConfig{
			Backend:          "local",
			BaseURL:          "http://localhost:8080",
			Model:            "qwen2.5-coder-7b-instruct",
			AnthropicModel:   "claude-sonnet-4-5-20250929",
			SynthesisTimeout: 10 * time.Minute,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL: "http://localhost:8080",
			Model:   "all-MiniLM-L6-v2",
		},
		Feed: FeedConfig{
			Channel:      "comments_insert",
			QueueSize:    256,
			Workers:      4,
			RestartDelay: 5 * time.Second,
		},
		Agent: AgentConfig{
			CloneTimeout: 2 * time.Minute,
			MaxTreeFiles: 300,
			StaleTaskAge: 10 * time.Minute,
			CommitName:   "Echo Agent",
			CommitEmail:  "agent@echohq.dev",
		},
	}
}

// Load builds the effective configuration. path is an optional YAML
// file; empty means defaults plus environment only.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it only exists in development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg fields from ECHO_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.HTTP.Addr, "ECHO_HTTP_ADDR")
	setInt(&cfg.HTTP.GenerateRPM, "ECHO_GENERATE_RPM")

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Host, "ECHO_DB_HOST")
	setInt(&cfg.Database.Port, "ECHO_DB_PORT")
	setString(&cfg.Database.Database, "ECHO_DB_NAME")
	setString(&cfg.Database.User, "ECHO_DB_USER")
	setString(&cfg.Database.Password, "ECHO_DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "ECHO_DB_SSLMODE")

	setString(&cfg.LLM.Backend, "ECHO_LLM_BACKEND")
	setString(&cfg.LLM.BaseURL, "ECHO_LLM_URL")
	setString(&cfg.LLM.Model, "ECHO_LLM_MODEL")
	setString(&cfg.LLM.AnthropicModel, "ECHO_ANTHROPIC_MODEL")
	setDuration(&cfg.LLM.SynthesisTimeout, "ECHO_SYNTHESIS_TIMEOUT")

	setString(&cfg.Embeddings.BaseURL, "ECHO_EMBED_URL")
	setString(&cfg.Embeddings.Model, "ECHO_EMBED_MODEL")

	setString(&cfg.Feed.Channel, "ECHO_FEED_CHANNEL")
	setInt(&cfg.Feed.QueueSize, "ECHO_FEED_QUEUE")
	setInt(&cfg.Feed.Workers, "ECHO_FEED_WORKERS")
	setDuration(&cfg.Feed.RestartDelay, "ECHO_FEED_RESTART_DELAY")

	setString(&cfg.Agent.WorkspaceRoot, "ECHO_WORKSPACE_ROOT")
	setDuration(&cfg.Agent.CloneTimeout, "ECHO_CLONE_TIMEOUT")
	setInt(&cfg.Agent.MaxTreeFiles, "ECHO_MAX_TREE_FILES")
	setDuration(&cfg.Agent.StaleTaskAge, "ECHO_STALE_TASK_AGE")
	setString(&cfg.Agent.CommitName, "ECHO_COMMIT_NAME")
	setString(&cfg.Agent.CommitEmail, "ECHO_COMMIT_EMAIL")

	setString(&cfg.RunnerURL, "ECHO_RUNNER_URL")
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	switch c.LLM.Backend {
	case "local", "anthropic", "none":
	default:
		return fmt.Errorf("llm.backend must be local, anthropic, or none (got %q)", c.LLM.Backend)
	}
	if c.Feed.QueueSize <= 0 {
		return fmt.Errorf("feed.queue_size must be positive (got %d)", c.Feed.QueueSize)
	}
	if c.Feed.Workers <= 0 {
		return fmt.Errorf("feed.workers must be positive (got %d)", c.Feed.Workers)
	}
	if c.Agent.CloneTimeout <= 0 {
		return fmt.Errorf("agent.clone_timeout must be positive (got %v)", c.Agent.CloneTimeout)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
