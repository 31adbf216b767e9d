// Package config captures runtime configuration for the chat server,
// resolved from CLI flags and environment variables, with sensible
// defaults for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port  int
	DBURL string
	Debug bool

	JWTKey   string
	HFAPIKey string
	HFAPIURL string

	DataDir string

	AMQPURL      string
	AMQPExchange string

	MaxConnectionsPerUser int
	OutboundQueueCapacity int
	ContextBudgetChars    int

	RateSendMessagePerMin int
	RateQueryPerMin       int
	RateInvitePerMin      int
}

// Default returns the configuration a brand new deployment gets
// before any env var or flag is applied.
func Default() Config {
	dataDir := getString("RELAYCHAT_DATA_DIR", defaultDataDir())
	return Config{
		Port:     getInt("PORT", 3000),
		DBURL:    getString("DATABASE_URL", fmt.Sprintf("sqlite://%s", filepath.Join(dataDir, "relaychat.db"))),
		Debug:    getBool("RELAYCHAT_DEBUG", false),
		JWTKey:   getString("JWT_KEY", ""),
		HFAPIKey: getString("HF_API_KEY", ""),
		HFAPIURL: getString("HF_API_URL", "https://api-inference.huggingface.co/models/meta-llama/Llama-3.1-8B-Instruct/v1/chat/completions"),
		DataDir:  dataDir,

		AMQPURL:      getString("AMQP_URL", ""),
		AMQPExchange: getString("AMQP_EXCHANGE", "relaychat.audit"),

		MaxConnectionsPerUser: getInt("RELAYCHAT_MAX_CONNS_PER_USER", 8),
		OutboundQueueCapacity: getInt("RELAYCHAT_OUTBOUND_QUEUE", 64),
		ContextBudgetChars:    getInt("RELAYCHAT_CONTEXT_BUDGET_CHARS", 5000),

		RateSendMessagePerMin: getInt("RELAYCHAT_RATE_SEND_MESSAGE", 20),
		RateQueryPerMin:       getInt("RELAYCHAT_RATE_QUERY", 60),
		RateInvitePerMin:      getInt("RELAYCHAT_RATE_INVITE", 5),
	}
}

// Validate checks the invariants the CLI entrypoint needs before it
// will start serving: a signing key is mandatory. Only JWT_KEY is
// checked; HF_API_KEY is not validated here or elsewhere at startup.
func (c Config) Validate() error {
	if c.JWTKey == "" {
		return fmt.Errorf("JWT_KEY is required")
	}
	return nil
}

// defaultDataDir computes a SQLite file location under the platform
// data directory, path-computed from the user's home, rather than the
// process's current working directory. Falls back to "." if the home
// directory can't be resolved (e.g. no $HOME in a stripped-down
// container).
func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "relaychat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "relaychat")
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
