package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/leofalp/chatflow/patterns/graph"
)

// ErrMissingAPIKey is returned by Validate when OPENAI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Defaults.
const (
	DefaultPort         = 8014
	DefaultTimezone     = "America/Santiago"
	DefaultHistoryLimit = 31
	DefaultNodeTimeout  = 60 * time.Second
	DefaultDatabase     = "chatflow"
	DefaultLLMRetries   = 2
)

// Config is the process configuration, read from the environment.
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	DatabaseURL   string

	NotifyServer string
	MessengerURL string
	PublicName   string

	Port      int
	AgentID   string
	SessionID string
	Timezone  string

	FollowUpCron  string
	HistoryLimit  int
	MaxIterations int
	NodeTimeout   time.Duration
	LLMRetries    int
}

// Load reads the optional .env files (".env" when none are given) and then
// the environment. Variables already set in the environment win over the
// files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which has the signature of
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, fallback string) string {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
		return fallback
	}

	cfg := Config{
		OpenAIAPIKey:  get("OPENAI_API_KEY", ""),
		OpenAIBaseURL: get("OPENAI_API_BASE_URL", ""),
		MongoURI:      get("MONGO_URI", ""),
		MongoDatabase: get("MONGO_DATABASE", DefaultDatabase),
		RedisAddr:     get("REDIS_ADDR", ""),
		DatabaseURL:   get("DATABASE_URL", ""),
		NotifyServer:  get("NOTIFY_SERVER", ""),
		MessengerURL:  get("MESSENGER_URL", ""),
		PublicName:    get("PUBLIC_NAME", ""),
		AgentID:       get("AGENT_ID", ""),
		SessionID:     get("SESSION_ID", ""),
		Timezone:      get("TIMEZONE", DefaultTimezone),
		FollowUpCron:  get("FOLLOWUP_CRON", "1 * * * *"),
	}

	var err error
	if cfg.Port, err = intVar(get, "PORT", DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit, err = intVar(get, "HISTORY_LIMIT", DefaultHistoryLimit); err != nil {
		return Config{}, err
	}
	if cfg.MaxIterations, err = intVar(get, "MAX_ITERATIONS", graph.DefaultMaxIterations); err != nil {
		return Config{}, err
	}
	if cfg.LLMRetries, err = intVar(get, "LLM_RETRIES", DefaultLLMRetries); err != nil {
		return Config{}, err
	}
	if raw := get("NODE_TIMEOUT", ""); raw != "" {
		if cfg.NodeTimeout, err = time.ParseDuration(raw); err != nil {
			return Config{}, fmt.Errorf("NODE_TIMEOUT: %w", err)
		}
	} else {
		cfg.NodeTimeout = DefaultNodeTimeout
	}
	return cfg, nil
}

func intVar(get func(string, string) string, key string, fallback int) (int, error) {
	raw := get(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

// Validate checks what every command that talks to the model needs.
func (c Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.HistoryLimit < 0 || c.MaxIterations < 0 {
		return fmt.Errorf("HISTORY_LIMIT and MAX_ITERATIONS must not be negative")
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
