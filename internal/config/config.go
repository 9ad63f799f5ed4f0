package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App        AppConfig
	Telegram   TelegramConfig
	OpenAI     OpenAIConfig
	Sqlite     SqliteConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Escalation EscalationConfig
}

// AppConfig controls the HTTP ops surface.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// TelegramConfig holds chat transport values.
type TelegramConfig struct {
	Token          string
	ManagerChatID  int64
	PollTimeoutSec int
	BaseURL        string
}

// OpenAIConfig holds guidance generator values.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SqliteConfig holds default store values.
type SqliteConfig struct {
	Path string
}

// PostgresConfig holds optional DB connection values. When DSN is set
// the Postgres store is used instead of SQLite.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds optional scheduler-mirror connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EscalationConfig controls the auto-assign window, roster and the
// reference timezone used to bucket tickets into calendar days.
type EscalationConfig struct {
	WindowMinutes int
	Engineers     domain.Roster
	Timezone      string
}

// Load reads configuration from environment variables, applying
// defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	managerRaw := os.Getenv("MANAGER_CHAT_ID")
	if managerRaw == "" {
		return nil, fmt.Errorf("MANAGER_CHAT_ID environment variable is required")
	}
	managerChatID, err := strconv.ParseInt(managerRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MANAGER_CHAT_ID: %w", err)
	}

	engineers, err := parseEngineers(os.Getenv("ENGINEERS"))
	if err != nil {
		return nil, err
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "helpdesk-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Telegram: TelegramConfig{
			Token:          token,
			ManagerChatID:  managerChatID,
			PollTimeoutSec: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),
			BaseURL:        getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		},
		Sqlite: SqliteConfig{
			Path: getEnv("SQLITE_PATH", "data/bot.db"),
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns: int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Escalation: EscalationConfig{
			WindowMinutes: getEnvAsInt("ESCALATION_WINDOW_MINUTES", 10),
			Engineers:     engineers,
			Timezone:      getEnv("REPORT_TIMEZONE", "Asia/Ulaanbaatar"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// Window returns the auto-assign delay.
func (e EscalationConfig) Window() time.Duration {
	if e.WindowMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(e.WindowMinutes) * time.Minute
}

// Location resolves the reference timezone, falling back to UTC when
// the zone name is unknown.
func (e EscalationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseEngineers(raw string) (domain.Roster, error) {
	if raw == "" {
		return nil, nil
	}
	var payload []struct {
		Name   string `json:"name"`
		ChatID int64  `json:"chat_id"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("ENGINEERS must contain valid JSON: %w", err)
	}
	roster := make(domain.Roster, 0, len(payload))
	for _, item := range payload {
		if item.Name == "" || item.ChatID == 0 {
			return nil, fmt.Errorf("each engineer definition must contain 'name' and 'chat_id'")
		}
		roster = append(roster, domain.Engineer{Name: item.Name, ChatID: item.ChatID})
	}
	return roster, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
