// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort        string
	WorkerMetricsPort string // 空ならワーカーは/metricsを公開しない
	CORSAllowedOrigin string
	IdentityHeader    string
	LogLevel          string

	// Rate Limit（req/min/user）
	RateLimitGeneral    int
	RateLimitTaskCreate int

	// Oracle
	AnthropicAPIKey string
	OracleModel     string
	OracleBaseURL   string
	OracleTimeout   time.Duration
	OracleMaxTokens int

	// Gamification
	DailyGoalDefault int

	// Reminder
	ReminderSweepInterval time.Duration
	ReminderMaxConcurrent int
	ReminderRetentionDays int
	CleanupInterval       time.Duration

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// OracleEnabled はオラクルのAPIキーが設定されているかを返す。
func (c *Config) OracleEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SMTPEnabled はSMTP送信が設定されているかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// fileConfig はCONFIG_FILEで指定されたTOMLファイルの構造。
type fileConfig struct {
	DatabaseURL string `toml:"database_url"`

	Server struct {
		Port              string `toml:"port"`
		WorkerMetricsPort string `toml:"worker_metrics_port"`
		CORSAllowedOrigin string `toml:"cors_allowed_origin"`
		IdentityHeader    string `toml:"identity_header"`
		LogLevel          string `toml:"log_level"`
	} `toml:"server"`

	RateLimit struct {
		General    int `toml:"general"`
		TaskCreate int `toml:"task_create"`
	} `toml:"rate_limit"`

	Oracle struct {
		APIKey    string `toml:"api_key"`
		Model     string `toml:"model"`
		BaseURL   string `toml:"base_url"`
		Timeout   string `toml:"timeout"`
		MaxTokens int    `toml:"max_tokens"`
	} `toml:"oracle"`

	Gamification struct {
		DailyGoal int `toml:"daily_goal"`
	} `toml:"gamification"`

	Reminder struct {
		SweepInterval   string `toml:"sweep_interval"`
		MaxConcurrent   int    `toml:"max_concurrent"`
		RetentionDays   int    `toml:"retention_days"`
		CleanupInterval string `toml:"cleanup_interval"`
	} `toml:"reminder"`

	SMTP struct {
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		Username string `toml:"username"`
		Password string `toml:"password"`
		From     string `toml:"from"`
	} `toml:"smtp"`
}

// defaults は既定値のConfigを返す。
func defaults() *Config {
	return &Config{
		ServerPort:            "8080",
		CORSAllowedOrigin:     "http://localhost:5173",
		IdentityHeader:        "X-User-Id",
		LogLevel:              "info",
		RateLimitGeneral:      120,
		RateLimitTaskCreate:   30,
		OracleTimeout:         10 * time.Second,
		DailyGoalDefault:      500,
		ReminderSweepInterval: time.Minute,
		ReminderMaxConcurrent: 5,
		ReminderRetentionDays: 30,
		CleanupInterval:       24 * time.Hour,
		SMTPPort:              587,
	}
}

// Load は既定値、CONFIG_FILEのTOML、環境変数の順に重ねてConfigを読み込む。
// 必須項目が未設定の場合やTOMLファイルが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		missing = append(missing, "SMTP_FROM")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// applyFile はTOMLファイルの値のうち設定されているものでcfgを上書きする。
func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.ServerPort, fc.Server.Port)
	setString(&cfg.WorkerMetricsPort, fc.Server.WorkerMetricsPort)
	setString(&cfg.CORSAllowedOrigin, fc.Server.CORSAllowedOrigin)
	setString(&cfg.IdentityHeader, fc.Server.IdentityHeader)
	setString(&cfg.LogLevel, fc.Server.LogLevel)
	setInt(&cfg.RateLimitGeneral, fc.RateLimit.General)
	setInt(&cfg.RateLimitTaskCreate, fc.RateLimit.TaskCreate)
	setString(&cfg.AnthropicAPIKey, fc.Oracle.APIKey)
	setString(&cfg.OracleModel, fc.Oracle.Model)
	setString(&cfg.OracleBaseURL, fc.Oracle.BaseURL)
	setInt(&cfg.OracleMaxTokens, fc.Oracle.MaxTokens)
	setInt(&cfg.DailyGoalDefault, fc.Gamification.DailyGoal)
	setInt(&cfg.ReminderMaxConcurrent, fc.Reminder.MaxConcurrent)
	setInt(&cfg.ReminderRetentionDays, fc.Reminder.RetentionDays)
	setString(&cfg.SMTPHost, fc.SMTP.Host)
	setInt(&cfg.SMTPPort, fc.SMTP.Port)
	setString(&cfg.SMTPUsername, fc.SMTP.Username)
	setString(&cfg.SMTPPassword, fc.SMTP.Password)
	setString(&cfg.SMTPFrom, fc.SMTP.From)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"oracle.timeout", fc.Oracle.Timeout, &cfg.OracleTimeout},
		{"reminder.sweep_interval", fc.Reminder.SweepInterval, &cfg.ReminderSweepInterval},
		{"reminder.cleanup_interval", fc.Reminder.CleanupInterval, &cfg.CleanupInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid duration for %s in %s: %q", d.key, path, d.raw)
		}
		*d.dst = v
	}

	return nil
}

// applyEnv は環境変数でcfgを上書きする。不正な値は無視して現在値を維持する。
func applyEnv(cfg *Config) {
	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", cfg.WorkerMetricsPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)
	cfg.IdentityHeader = getEnvString("IDENTITY_HEADER", cfg.IdentityHeader)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", cfg.LogLevel))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.RateLimitTaskCreate = getEnvInt("RATE_LIMIT_TASK_CREATE", cfg.RateLimitTaskCreate)
	cfg.AnthropicAPIKey = getEnvString("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.OracleModel = getEnvString("ORACLE_MODEL", cfg.OracleModel)
	cfg.OracleBaseURL = getEnvString("ORACLE_BASE_URL", cfg.OracleBaseURL)
	cfg.OracleTimeout = getEnvDuration("ORACLE_TIMEOUT", cfg.OracleTimeout)
	cfg.OracleMaxTokens = getEnvInt("ORACLE_MAX_TOKENS", cfg.OracleMaxTokens)
	cfg.DailyGoalDefault = getEnvInt("DAILY_GOAL_DEFAULT", cfg.DailyGoalDefault)
	cfg.ReminderSweepInterval = getEnvDuration("REMINDER_SWEEP_INTERVAL", cfg.ReminderSweepInterval)
	cfg.ReminderMaxConcurrent = getEnvInt("REMINDER_MAX_CONCURRENT", cfg.ReminderMaxConcurrent)
	cfg.ReminderRetentionDays = getEnvInt("REMINDER_RETENTION_DAYS", cfg.ReminderRetentionDays)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.SMTPHost = getEnvString("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnvInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = getEnvString("SMTP_FROM", cfg.SMTPFrom)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
