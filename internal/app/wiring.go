package app

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/flowstate/internal/config"
	"github.com/hitoshi/flowstate/internal/metrics"
	"github.com/hitoshi/flowstate/internal/middleware"
	"github.com/hitoshi/flowstate/internal/oracle"
	"github.com/hitoshi/flowstate/internal/security"
	reminderworker "github.com/hitoshi/flowstate/internal/worker/reminder"
)

// newMetrics はプロセス共通のレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildScorer はオラクル採点器を構築する。
// APIキーが未設定の場合はフォールバック計算のみを行うScorerを返す。
func buildScorer(cfg *config.Config, sanitizer security.TextSanitizerService, recorder oracle.Recorder) (*oracle.Scorer, error) {
	var gen oracle.Generator
	if cfg.OracleEnabled() {
		guard := security.NewOutboundGuard()
		if err := guard.ValidateBaseURL(cfg.OracleBaseURL); err != nil {
			return nil, fmt.Errorf("invalid ORACLE_BASE_URL: %w", err)
		}

		g, err := oracle.NewAnthropicGenerator(oracle.AnthropicConfig{
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.OracleModel,
			MaxTokens:  cfg.OracleMaxTokens,
			BaseURL:    cfg.OracleBaseURL,
			HTTPClient: guard.NewSafeClient(cfg.OracleTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create oracle client: %w", err)
		}
		gen = g
	} else {
		slog.Warn("ANTHROPIC_API_KEY is not set; using fallback scoring only")
	}

	return oracle.NewScorer(gen, sanitizer, recorder, cfg.OracleTimeout), nil
}

// buildNotifier はリマインダーの送信手段を構築する。
// SMTP_HOSTが未設定の場合はログに出力するだけのNotifierを返す。
func buildNotifier(cfg *config.Config, logger *slog.Logger) (reminderworker.Notifier, error) {
	if !cfg.SMTPEnabled() {
		logger.Warn("SMTP_HOST is not set; reminders will be logged instead of emailed")
		return reminderworker.NewLogNotifier(logger), nil
	}

	n, err := reminderworker.NewSMTPNotifier(reminderworker.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP notifier: %w", err)
	}
	return n, nil
}

// rateLimiterConfig は設定値（req/min）からレート制限設定を作る。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	return middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitTaskCreate)
}
