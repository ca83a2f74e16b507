// Package app はコマンドごとの依存関係のワイヤリングと起動処理を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/flowstate/internal/account"
	"github.com/hitoshi/flowstate/internal/config"
	"github.com/hitoshi/flowstate/internal/database"
	"github.com/hitoshi/flowstate/internal/handler"
	"github.com/hitoshi/flowstate/internal/logger"
	"github.com/hitoshi/flowstate/internal/metrics"
	"github.com/hitoshi/flowstate/internal/middleware"
	"github.com/hitoshi/flowstate/internal/reminder"
	"github.com/hitoshi/flowstate/internal/repository"
	"github.com/hitoshi/flowstate/internal/security"
	"github.com/hitoshi/flowstate/internal/task"
	"github.com/hitoshi/flowstate/internal/worker/cleanup"
	reminderworker "github.com/hitoshi/flowstate/internal/worker/reminder"
)

// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、設定のログレベルでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 既定値・設定ファイル・環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	reminderRepo := repository.NewPostgresReminderRepo(db)
	ledger := repository.NewPostgresLedger(db)

	// 3. メトリクスとセキュリティサービスの初期化
	reg, collector := newMetrics()
	sanitizer := security.NewTextSanitizer()

	// 4. オラクルとドメインサービスの初期化
	scorer, err := buildScorer(cfg, sanitizer, collector)
	if err != nil {
		return err
	}

	taskService := task.NewService(accountRepo, taskRepo, ledger, scorer, sanitizer, collector)
	accountService := account.NewService(accountRepo, taskRepo, ledger, scorer, sanitizer, cfg.DailyGoalDefault)
	reminderService := reminder.NewService(accountRepo, reminderRepo, sanitizer)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		IdentityHeader:    cfg.IdentityHeader,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AccountService:  accountService,
		TaskService:     handler.NewTaskServiceAdapter(taskService),
		ReminderService: reminderService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// オラクル呼び出しの待ち時間を含める
		WriteTimeout: 15*time.Second + cfg.OracleTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はサーバーを起動し、ctxがキャンセルされたらグレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// リマインダースイーパーと送信済みリマインダーのクリーンアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクスの初期化
	reminderRepo := repository.NewPostgresReminderRepo(db)
	reg, collector := newMetrics()

	// 3. 送信手段とスイーパーの初期化
	notifier, err := buildNotifier(cfg, slog.Default())
	if err != nil {
		return err
	}
	sweeper := reminderworker.NewSweeper(
		reminderRepo, notifier, collector, slog.Default(), cfg.ReminderMaxConcurrent,
	)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(reminderRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.ReminderRetentionDays

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.ReminderSweepInterval),
		slog.Int("max_concurrent", cfg.ReminderMaxConcurrent),
		slog.Bool("smtp_enabled", cfg.SMTPEnabled()),
	)

	// メトリクス公開用のサーバーをバックグラウンドで起動
	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := serveUntilDone(ctx, metricsServer, "worker metrics server"); err != nil {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	// クリーンアップジョブをバックグラウンドで実行（起動直後に1回実行）
	go func() {
		_, _ = cleanupJob.Run(ctx)
		cleanupJob.Start(ctx, cfg.CleanupInterval)
	}()

	// スイーパーをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.ReminderSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrateUp はすべての未適用マイグレーションを順番に適用する。
func runMigrateUp(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runMigrateDown は直近steps件のマイグレーションを取り消す。
func runMigrateDown(cfg *config.Config, steps int) error {
	slog.Info("rolling back database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("steps", steps),
	)

	if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	slog.Info("database rollback completed successfully")
	return nil
}

// runMigrateVersion は現在のスキーマバージョンをwに出力する。
func runMigrateVersion(cfg *config.Config, w io.Writer) error {
	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(w, "%d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(w, "%d\n", version)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はヘルスチェック対象のポートを環境変数から決める。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
