package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/flowstate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	IdentityHeader    string
	RateLimiter       *middleware.RateLimiter

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	AccountService  AccountServiceInterface
	TaskService     TaskServiceInterface
	ReminderService ReminderServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity → RateLimit(General)
//
// /health と /metrics は識別子なしでアクセスできる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identityHeader := deps.IdentityHeader
	if identityHeader == "" {
		identityHeader = middleware.DefaultIdentityHeader
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin, identityHeader))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))

	accountHandler := NewAccountHandler(deps.AccountService)
	taskHandler := NewTaskHandler(deps.TaskService)
	reminderHandler := NewReminderHandler(deps.ReminderService)

	// --- 識別子不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 識別子が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(identityHeader))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Post("/api/auth/sync", accountHandler.Sync)
		r.Get("/api/account", accountHandler.GetAccount)

		// 作業ログ
		r.Route("/api/logs", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			// POST /api/logs - タスク作成（オラクル呼び出しを伴うため専用レート制限を追加）
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.TaskCreateMiddleware()).Post("/", taskHandler.CreateTask)
			} else {
				r.Post("/", taskHandler.CreateTask)
			}
			r.Post("/batch-delete", taskHandler.BatchDeleteTasks)
			r.Post("/insights/generate", accountHandler.GenerateInsight)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/complete", taskHandler.CompleteTask)
				r.Delete("/", taskHandler.DeleteTask)
			})
		})

		// リマインダー
		r.Route("/api/reminders", func(r chi.Router) {
			r.Get("/", reminderHandler.List)
			r.Post("/", reminderHandler.Create)
			r.Put("/{id}", reminderHandler.Update)
			r.Delete("/{id}", reminderHandler.Delete)
		})
	})

	return r
}
