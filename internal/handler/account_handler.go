package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/flowstate/internal/account"
	"github.com/hitoshi/flowstate/internal/gamification"
	"github.com/hitoshi/flowstate/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// SyncAccount はIdPのプロフィールでアカウントを作成または更新する。
	SyncAccount(ctx context.Context, identity, email, displayName string) (*model.Account, error)
	// GetAccount はアカウントとレベル進捗を返す。
	GetAccount(ctx context.Context, identity string) (*account.Summary, error)
	// GenerateWeeklyInsight は直近7日の完了タスクから週次コーチ結果を生成する。
	GenerateWeeklyInsight(ctx context.Context, identity string) (*model.Insight, error)
}

// AccountHandler はアカウント関連のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// syncRequest はアカウント同期リクエストのボディ。
type syncRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// insightResponse は週次コーチ結果のAPIレスポンス。
type insightResponse struct {
	Feedback    string    `json:"feedback"`
	Rating      int       `json:"rating"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID          string                 `json:"id"`
	Email       string                 `json:"email"`
	Username    string                 `json:"username"`
	TotalPoints int                    `json:"totalPoints"`
	DailyXP     int                    `json:"dailyXP"`
	DailyGoal   int                    `json:"dailyGoal"`
	Streak      int                    `json:"streak"`
	LastLogDate *time.Time             `json:"lastLogDate,omitempty"`
	LastInsight *insightResponse       `json:"lastInsight,omitempty"`
	Progress    *gamification.Progress `json:"progress,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Sync はIdPで認証済みのユーザーをアカウントに同期する。
// POST /api/auth/sync
func (h *AccountHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req syncRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	acc, err := h.service.SyncAccount(r.Context(), identity, req.Email, req.Username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	progress := gamification.ProgressFor(acc.TotalPoints)
	writeJSON(w, http.StatusOK, toAccountResponse(acc, &progress))
}

// GetAccount はログイン中ユーザーのアカウントとレベル進捗を返す。
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetAccount(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(summary.Account, &summary.Progress))
}

// GenerateInsight は週次コーチ結果を生成して返す。
// POST /api/logs/insights/generate
func (h *AccountHandler) GenerateInsight(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	insight, err := h.service.GenerateWeeklyInsight(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*insightResponse{
		"insight": toInsightResponse(insight),
	})
}

// toAccountResponse はmodel.AccountからAPIレスポンスに変換する。
func toAccountResponse(acc *model.Account, progress *gamification.Progress) accountResponse {
	return accountResponse{
		ID:          acc.ID,
		Email:       acc.Email,
		Username:    acc.DisplayName,
		TotalPoints: acc.TotalPoints,
		DailyXP:     acc.DailyXP,
		DailyGoal:   acc.DailyGoal,
		Streak:      acc.Streak,
		LastLogDate: acc.LastLogDate,
		LastInsight: toInsightResponse(acc.LastInsight),
		Progress:    progress,
		CreatedAt:   acc.CreatedAt,
	}
}

func toInsightResponse(in *model.Insight) *insightResponse {
	if in == nil {
		return nil
	}
	return &insightResponse{
		Feedback:    in.Feedback,
		Rating:      in.Rating,
		GeneratedAt: in.GeneratedAt,
	}
}
