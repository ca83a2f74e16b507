package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/reminder"
)

// ReminderServiceInterface はリマインダーハンドラーが必要とするサービスインターフェース。
type ReminderServiceInterface interface {
	Create(ctx context.Context, identity, message string, scheduledTime time.Time) (*model.Reminder, error)
	List(ctx context.Context, identity string) ([]*model.Reminder, error)
	Update(ctx context.Context, identity, id string, in reminder.UpdateInput) (*model.Reminder, error)
	Delete(ctx context.Context, identity, id string) error
}

// ReminderHandler はリマインダー関連のHTTPハンドラー。
type ReminderHandler struct {
	service ReminderServiceInterface
}

// NewReminderHandler はReminderHandlerを生成する。
func NewReminderHandler(service ReminderServiceInterface) *ReminderHandler {
	return &ReminderHandler{service: service}
}

// reminderRequest はリマインダー作成・更新リクエストのボディ。
// 更新時は省略したフィールドを変更しない。
type reminderRequest struct {
	Message       *string    `json:"message"`
	ScheduledTime *time.Time `json:"scheduledTime"`
}

// reminderResponse はリマインダーのAPIレスポンス。
type reminderResponse struct {
	ID            string     `json:"id"`
	Message       string     `json:"message"`
	ScheduledTime time.Time  `json:"scheduledTime"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"lastError,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// List はリマインダー一覧を返す。
// GET /api/reminders
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	reminders, err := h.service.List(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]reminderResponse, len(reminders))
	for i, rem := range reminders {
		resp[i] = toReminderResponse(rem)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はリマインダーを登録する。
// POST /api/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Message == nil || req.ScheduledTime == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("message と scheduledTime は必須です"))
		return
	}

	rem, err := h.service.Create(r.Context(), identity, *req.Message, *req.ScheduledTime)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReminderResponse(rem))
}

// Update は未送信リマインダーの本文または送信時刻を変更する。
// PUT /api/reminders/{id}
func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rem, err := h.service.Update(r.Context(), identity, chi.URLParam(r, "id"), reminder.UpdateInput{
		Message:       req.Message,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReminderResponse(rem))
}

// Delete はリマインダーを削除する。
// DELETE /api/reminders/{id}
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Msg: "Reminder removed"})
}

func toReminderResponse(rem *model.Reminder) reminderResponse {
	return reminderResponse{
		ID:            rem.ID,
		Message:       rem.Message,
		ScheduledTime: rem.ScheduledTime,
		Status:        string(rem.Status),
		Attempts:      rem.Attempts,
		LastError:     rem.LastError,
		SentAt:        rem.SentAt,
		CreatedAt:     rem.CreatedAt,
	}
}
