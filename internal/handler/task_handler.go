package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// 全操作はユーザー識別子の所有範囲に限定される。
type TaskServiceInterface interface {
	CreateTask(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error)
	ListTasks(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error)
	CompleteTask(ctx context.Context, identity, taskID string) (*task.CompleteResult, error)
	DeleteTask(ctx context.Context, identity, taskID string) error
	// BatchDeleteTasks は所有するタスクのみを削除し、削除件数を返す。
	BatchDeleteTasks(ctx context.Context, identity string, taskIDs []string) (int, error)
}

// TaskHandler はタスク（作業ログ）関連のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	TaskDescription string   `json:"taskDescription"`
	Duration        int      `json:"duration"`
	Tags            []string `json:"tags"`
}

// batchDeleteRequest は一括削除リクエストのボディ。
type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	ID              string     `json:"id"`
	TaskDescription string     `json:"taskDescription"`
	Duration        int        `json:"duration"`
	Tags            []string   `json:"tags"`
	Points          int        `json:"points"`
	Status          string     `json:"status"`
	AIFeedback      string     `json:"aiFeedback"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// completeTaskResponse はタスク完了のAPIレスポンス。
type completeTaskResponse struct {
	Log        taskResponse `json:"log"`
	UserPoints int          `json:"userPoints"`
}

// batchDeleteResponse は一括削除のAPIレスポンス。
type batchDeleteResponse struct {
	Msg   string `json:"msg"`
	Count int    `json:"count"`
}

// ListTasks はタスク一覧を新しい順に返す。statusクエリで絞り込める。
// GET /api/logs?status=pending|completed
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	status := model.TaskStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("status は pending または completed を指定してください"))
		return
	}

	tasks, err := h.service.ListTasks(r.Context(), identity, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = toTaskResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask はタスクを作成する。ポイントとフィードバックは作成時に確定する。
// POST /api/logs
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.service.CreateTask(r.Context(), identity, req.TaskDescription, req.Duration, req.Tags)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// CompleteTask はタスクを完了にし、加算後の累計ポイントを返す。
// PUT /api/logs/{id}/complete
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	result, err := h.service.CompleteTask(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeTaskResponse{
		Log:        toTaskResponse(result.Task),
		UserPoints: result.TotalPoints,
	})
}

// DeleteTask はタスクを削除する。完了済みならポイントを差し引く。
// DELETE /api/logs/{id}
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Msg: "Log removed"})
}

// BatchDeleteTasks は複数タスクをまとめて削除する。
// POST /api/logs/batch-delete
func (h *TaskHandler) BatchDeleteTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req batchDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	count, err := h.service.BatchDeleteTasks(r.Context(), identity, req.IDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchDeleteResponse{Msg: "Logs removed", Count: count})
}

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return taskResponse{
		ID:              t.ID,
		TaskDescription: t.TaskDescription,
		Duration:        t.Duration,
		Tags:            tags,
		Points:          t.Points,
		Status:          string(t.Status),
		AIFeedback:      t.AIFeedback,
		CreatedAt:       t.CreatedAt,
		CompletedAt:     t.CompletedAt,
	}
}
