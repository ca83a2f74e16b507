package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/flowstate/internal/account"
	"github.com/hitoshi/flowstate/internal/middleware"
	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/reminder"
	"github.com/hitoshi/flowstate/internal/task"
)

// --- モック定義 ---

// mockAccountService はAccountServiceInterfaceのモック実装。
type mockAccountService struct {
	syncAccountFn     func(ctx context.Context, identity, email, displayName string) (*model.Account, error)
	getAccountFn      func(ctx context.Context, identity string) (*account.Summary, error)
	generateInsightFn func(ctx context.Context, identity string) (*model.Insight, error)
}

func (m *mockAccountService) SyncAccount(ctx context.Context, identity, email, displayName string) (*model.Account, error) {
	if m.syncAccountFn != nil {
		return m.syncAccountFn(ctx, identity, email, displayName)
	}
	return nil, nil
}

func (m *mockAccountService) GetAccount(ctx context.Context, identity string) (*account.Summary, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, identity)
	}
	return nil, nil
}

func (m *mockAccountService) GenerateWeeklyInsight(ctx context.Context, identity string) (*model.Insight, error) {
	if m.generateInsightFn != nil {
		return m.generateInsightFn(ctx, identity)
	}
	return nil, nil
}

// mockTaskService はTaskServiceInterfaceのモック実装。
type mockTaskService struct {
	createTaskFn  func(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error)
	listTasksFn   func(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error)
	completeFn    func(ctx context.Context, identity, taskID string) (*task.CompleteResult, error)
	deleteFn      func(ctx context.Context, identity, taskID string) error
	batchDeleteFn func(ctx context.Context, identity string, taskIDs []string) (int, error)
}

func (m *mockTaskService) CreateTask(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, identity, description, durationMinutes, tags)
	}
	return nil, nil
}

func (m *mockTaskService) ListTasks(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, identity, status)
	}
	return nil, nil
}

func (m *mockTaskService) CompleteTask(ctx context.Context, identity, taskID string) (*task.CompleteResult, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, identity, taskID)
	}
	return nil, nil
}

func (m *mockTaskService) DeleteTask(ctx context.Context, identity, taskID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, identity, taskID)
	}
	return nil
}

func (m *mockTaskService) BatchDeleteTasks(ctx context.Context, identity string, taskIDs []string) (int, error) {
	if m.batchDeleteFn != nil {
		return m.batchDeleteFn(ctx, identity, taskIDs)
	}
	return 0, nil
}

// mockReminderService はReminderServiceInterfaceのモック実装。
type mockReminderService struct {
	createFn func(ctx context.Context, identity, message string, scheduledTime time.Time) (*model.Reminder, error)
	listFn   func(ctx context.Context, identity string) ([]*model.Reminder, error)
	updateFn func(ctx context.Context, identity, id string, in reminder.UpdateInput) (*model.Reminder, error)
	deleteFn func(ctx context.Context, identity, id string) error
}

func (m *mockReminderService) Create(ctx context.Context, identity, message string, scheduledTime time.Time) (*model.Reminder, error) {
	if m.createFn != nil {
		return m.createFn(ctx, identity, message, scheduledTime)
	}
	return nil, nil
}

func (m *mockReminderService) List(ctx context.Context, identity string) ([]*model.Reminder, error) {
	if m.listFn != nil {
		return m.listFn(ctx, identity)
	}
	return []*model.Reminder{}, nil
}

func (m *mockReminderService) Update(ctx context.Context, identity, id string, in reminder.UpdateInput) (*model.Reminder, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, identity, id, in)
	}
	return nil, nil
}

func (m *mockReminderService) Delete(ctx context.Context, identity, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, identity, id)
	}
	return nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストにユーザー識別子を注入するヘルパー。
func withIdentity(r *http.Request, identity string) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はレスポンスボディをvにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
