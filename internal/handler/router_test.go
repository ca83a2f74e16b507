package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/flowstate/internal/middleware"
	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/task"
)

// recordingStatusRecorder はStatusRecorderのテスト用実装。
type recordingStatusRecorder struct {
	codes []int
}

func (r *recordingStatusRecorder) RecordHTTPStatus(statusCode int) {
	r.codes = append(r.codes, statusCode)
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if deps.AccountService == nil {
		deps.AccountService = &mockAccountService{}
	}
	if deps.TaskService == nil {
		deps.TaskService = &mockTaskService{}
	}
	if deps.ReminderService == nil {
		deps.ReminderService = &mockReminderService{}
	}
	if deps.CORSAllowedOrigin == "" {
		deps.CORSAllowedOrigin = "http://localhost:5173"
	}
	return NewRouter(deps)
}

func TestNewRouter_RequiresIdentity(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	paths := []struct {
		method, path string
	}{
		{http.MethodGet, "/api/account"},
		{http.MethodGet, "/api/logs"},
		{http.MethodPost, "/api/logs"},
		{http.MethodPut, "/api/logs/abc/complete"},
		{http.MethodGet, "/api/reminders"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestNewRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
	}{
		{"healthy", &mockHealthChecker{}, http.StatusOK},
		{"db down", &mockHealthChecker{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"no checker", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &RouterDeps{HealthChecker: tt.checker})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewRouter_MetricsMounted(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "flowstate_up 1\n")
		}),
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "flowstate_up") {
		t.Errorf("status = %d body = %q", w.Code, w.Body.String())
	}
}

func TestNewRouter_DispatchesTaskRoutes(t *testing.T) {
	var calls []string
	svc := &mockTaskService{
		listTasksFn: func(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error) {
			calls = append(calls, "list:"+identity)
			return nil, nil
		},
		completeFn: func(ctx context.Context, identity, taskID string) (*task.CompleteResult, error) {
			calls = append(calls, "complete:"+taskID)
			return &task.CompleteResult{Task: sampleTask(), TotalPoints: 10}, nil
		},
		deleteFn: func(ctx context.Context, identity, taskID string) error {
			calls = append(calls, "delete:"+taskID)
			return nil
		},
		batchDeleteFn: func(ctx context.Context, identity string, taskIDs []string) (int, error) {
			calls = append(calls, "batch")
			return len(taskIDs), nil
		},
	}
	router := newTestRouter(t, &RouterDeps{TaskService: svc})

	requests := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/logs", ""},
		{http.MethodPut, "/api/logs/t1/complete", ""},
		{http.MethodDelete, "/api/logs/t2", ""},
		{http.MethodPost, "/api/logs/batch-delete", `{"ids":["t3"]}`},
	}
	for _, rq := range requests {
		req := httptest.NewRequest(rq.method, rq.path, strings.NewReader(rq.body))
		req.Header.Set(middleware.DefaultIdentityHeader, "user-1")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s %s status = %d, want 200: %s", rq.method, rq.path, w.Code, w.Body.String())
		}
	}

	want := []string{"list:user-1", "complete:t1", "delete:t2", "batch"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestNewRouter_CustomIdentityHeader(t *testing.T) {
	var gotIdentity string
	router := newTestRouter(t, &RouterDeps{
		IdentityHeader: "X-Auth-Subject",
		AccountService: &mockAccountService{
			generateInsightFn: func(ctx context.Context, identity string) (*model.Insight, error) {
				gotIdentity = identity
				return &model.Insight{Feedback: "ok", Rating: 5}, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/logs/insights/generate", nil)
	req.Header.Set("X-Auth-Subject", "idp|bob")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotIdentity != "idp|bob" {
		t.Errorf("identity = %q, want idp|bob", gotIdentity)
	}
}

func TestNewRouter_TaskCreateRateLimit(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.PerMinuteConfig(100, 1))
	defer rl.Stop()

	router := newTestRouter(t, &RouterDeps{
		RateLimiter: rl,
		TaskService: &mockTaskService{
			createTaskFn: func(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error) {
				return sampleTask(), nil
			},
		},
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/logs", strings.NewReader(`{"taskDescription":"x","duration":10}`))
		req.Header.Set(middleware.DefaultIdentityHeader, "user-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send(); code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("second create status = %d, want 429", code)
	}

	// 一覧取得は作成専用の制限を受けない
	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	req.Header.Set(middleware.DefaultIdentityHeader, "user-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", w.Code)
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{CORSAllowedOrigin: "https://app.example.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/logs", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, middleware.DefaultIdentityHeader) {
		t.Errorf("Allow-Headers = %q, want identity header included", got)
	}
}

func TestNewRouter_RecordsStatus(t *testing.T) {
	rec := &recordingStatusRecorder{}
	router := newTestRouter(t, &RouterDeps{StatusRecorder: rec})

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if len(rec.codes) != 1 || rec.codes[0] != http.StatusUnauthorized {
		t.Errorf("recorded = %v, want [401]", rec.codes)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeAccountNotFound, http.StatusNotFound},
		{model.ErrCodeTaskNotFound, http.StatusNotFound},
		{model.ErrCodeReminderNotFound, http.StatusNotFound},
		{model.ErrCodeTaskAlreadyCompleted, http.StatusBadRequest},
		{model.ErrCodeReminderAlreadySent, http.StatusBadRequest},
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
			t.Errorf("%s -> %d, want %d", tt.code, got, tt.want)
		}
	}
}
