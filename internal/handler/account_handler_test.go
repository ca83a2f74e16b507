package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/flowstate/internal/account"
	"github.com/hitoshi/flowstate/internal/gamification"
	"github.com/hitoshi/flowstate/internal/model"
)

func TestAccountHandler_Sync_Success(t *testing.T) {
	var gotIdentity, gotEmail, gotName string
	svc := &mockAccountService{
		syncAccountFn: func(ctx context.Context, identity, email, displayName string) (*model.Account, error) {
			gotIdentity, gotEmail, gotName = identity, email, displayName
			return &model.Account{
				ID:          "acc-1",
				ExternalID:  identity,
				Email:       email,
				DisplayName: displayName,
				TotalPoints: 1500,
				DailyGoal:   model.DefaultDailyGoal,
			}, nil
		},
	}
	h := NewAccountHandler(svc)

	body := `{"email":"alice@example.com","username":"Alice"}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/auth/sync", strings.NewReader(body)), "idp|alice")
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if gotIdentity != "idp|alice" || gotEmail != "alice@example.com" || gotName != "Alice" {
		t.Errorf("unexpected args: %q %q %q", gotIdentity, gotEmail, gotName)
	}

	var resp accountResponse
	decodeBody(t, w, &resp)
	if resp.Username != "Alice" || resp.TotalPoints != 1500 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Progress == nil || resp.Progress.Level != 2 {
		t.Errorf("progress = %+v, want level 2", resp.Progress)
	}
}

func TestAccountHandler_Sync_ValidationError(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{
		syncAccountFn: func(ctx context.Context, identity, email, displayName string) (*model.Account, error) {
			return nil, model.NewValidationError("email の形式が不正です")
		},
	})

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/auth/sync", strings.NewReader(`{"email":"nope"}`)), "idp|alice")
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAccountHandler_Sync_EmptyBody(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{})

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/auth/sync", strings.NewReader("")), "idp|alice")
	w := httptest.NewRecorder()

	h.Sync(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", got)
	}
}

func TestAccountHandler_GetAccount(t *testing.T) {
	last := time.Date(2026, 6, 9, 20, 0, 0, 0, time.UTC)
	h := NewAccountHandler(&mockAccountService{
		getAccountFn: func(ctx context.Context, identity string) (*account.Summary, error) {
			return &account.Summary{
				Account: &model.Account{
					ID:          "acc-1",
					Email:       "alice@example.com",
					TotalPoints: 4000,
					Streak:      3,
					DailyGoal:   500,
					LastLogDate: &last,
					LastInsight: &model.Insight{Feedback: "Solid week.", Rating: 8, GeneratedAt: last},
				},
				Progress: gamification.ProgressFor(4000),
			}, nil
		},
	})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/account", nil), "idp|alice")
	w := httptest.NewRecorder()

	h.GetAccount(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp accountResponse
	decodeBody(t, w, &resp)
	if resp.Progress == nil || resp.Progress.Level != 3 {
		t.Errorf("progress = %+v, want level 3", resp.Progress)
	}
	if resp.LastInsight == nil || resp.LastInsight.Rating != 8 {
		t.Errorf("lastInsight = %+v", resp.LastInsight)
	}
	if resp.Streak != 3 {
		t.Errorf("streak = %d, want 3", resp.Streak)
	}
}

func TestAccountHandler_GetAccount_NotFound(t *testing.T) {
	h := NewAccountHandler(&mockAccountService{
		getAccountFn: func(ctx context.Context, identity string) (*account.Summary, error) {
			return nil, model.NewAccountNotFoundError()
		},
	})

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/account", nil), "idp|ghost")
	w := httptest.NewRecorder()

	h.GetAccount(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := parseAPIErrorResponse(t, w)["code"]; got != model.ErrCodeAccountNotFound {
		t.Errorf("code = %q", got)
	}
}

func TestAccountHandler_GenerateInsight(t *testing.T) {
	generated := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	h := NewAccountHandler(&mockAccountService{
		generateInsightFn: func(ctx context.Context, identity string) (*model.Insight, error) {
			return &model.Insight{Feedback: "Keep the streak going.", Rating: 7, GeneratedAt: generated}, nil
		},
	})

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/logs/insights/generate", nil), "idp|alice")
	w := httptest.NewRecorder()

	h.GenerateInsight(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]insightResponse
	decodeBody(t, w, &resp)
	got, ok := resp["insight"]
	if !ok {
		t.Fatalf("missing insight key: %v", resp)
	}
	if got.Rating != 7 || got.Feedback != "Keep the streak going." || !got.GeneratedAt.Equal(generated) {
		t.Errorf("unexpected insight: %+v", got)
	}
}
