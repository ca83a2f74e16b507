// Package account はアカウントの同期（get-or-create）、台帳の参照、週次コーチ生成を提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/flowstate/internal/gamification"
	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/repository"
	"github.com/hitoshi/flowstate/internal/scoring"
	"github.com/hitoshi/flowstate/internal/security"
)

// insightWindow は週次コーチの対象期間。活動日数の7日打ち切りは採点側で行う。
const insightWindow = 7 * 24 * time.Hour

// WeekScorer は週次評価を行う。oracle.Scorerが実装する。
type WeekScorer interface {
	ScoreWeek(ctx context.Context, tasks []model.Task, userName string) scoring.WeekRating
}

// Summary はアカウントと導出したレベル進捗をまとめたもの。
type Summary struct {
	Account  *model.Account
	Progress gamification.Progress
}

// Service はアカウント管理のサービス層。
type Service struct {
	accounts  repository.AccountRepository
	tasks     repository.TaskRepository
	ledger    repository.Ledger
	scorer    WeekScorer
	sanitizer security.TextSanitizerService
	dailyGoal int
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// dailyGoalは新規アカウントに設定する1日の目標XPで、0以下の場合は既定値を使う。
func NewService(
	accounts repository.AccountRepository,
	tasks repository.TaskRepository,
	ledger repository.Ledger,
	scorer WeekScorer,
	sanitizer security.TextSanitizerService,
	dailyGoal int,
) *Service {
	if dailyGoal <= 0 {
		dailyGoal = model.DefaultDailyGoal
	}
	return &Service{
		accounts:  accounts,
		tasks:     tasks,
		ledger:    ledger,
		scorer:    scorer,
		sanitizer: sanitizer,
		dailyGoal: dailyGoal,
		now:       time.Now,
	}
}

// SyncAccount は外部IdPの識別子でアカウントを取得し、存在しなければ作成する。
//
// 識別子で見つからない場合はメールアドレスで検索し、見つかれば識別子を付け替える。
// 同時の初回同期で一意制約違反になった場合は、既に作成されたレコードを取得し直して返す。
// 同期のたびに日付をまたいでいればdailyXPを0に戻す。
func (s *Service) SyncAccount(ctx context.Context, identity, email, displayName string) (*model.Account, error) {
	identity = strings.TrimSpace(identity)
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = s.sanitizer.Sanitize(displayName)

	if identity == "" {
		return nil, model.NewValidationError("ユーザー識別子は必須です")
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, model.NewValidationError("email の形式が正しくありません")
	}

	acc, err := s.getOrCreate(ctx, identity, email, displayName)
	if err != nil {
		return nil, err
	}

	return s.resetDailyIfNeeded(ctx, acc)
}

func (s *Service) getOrCreate(ctx context.Context, identity, email, displayName string) (*model.Account, error) {
	acc, err := s.accounts.FindByExternalID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc != nil {
		return s.refreshProfile(ctx, acc, email, displayName)
	}

	acc, err = s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc != nil {
		slog.Info("relinking account to new identity",
			slog.String("account_id", acc.ID),
		)
		acc.ExternalID = identity
		if displayName != "" {
			acc.DisplayName = displayName
		}
		if err := s.accounts.UpdateProfile(ctx, acc); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return s.refetch(ctx, identity, email)
			}
			return nil, fmt.Errorf("アカウントの付け替えに失敗しました: %w", err)
		}
		return acc, nil
	}

	now := s.now().UTC()
	acc = &model.Account{
		ID:          uuid.New().String(),
		ExternalID:  identity,
		Email:       email,
		DisplayName: displayName,
		DailyGoal:   s.dailyGoal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return s.refetch(ctx, identity, email)
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return acc, nil
}

// refreshProfile はメールアドレスと表示名が変わっていれば更新する。
// メールアドレスが他のアカウントと衝突する場合は既存の値を維持する。
func (s *Service) refreshProfile(ctx context.Context, acc *model.Account, email, displayName string) (*model.Account, error) {
	changed := false
	prevEmail := acc.Email
	if email != acc.Email {
		acc.Email = email
		changed = true
	}
	if displayName != "" && displayName != acc.DisplayName {
		acc.DisplayName = displayName
		changed = true
	}
	if !changed {
		return acc, nil
	}

	err := s.accounts.UpdateProfile(ctx, acc)
	if errors.Is(err, repository.ErrConflict) {
		slog.Warn("email already linked to another account, keeping current email",
			slog.String("account_id", acc.ID),
		)
		acc.Email = prevEmail
		err = s.accounts.UpdateProfile(ctx, acc)
	}
	if err != nil {
		return nil, fmt.Errorf("アカウント情報の更新に失敗しました: %w", err)
	}
	return acc, nil
}

// refetch は一意制約違反の後に、既に存在するアカウントを識別子→メールアドレスの順で取得し直す。
func (s *Service) refetch(ctx context.Context, identity, email string) (*model.Account, error) {
	acc, err := s.accounts.FindByExternalID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("アカウントの再取得に失敗しました: %w", err)
	}
	if acc != nil {
		return acc, nil
	}
	acc, err = s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("アカウントの再取得に失敗しました: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("アカウントの再取得に失敗しました: conflicting record not found")
	}
	return acc, nil
}

// resetDailyIfNeeded は日付が変わっていれば台帳ロックを取ってdailyXPをリセットする。
func (s *Service) resetDailyIfNeeded(ctx context.Context, acc *model.Account) (*model.Account, error) {
	now := s.now().UTC()
	if !needsDailyReset(acc, now) {
		return acc, nil
	}

	var locked *model.Account
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		locked, err = tx.LockAccount(ctx, acc.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return model.NewAccountNotFoundError()
		}
		if !gamification.ResetDailyIfNeeded(locked, now) {
			return nil
		}
		return tx.SaveLedger(ctx, locked)
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("日次XPのリセットに失敗しました: %w", err)
	}
	return locked, nil
}

func needsDailyReset(acc *model.Account, now time.Time) bool {
	probe := *acc
	return gamification.ResetDailyIfNeeded(&probe, now)
}

// GetAccount はアカウントとレベル進捗を返す。
// 日付が変わっている場合、返却値のdailyXPは0として表示する（永続化は次回の同期で行う）。
func (s *Service) GetAccount(ctx context.Context, identity string) (*Summary, error) {
	acc, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	gamification.ResetDailyIfNeeded(acc, s.now().UTC())
	return &Summary{Account: acc, Progress: gamification.ProgressFor(acc.TotalPoints)}, nil
}

// GenerateWeeklyInsight は直近7日間の完了タスクから週次コーチを生成し、アカウントにキャッシュする。
// ポイントは変更しない。
func (s *Service) GenerateWeeklyInsight(ctx context.Context, identity string) (*model.Insight, error) {
	acc, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	completed, err := s.tasks.ListCompletedSince(ctx, acc.ID, now.Add(-insightWindow))
	if err != nil {
		return nil, fmt.Errorf("週次タスクの取得に失敗しました: %w", err)
	}

	entries := make([]model.Task, 0, len(completed))
	for _, t := range completed {
		entries = append(entries, *t)
	}

	name := acc.DisplayName
	if name == "" {
		name = strings.SplitN(acc.Email, "@", 2)[0]
	}
	rating := s.scorer.ScoreWeek(ctx, entries, name)

	insight := model.Insight{
		Feedback:    rating.Feedback,
		Rating:      rating.Rating,
		GeneratedAt: now,
	}
	if err := s.accounts.SaveInsight(ctx, acc.ID, insight); err != nil {
		return nil, fmt.Errorf("週次コーチ結果の保存に失敗しました: %w", err)
	}
	return &insight, nil
}

func (s *Service) resolve(ctx context.Context, identity string) (*model.Account, error) {
	if identity == "" {
		return nil, model.NewAccountNotFoundError()
	}
	acc, err := s.accounts.FindByExternalID(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acc == nil {
		return nil, model.NewAccountNotFoundError()
	}
	return acc, nil
}
