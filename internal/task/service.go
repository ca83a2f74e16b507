// Package task はタスク記録のライフサイクルとポイント台帳の整合を扱うドメインロジックを提供する。
//
// ポイントに影響する操作（完了・削除・一括削除）は全てrepository.Ledgerのトランザクション内で
// タスク行→アカウント行の順にロックを取得して行う。これによりアカウント単位で操作が直列化され、
// totalPointsは常に「存在する完了済みタスクのpoints合計」と一致する。
package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/flowstate/internal/gamification"
	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/repository"
	"github.com/hitoshi/flowstate/internal/scoring"
	"github.com/hitoshi/flowstate/internal/security"
)

const (
	// MaxDescriptionLength はタスク説明の最大文字数。
	MaxDescriptionLength = 1000
	// MaxTags は1タスクあたりのタグ数上限。
	MaxTags = 20
	// MaxBatchSize は一括削除で受け付けるID数の上限。
	MaxBatchSize = 500
)

// Scorer はタスク作成時のポイント算出を行う。oracle.Scorerが実装する。
type Scorer interface {
	ScoreTask(ctx context.Context, description string, durationMinutes int, tags []string) scoring.TaskScore
}

// LedgerRecorder はポイントの加算・減算を記録する。metrics.Collectorが実装する。
type LedgerRecorder interface {
	RecordPointsAwarded(points int)
	RecordPointsReversed(points int)
}

// CompleteResult はタスク完了の結果。
type CompleteResult struct {
	Task        *model.Task
	TotalPoints int
}

// Service はタスク管理のサービス層。
type Service struct {
	accounts  repository.AccountRepository
	tasks     repository.TaskRepository
	ledger    repository.Ledger
	scorer    Scorer
	sanitizer security.TextSanitizerService
	recorder  LedgerRecorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(
	accounts repository.AccountRepository,
	tasks repository.TaskRepository,
	ledger repository.Ledger,
	scorer Scorer,
	sanitizer security.TextSanitizerService,
	recorder LedgerRecorder,
) *Service {
	return &Service{
		accounts:  accounts,
		tasks:     tasks,
		ledger:    ledger,
		scorer:    scorer,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// CreateTask はタスクを採点してpending状態で保存する。
// 採点はオラクルの失敗時もフォールバックで必ず値を返すため、採点起因でエラーにはならない。
func (s *Service) CreateTask(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error) {
	description = s.sanitizer.Sanitize(description)
	tags = s.sanitizer.SanitizeTags(tags)
	if err := validateTaskInput(description, durationMinutes, tags); err != nil {
		return nil, err
	}

	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	score := s.scorer.ScoreTask(ctx, description, durationMinutes, tags)

	task := &model.Task{
		ID:              uuid.New().String(),
		AccountID:       acc.ID,
		TaskDescription: description,
		Duration:        durationMinutes,
		Tags:            tags,
		Points:          max(0, min(score.Score, scoring.MaxTaskScore)),
		Status:          model.TaskStatusPending,
		AIFeedback:      score.Feedback,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの保存に失敗しました: %w", err)
	}
	return task, nil
}

// validateTaskInput は永続化前の入力検証を行う。
func validateTaskInput(description string, durationMinutes int, tags []string) error {
	if strings.TrimSpace(description) == "" {
		return model.NewValidationError("taskDescription は必須です")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return model.NewValidationError(fmt.Sprintf("taskDescription は%d文字以内で入力してください", MaxDescriptionLength))
	}
	if durationMinutes < 0 {
		return model.NewValidationError("duration は0以上の整数で入力してください")
	}
	if len(tags) > MaxTags {
		return model.NewValidationError(fmt.Sprintf("tags は%d個以内で指定してください", MaxTags))
	}
	return nil
}

// ListTasks はアカウントのタスクを新しい順に返す。statusが空の場合は全件を返す。
func (s *Service) ListTasks(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error) {
	if status != "" && !status.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("status が不正です: %s", status))
	}

	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListByAccount(ctx, acc.ID, status)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// GetTask はアカウントが所有するタスクを1件返す。
// 他のアカウントのタスクは存在しないものとして扱う。
func (s *Service) GetTask(ctx context.Context, identity, taskID string) (*model.Task, error) {
	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !isValidID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil || task.AccountID != acc.ID {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}

// VerifyOwnership はタスクが指定アカウントの所有であることを確認する。
func (s *Service) VerifyOwnership(ctx context.Context, identity, taskID string) error {
	_, err := s.GetTask(ctx, identity, taskID)
	return err
}

// OwnedTaskIDs は指定ID群を正規化し、アカウントが所有するIDのみを返す。
// IDが1件も指定されていない場合はValidationErrorを返す。
func (s *Service) OwnedTaskIDs(ctx context.Context, identity string, taskIDs []string) ([]string, error) {
	ids, err := normalizeIDs(taskIDs)
	if err != nil {
		return nil, err
	}

	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	owned := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.AccountID == acc.ID {
			owned = append(owned, t.ID)
		}
	}
	return owned, nil
}

// CompleteTask はタスクを完了状態にし、所有アカウントにポイントを加算する。
// 既に完了済みの場合はTASK_ALREADY_COMPLETEDを返し、台帳は変更しない。
func (s *Service) CompleteTask(ctx context.Context, taskID string) (*CompleteResult, error) {
	if !isValidID(taskID) {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	var result *CompleteResult
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return model.NewTaskNotFoundError(taskID)
		}
		if task.IsCompleted() {
			return model.NewTaskAlreadyCompletedError(taskID)
		}

		acc, err := tx.LockAccount(ctx, task.AccountID)
		if err != nil {
			return err
		}
		if acc == nil {
			return model.NewAccountNotFoundError()
		}

		now := s.now().UTC()
		if err := tx.MarkTaskCompleted(ctx, task.ID, now); err != nil {
			return err
		}
		gamification.Award(acc, task.Points, now)
		if err := tx.SaveLedger(ctx, acc); err != nil {
			return err
		}

		task.Status = model.TaskStatusCompleted
		task.CompletedAt = &now
		result = &CompleteResult{Task: task, TotalPoints: acc.TotalPoints}
		return nil
	})
	if err != nil {
		return nil, wrapLedgerError("タスクの完了に失敗しました", err)
	}

	if s.recorder != nil {
		s.recorder.RecordPointsAwarded(result.Task.Points)
	}
	return result, nil
}

// DeleteTask はタスクを削除する。完了済みだった場合は所有アカウントからポイントを減算する（下限0）。
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if !isValidID(taskID) {
		return model.NewTaskNotFoundError(taskID)
	}

	reversed := 0
	err := s.ledger.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		task, err := tx.LockTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return model.NewTaskNotFoundError(taskID)
		}

		if task.IsCompleted() && task.Points > 0 {
			acc, err := tx.LockAccount(ctx, task.AccountID)
			if err != nil {
				return err
			}
			if acc != nil {
				gamification.Reverse(acc, task.Points)
				if err := tx.SaveLedger(ctx, acc); err != nil {
					return err
				}
				reversed = task.Points
			}
		}

		_, err = tx.DeleteTasks(ctx, []string{task.ID})
		return err
	})
	if err != nil {
		return wrapLedgerError("タスクの削除に失敗しました", err)
	}

	if s.recorder != nil && reversed > 0 {
		s.recorder.RecordPointsReversed(reversed)
	}
	return nil
}

// BatchDeleteTasks は複数タスクを1トランザクションで削除し、削除件数を返す。
// 完了済みタスクのポイントはアカウントごとに合算し、アカウント1件につき1回だけ台帳を更新する。
// 存在しないIDは無視する。
func (s *Service) BatchDeleteTasks(ctx context.Context, taskIDs []string) (int, error) {
	ids, err := normalizeIDs(taskIDs)
	if err != nil {
		return 0, err
	}

	deleted, reversed := 0, 0
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		tasks, err := tx.LockTasks(ctx, ids)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		exposure := completedExposure(tasks)
		accountIDs := make([]string, 0, len(exposure))
		for id := range exposure {
			accountIDs = append(accountIDs, id)
		}
		slices.Sort(accountIDs)

		for _, accountID := range accountIDs {
			acc, err := tx.LockAccount(ctx, accountID)
			if err != nil {
				return err
			}
			if acc == nil {
				continue
			}
			gamification.Reverse(acc, exposure[accountID])
			if err := tx.SaveLedger(ctx, acc); err != nil {
				return err
			}
			reversed += exposure[accountID]
		}

		found := make([]string, len(tasks))
		for i, t := range tasks {
			found[i] = t.ID
		}
		deleted, err = tx.DeleteTasks(ctx, found)
		return err
	})
	if err != nil {
		return 0, wrapLedgerError("タスクの一括削除に失敗しました", err)
	}

	if s.recorder != nil && reversed > 0 {
		s.recorder.RecordPointsReversed(reversed)
	}
	return deleted, nil
}

// completedExposure は完了済みタスクのポイントをアカウントごとに合算する。
func completedExposure(tasks []*model.Task) map[string]int {
	exposure := make(map[string]int)
	for _, t := range tasks {
		if t.IsCompleted() && t.Points > 0 {
			exposure[t.AccountID] += t.Points
		}
	}
	return exposure
}

// resolveAccount は外部識別子からアカウントを取得する。
func (s *Service) resolveAccount(ctx context.Context, identity string) (*model.Account, error) {
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

// normalizeIDs は空白を除去して重複を取り除く。UUID形式でないIDは存在しないものとして捨てる。
func normalizeIDs(taskIDs []string) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, model.NewValidationError("ids は1件以上指定してください")
	}
	if len(taskIDs) > MaxBatchSize {
		return nil, model.NewValidationError(fmt.Sprintf("ids は%d件以内で指定してください", MaxBatchSize))
	}

	seen := make(map[string]struct{}, len(taskIDs))
	ids := make([]string, 0, len(taskIDs))
	blank := true
	for _, raw := range taskIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		blank = false
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		id = parsed.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if blank {
		return nil, model.NewValidationError("ids は1件以上指定してください")
	}
	return ids, nil
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// wrapLedgerError はAPIErrorをそのまま返し、それ以外をラップする。
func wrapLedgerError(msg string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
