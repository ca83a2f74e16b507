// Package reminder はリマインダーの登録・一覧・更新・削除を提供する。
// 送信はworker/reminderのスイープが行う。
package reminder

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/repository"
	"github.com/hitoshi/flowstate/internal/security"
)

// MaxMessageLength はリマインダー本文の最大文字数。
const MaxMessageLength = 500

// Service はリマインダー管理のサービス層。
type Service struct {
	accounts  repository.AccountRepository
	reminders repository.ReminderRepository
	sanitizer security.TextSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	reminders repository.ReminderRepository,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		accounts:  accounts,
		reminders: reminders,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// UpdateInput はUpdateの変更内容。nilのフィールドは変更しない。
type UpdateInput struct {
	Message       *string
	ScheduledTime *time.Time
}

// Create はリマインダーを登録する。送信先はアカウントのメールアドレス。
// 過去の時刻を指定した場合は次回のスイープで送信される。
func (s *Service) Create(ctx context.Context, identity, message string, scheduledTime time.Time) (*model.Reminder, error) {
	msg, err := s.validateMessage(message)
	if err != nil {
		return nil, err
	}
	if scheduledTime.IsZero() {
		return nil, model.NewValidationError("scheduledTime は必須です")
	}

	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	scheduled := scheduledTime.UTC()
	rem := &model.Reminder{
		ID:            uuid.New().String(),
		AccountID:     acc.ID,
		Email:         acc.Email,
		Message:       msg,
		ScheduledTime: scheduled,
		Status:        model.ReminderStatusPending,
		NextAttemptAt: scheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.reminders.Create(ctx, rem); err != nil {
		return nil, fmt.Errorf("リマインダーの作成に失敗しました: %w", err)
	}
	return rem, nil
}

// List はアカウントのリマインダーを予定時刻の昇順で返す。
func (s *Service) List(ctx context.Context, identity string) ([]*model.Reminder, error) {
	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	reminders, err := s.reminders.ListByAccount(ctx, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("リマインダー一覧の取得に失敗しました: %w", err)
	}
	if reminders == nil {
		reminders = []*model.Reminder{}
	}
	return reminders, nil
}

// Update は未送信のリマインダーの本文または予定時刻を変更する。
// 送信済みの場合はREMINDER_ALREADY_SENTを返す。
func (s *Service) Update(ctx context.Context, identity, id string, in UpdateInput) (*model.Reminder, error) {
	if in.Message == nil && in.ScheduledTime == nil {
		return nil, model.NewValidationError("message または scheduledTime を指定してください")
	}

	rem, err := s.owned(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if rem.Status == model.ReminderStatusSent {
		return nil, model.NewReminderAlreadySentError(id)
	}

	if in.Message != nil {
		msg, err := s.validateMessage(*in.Message)
		if err != nil {
			return nil, err
		}
		rem.Message = msg
	}
	if in.ScheduledTime != nil {
		if in.ScheduledTime.IsZero() {
			return nil, model.NewValidationError("scheduledTime は必須です")
		}
		rem.ScheduledTime = in.ScheduledTime.UTC()
	}
	rem.Attempts = 0
	rem.LastError = ""
	rem.NextAttemptAt = rem.ScheduledTime
	rem.UpdatedAt = s.now().UTC()

	ok, err := s.reminders.UpdateSchedule(ctx, rem)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの更新に失敗しました: %w", err)
	}
	if !ok {
		// 読み取り後にスイープが送信を完了した
		return nil, model.NewReminderAlreadySentError(id)
	}
	return rem, nil
}

// Delete はリマインダーを削除する。送信済みでも削除できる。
func (s *Service) Delete(ctx context.Context, identity, id string) error {
	rem, err := s.owned(ctx, identity, id)
	if err != nil {
		return err
	}
	if err := s.reminders.Delete(ctx, rem.ID); err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	return nil
}

// owned は呼び出し元が所有するリマインダーを返す。
// 他人のリマインダーは存在しないものとして扱う。
func (s *Service) owned(ctx context.Context, identity, id string) (*model.Reminder, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewReminderNotFoundError(id)
	}
	acc, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, err
	}
	rem, err := s.reminders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
	}
	if rem == nil || rem.AccountID != acc.ID {
		return nil, model.NewReminderNotFoundError(id)
	}
	return rem, nil
}

func (s *Service) validateMessage(message string) (string, error) {
	msg := s.sanitizer.Sanitize(message)
	if msg == "" {
		return "", model.NewValidationError("message は必須です")
	}
	if utf8.RuneCountInString(msg) > MaxMessageLength {
		return "", model.NewValidationError(fmt.Sprintf("message は%d文字以内で入力してください", MaxMessageLength))
	}
	return msg, nil
}

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
