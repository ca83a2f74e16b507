package handler

import (
	"context"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/task"
)

// TaskServiceAdapter は task.Service を TaskServiceInterface に適合させるアダプタ。
// 完了・削除は所有者確認を済ませてからサービスの特権操作を呼ぶ。
type TaskServiceAdapter struct {
	svc *task.Service
}

// NewTaskServiceAdapter はTaskServiceAdapterを生成する。
func NewTaskServiceAdapter(svc *task.Service) *TaskServiceAdapter {
	return &TaskServiceAdapter{svc: svc}
}

// CreateTask はタスクを作成する。
func (a *TaskServiceAdapter) CreateTask(ctx context.Context, identity, description string, durationMinutes int, tags []string) (*model.Task, error) {
	return a.svc.CreateTask(ctx, identity, description, durationMinutes, tags)
}

// ListTasks はタスク一覧を返す。
func (a *TaskServiceAdapter) ListTasks(ctx context.Context, identity string, status model.TaskStatus) ([]*model.Task, error) {
	return a.svc.ListTasks(ctx, identity, status)
}

// CompleteTask は所有者を確認した上でタスクを完了にする。
func (a *TaskServiceAdapter) CompleteTask(ctx context.Context, identity, taskID string) (*task.CompleteResult, error) {
	if err := a.svc.VerifyOwnership(ctx, identity, taskID); err != nil {
		return nil, err
	}
	return a.svc.CompleteTask(ctx, taskID)
}

// DeleteTask は所有者を確認した上でタスクを削除する。
func (a *TaskServiceAdapter) DeleteTask(ctx context.Context, identity, taskID string) error {
	if err := a.svc.VerifyOwnership(ctx, identity, taskID); err != nil {
		return err
	}
	return a.svc.DeleteTask(ctx, taskID)
}

// BatchDeleteTasks は指定IDのうち所有するタスクだけを削除する。
// 所有タスクが1件もなければ何もせず0を返す。
func (a *TaskServiceAdapter) BatchDeleteTasks(ctx context.Context, identity string, taskIDs []string) (int, error) {
	owned, err := a.svc.OwnedTaskIDs(ctx, identity, taskIDs)
	if err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}
	return a.svc.BatchDeleteTasks(ctx, owned)
}

// --- compile-time interface checks ---

var _ TaskServiceInterface = (*TaskServiceAdapter)(nil)
