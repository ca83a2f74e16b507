package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/flowstate/internal/model"
)

// taskColumns はtasksテーブルのSELECT列。scanTaskと順序を合わせる。
const taskColumns = `id, account_id, task_description, duration, tags, points, status,
	ai_feedback, created_at, completed_at`

// scanTask は1行分のタスクを読み取る。
func scanTask(s rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var tags pq.StringArray
	var completedAt sql.NullTime

	if err := s.Scan(
		&task.ID, &task.AccountID, &task.TaskDescription, &task.Duration, &tags,
		&task.Points, &task.Status, &task.AIFeedback, &task.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	task.Tags = []string(tags)
	if task.Tags == nil {
		task.Tags = []string{}
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return task, nil
}

// queryer は*sql.DBと*sql.Txの共通インターフェース。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryTasks はクエリ結果の全行をタスクとして読み取る。
func queryTasks(ctx context.Context, q queryer, query string, args ...any) ([]*model.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("タスクの読み取りに失敗しました: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスクの走査に失敗しました: %w", err)
	}
	return tasks, nil
}

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, account_id, task_description, duration, tags, points, status,
		                    ai_feedback, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		task.ID, task.AccountID, task.TaskDescription, task.Duration, pq.StringArray(task.Tags),
		task.Points, task.Status, task.AIFeedback, task.CreatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	return task, nil
}

// FindByIDs は指定ID群のうち存在するタスクを返す。
func (r *PostgresTaskRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Task, error) {
	if len(ids) == 0 {
		return []*model.Task{}, nil
	}
	return queryTasks(ctx, r.db,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1) ORDER BY id`,
		pq.StringArray(ids),
	)
}

// ListByAccount はアカウントのタスクをcreated_at降順で返す。
func (r *PostgresTaskRepo) ListByAccount(ctx context.Context, accountID string, status model.TaskStatus) ([]*model.Task, error) {
	if status == "" {
		return queryTasks(ctx, r.db,
			`SELECT `+taskColumns+` FROM tasks WHERE account_id = $1 ORDER BY created_at DESC, id`,
			accountID,
		)
	}
	return queryTasks(ctx, r.db,
		`SELECT `+taskColumns+` FROM tasks WHERE account_id = $1 AND status = $2
		 ORDER BY created_at DESC, id`,
		accountID, status,
	)
}

// ListCompletedSince はsince以降に完了したタスクをcompleted_at昇順で返す。
func (r *PostgresTaskRepo) ListCompletedSince(ctx context.Context, accountID string, since time.Time) ([]*model.Task, error) {
	return queryTasks(ctx, r.db,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE account_id = $1 AND status = 'completed' AND completed_at >= $2
		 ORDER BY completed_at ASC`,
		accountID, since,
	)
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
