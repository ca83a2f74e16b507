package task

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/flowstate/internal/model"
	"github.com/hitoshi/flowstate/internal/repository"
)

// memStore はテスト用のインメモリ実装。
// RunInTxは全体を1つのミューテックスで直列化し、fnがエラーを返した場合はスナップショットに戻す。
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	tasks    map[string]*model.Task

	// saveLedgerErr が設定されている場合、該当アカウントのSaveLedgerは失敗する
	saveLedgerErr map[string]error
	ledgerWrites  int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:      make(map[string]*model.Account),
		tasks:         make(map[string]*model.Task),
		saveLedgerErr: make(map[string]error),
	}
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.LastLogDate != nil {
		t := *a.LastLogDate
		c.LastLogDate = &t
	}
	return &c
}

func cloneTask(t *model.Task) *model.Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

func (m *memStore) addAccount(acc *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.ID] = cloneAccount(acc)
}

func (m *memStore) account(id string) *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.accounts[id])
}

func (m *memStore) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// completedSum は現存する完了済みタスクのpoints合計を返す。
func (m *memStore) completedSum(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, t := range m.tasks {
		if t.AccountID == accountID && t.IsCompleted() {
			sum += t.Points
		}
	}
	return sum
}

// --- AccountRepository ---

func (m *memStore) FindByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, nil
}

func (m *memStore) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ExternalID == externalID {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(ctx context.Context, acc *model.Account) error {
	m.addAccount(acc)
	return nil
}

func (m *memStore) UpdateProfile(ctx context.Context, acc *model.Account) error { return nil }

func (m *memStore) SaveInsight(ctx context.Context, accountID string, insight model.Insight) error {
	return nil
}

// --- TaskRepository（AccountRepositoryとメソッド名が衝突するためラッパー経由）---

type memTaskRepo struct{ m *memStore }

func (r memTaskRepo) Create(ctx context.Context, task *model.Task) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (r memTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if t, ok := r.m.tasks[id]; ok {
		return cloneTask(t), nil
	}
	return nil, nil
}

func (r memTaskRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return r.m.collect(ids), nil
}

func (r memTaskRepo) ListByAccount(ctx context.Context, accountID string, status model.TaskStatus) ([]*model.Task, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := []*model.Task{}
	for _, t := range r.m.tasks {
		if t.AccountID == accountID && (status == "" || t.Status == status) {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memTaskRepo) ListCompletedSince(ctx context.Context, accountID string, since time.Time) ([]*model.Task, error) {
	return nil, nil
}

// collect はロック取得済みの状態でID昇順にタスクを集める。
func (m *memStore) collect(ids []string) []*model.Task {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	out := []*model.Task{}
	for _, id := range sorted {
		if t, ok := m.tasks[id]; ok {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// --- Ledger ---

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make(map[string]*model.Account, len(m.accounts))
	for k, v := range m.accounts {
		accounts[k] = cloneAccount(v)
	}
	tasks := make(map[string]*model.Task, len(m.tasks))
	for k, v := range m.tasks {
		tasks[k] = cloneTask(v)
	}
	writes := m.ledgerWrites

	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.accounts = accounts
		m.tasks = tasks
		m.ledgerWrites = writes
		return err
	}
	return nil
}

// memTx はRunInTx内でミューテックス取得済みの状態で動く。
type memTx struct{ m *memStore }

func (tx *memTx) LockAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if a, ok := tx.m.accounts[accountID]; ok {
		return cloneAccount(a), nil
	}
	return nil, nil
}

func (tx *memTx) SaveLedger(ctx context.Context, acc *model.Account) error {
	if err := tx.m.saveLedgerErr[acc.ID]; err != nil {
		return err
	}
	cur, ok := tx.m.accounts[acc.ID]
	if !ok {
		return errors.New("account vanished")
	}
	cur.TotalPoints = acc.TotalPoints
	cur.DailyXP = acc.DailyXP
	cur.Streak = acc.Streak
	cur.LastLogDate = acc.LastLogDate
	tx.m.ledgerWrites++
	return nil
}

func (tx *memTx) LockTask(ctx context.Context, taskID string) (*model.Task, error) {
	if t, ok := tx.m.tasks[taskID]; ok {
		return cloneTask(t), nil
	}
	return nil, nil
}

func (tx *memTx) LockTasks(ctx context.Context, taskIDs []string) ([]*model.Task, error) {
	return tx.m.collect(taskIDs), nil
}

func (tx *memTx) MarkTaskCompleted(ctx context.Context, taskID string, completedAt time.Time) error {
	t, ok := tx.m.tasks[taskID]
	if !ok {
		return errors.New("task vanished")
	}
	t.Status = model.TaskStatusCompleted
	t.CompletedAt = &completedAt
	return nil
}

func (tx *memTx) DeleteTasks(ctx context.Context, taskIDs []string) (int, error) {
	n := 0
	for _, id := range taskIDs {
		if _, ok := tx.m.tasks[id]; ok {
			delete(tx.m.tasks, id)
			n++
		}
	}
	return n, nil
}

var (
	_ repository.AccountRepository = (*memStore)(nil)
	_ repository.TaskRepository    = memTaskRepo{}
	_ repository.Ledger            = (*memStore)(nil)
	_ repository.LedgerTx          = (*memTx)(nil)
)
