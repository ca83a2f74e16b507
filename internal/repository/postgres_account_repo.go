package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/flowstate/internal/model"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// accountColumns はaccountsテーブルのSELECT列。scanAccountと順序を合わせる。
const accountColumns = `id, external_id, email, display_name, total_points, daily_xp, daily_goal,
	streak, last_log_date, insight_feedback, insight_rating, insight_generated_at, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanAccount は1行分のアカウントを読み取る。
func scanAccount(s rowScanner) (*model.Account, error) {
	acc := &model.Account{}
	var lastLog, insightAt sql.NullTime
	var insightFeedback sql.NullString
	var insightRating sql.NullInt64

	if err := s.Scan(
		&acc.ID, &acc.ExternalID, &acc.Email, &acc.DisplayName,
		&acc.TotalPoints, &acc.DailyXP, &acc.DailyGoal, &acc.Streak,
		&lastLog, &insightFeedback, &insightRating, &insightAt,
		&acc.CreatedAt, &acc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastLog.Valid {
		t := lastLog.Time
		acc.LastLogDate = &t
	}
	if insightAt.Valid {
		acc.LastInsight = &model.Insight{
			Feedback:    insightFeedback.String,
			Rating:      int(insightRating.Int64),
			GeneratedAt: insightAt.Time,
		}
	}
	return acc, nil
}

// isUniqueViolation はerrが一意制約違反かを返す。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByExternalID は外部IdPの識別子でアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE external_id = $1`, externalID)
}

// FindByEmail はメールアドレスでアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *PostgresAccountRepo) findOne(ctx context.Context, query string, arg string) (*model.Account, error) {
	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return acc, nil
}

// Create はアカウントを作成する。一意制約違反の場合はErrConflictを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, acc *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, external_id, email, display_name, total_points, daily_xp,
		                       daily_goal, streak, last_log_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		acc.ID, acc.ExternalID, acc.Email, acc.DisplayName, acc.TotalPoints, acc.DailyXP,
		acc.DailyGoal, acc.Streak, acc.LastLogDate, acc.CreatedAt, acc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateProfile は外部識別子・メールアドレス・表示名を更新する。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, acc *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET external_id = $1, email = $2, display_name = $3, updated_at = now()
		 WHERE id = $4`,
		acc.ExternalID, acc.Email, acc.DisplayName, acc.ID,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("アカウント情報の更新に失敗しました: %w", err)
	}
	return nil
}

// SaveInsight は週次コーチ結果を上書き保存する。
func (r *PostgresAccountRepo) SaveInsight(ctx context.Context, accountID string, insight model.Insight) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET insight_feedback = $1, insight_rating = $2, insight_generated_at = $3, updated_at = now()
		 WHERE id = $4`,
		insight.Feedback, insight.Rating, insight.GeneratedAt, accountID,
	)
	if err != nil {
		return fmt.Errorf("週次コーチ結果の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
