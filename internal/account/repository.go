package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool は Repository が必要とする pgxpool.Pool のサブセットです。
// テストでは pgxmock がこのインターフェースを満たします。
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository はアカウントを PostgreSQL に永続化します。
// email の一意性はストア側の UNIQUE 制約が最終的に保証します。
type Repository struct {
	pool Pool
}

// NewRepository は Repository を作成します。
func NewRepository(pool Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = "email, password_hash, created_at, updated_at"

// FindByEmail はメールアドレス完全一致でアカウントを検索します。
// 見つからない場合は (nil, nil) を返します。
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByEmails は指定された複数のメールアドレスに一致するアカウントを返します。
func (r *Repository) FindByEmails(ctx context.Context, emails []string) ([]Account, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ANY($1) ORDER BY email`, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts by emails: %w", err)
	}
	return collectAccounts(rows)
}

// Insert はアカウントを1件作成します。
// 一意性制約違反は DuplicateError に変換します。
func (r *Repository) Insert(ctx context.Context, account *Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		account.Email, account.PasswordHash, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err, account.Email)
	}
	return nil
}

// InsertMany は複数アカウントを単一トランザクションで作成します。
// 途中で失敗した場合は全件ロールバックされます。
func (r *Repository) InsertMany(ctx context.Context, accounts []Account) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for i := range accounts {
		accounts[i].CreatedAt = now
		accounts[i].UpdatedAt = now
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (email, password_hash, created_at, updated_at)
			 VALUES ($1, $2, $3, $4)`,
			accounts[i].Email, accounts[i].PasswordHash, now, now)
		if err != nil {
			return mapUniqueViolation(err, accounts[i].Email)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateByEmail はアカウントを部分更新し、更新後の内容を返します。
// 対象が存在しない場合は (nil, nil) を返します。
func (r *Repository) UpdateByEmail(ctx context.Context, email string, patch Patch) (*Account, error) {
	sets, args := patchClauses(patch)
	if len(sets) == 0 {
		return r.FindByEmail(ctx, email)
	}
	args = append(args, email)

	row := r.pool.QueryRow(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+
			fmt.Sprintf(` WHERE email = $%d RETURNING `, len(args))+accountColumns,
		args...)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapUniqueViolation(err, patchEmail(patch))
	}
	return account, nil
}

// UpdateMany はフィルタに一致する全アカウントを部分更新し、更新件数を返します。
func (r *Repository) UpdateMany(ctx context.Context, filter Filter, patch Patch) (int64, error) {
	if filter.IsZero() {
		return 0, &ValidationError{Field: "filter", Reason: "filter is required"}
	}
	sets, args := patchClauses(patch)
	if len(sets) == 0 {
		return 0, nil
	}
	where, args := filterClause(filter, args)

	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return 0, mapUniqueViolation(err, patchEmail(patch))
	}
	return tag.RowsAffected(), nil
}

// ReplaceByEmail はアカウントのレコード全体を置き換え、置換後の内容を返します。
// 対象が存在しない場合は (nil, nil) を返します。
func (r *Repository) ReplaceByEmail(ctx context.Context, email string, replacement Account) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE accounts SET email = $2, password_hash = $3, updated_at = $4
		 WHERE email = $1 RETURNING `+accountColumns,
		email, replacement.Email, replacement.PasswordHash, time.Now().UTC())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapUniqueViolation(err, replacement.Email)
	}
	return account, nil
}

// DeleteByEmail はアカウントを1件削除し、削除したアカウントを返します。
// 対象が存在しない場合は (nil, nil) を返します。
func (r *Repository) DeleteByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM accounts WHERE email = $1 RETURNING `+accountColumns, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete account: %w", err)
	}
	return account, nil
}

// DeleteMany はフィルタに一致する全アカウントを削除し、削除件数を返します。
func (r *Repository) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	if filter.IsZero() {
		return 0, &ValidationError{Field: "filter", Reason: "filter is required"}
	}
	where, args := filterClause(filter, nil)

	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete accounts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAll は全アカウントを登録順に返します。パスワードハッシュは含まれますが、
// JSON シリアライズ時に除外されます。
func (r *Repository) ListAll(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ListEmails は全アカウントのメールアドレスのみを返します。
func (r *Repository) ListEmails(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT email FROM accounts ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// ListPage はキーセット方式で1ページ分のアカウントを返します。
// cursor は前ページ最後のメールアドレスで、空文字列なら先頭からになります。
// 戻り値の bool は後続ページが存在するかどうかを示します。
func (r *Repository) ListPage(ctx context.Context, cursor string, limit int) ([]Account, bool, error) {
	// hasMore 判定のために1件多く取得する
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE ($1 = '' OR email > $1) ORDER BY email LIMIT $2`,
		cursor, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list page: %w", err)
	}

	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(accounts) > limit
	if hasMore {
		accounts = accounts[:limit]
	}
	return accounts, hasMore, nil
}

// AggregateByDomain はメールドメインごとのアカウント数を件数の降順で返します。
func (r *Repository) AggregateByDomain(ctx context.Context) ([]DomainCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT split_part(email, '@', 2) AS domain, COUNT(*) AS users_count
		 FROM accounts GROUP BY domain ORDER BY users_count DESC, domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by domain: %w", err)
	}
	defer rows.Close()

	var stats []DomainCount
	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.UsersCount); err != nil {
			return nil, err
		}
		stats = append(stats, dc)
	}
	return stats, rows.Err()
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func patchClauses(patch Patch) ([]string, []any) {
	var sets []string
	var args []any
	if patch.Email != nil {
		args = append(args, *patch.Email)
		sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
	}
	if patch.PasswordHash != nil {
		args = append(args, *patch.PasswordHash)
		sets = append(sets, fmt.Sprintf("password_hash = $%d", len(args)))
	}
	if len(sets) > 0 {
		args = append(args, time.Now().UTC())
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	}
	return sets, args
}

func filterClause(filter Filter, args []any) (string, []any) {
	var conds []string
	if len(filter.Emails) > 0 {
		args = append(args, filter.Emails)
		conds = append(conds, fmt.Sprintf("email = ANY($%d)", len(args)))
	}
	if filter.Domain != "" {
		args = append(args, filter.Domain)
		conds = append(conds, fmt.Sprintf("split_part(email, '@', 2) = $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func patchEmail(patch Patch) string {
	if patch.Email != nil {
		return *patch.Email
	}
	return ""
}

func mapUniqueViolation(err error, email string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if email == "" {
			return &DuplicateError{}
		}
		return &DuplicateError{Emails: []string{email}}
	}
	return err
}
