// Package session はサーバーサイドセッションのライフサイクルを管理します。
// セッションは外部ストア（Redis）に永続化され、プロセス再起動後も有効です。
package session

import (
	"context"
	"time"
)

// Record はストアに保存されるセッション1件分の内容です。
type Record struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired はレコードが有効期限切れかどうかを返します。
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store はセッションレコードの永続化を提供します。
type Store interface {
	// Get はトークンに対応するレコードを返します。存在しない場合は (nil, nil) です。
	Get(ctx context.Context, token string) (*Record, error)

	// Set はレコードを保存します。有効期限は Record.ExpiresAt に従います。
	Set(ctx context.Context, record *Record) error

	// Delete はレコードを削除します。存在しないトークンの削除はエラーになりません。
	Delete(ctx context.Context, token string) error
}
